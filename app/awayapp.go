// Package app provides the central orchestrator for the away tracker. It turns a
// loaded configuration into a running set of components: the record store, the
// status notifiers, the away service, the command handler and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/away-tracker/internal/clients"
	"github.com/illmade-knight/away-tracker/internal/command"
	"github.com/illmade-knight/away-tracker/internal/config"
	"github.com/illmade-knight/away-tracker/internal/server"
	firestorestorage "github.com/illmade-knight/away-tracker/internal/storage/firestore"
	jsonlstorage "github.com/illmade-knight/away-tracker/internal/storage/jsonl"
	mongostorage "github.com/illmade-knight/away-tracker/internal/storage/mongo"
	sqlitestorage "github.com/illmade-knight/away-tracker/internal/storage/sqlite"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/rs/zerolog"
)

// App is the central application struct. It holds the domain service, the
// clients it announces through and the HTTP surface built on top of them.
type App struct {
	AwaySvc   *away.Service
	Commands  *command.Handler
	Server    *server.Server
	Logger    zerolog.Logger
	StartedAt time.Time

	store        away.Store
	pubsubClient *pubsub.Client
	publisher    *clients.PubsubNotifier
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// OpenStore opens the backend named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (away.Store, error) {
	var (
		store away.Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendJSONL:
		if err = ensureDir(cfg.JSONLPath); err == nil {
			store, err = openStore(jsonlstorage.Open(cfg.JSONLPath))
		}
	case config.BackendSQLite:
		if err = ensureDir(cfg.SQLitePath); err == nil {
			store, err = openStore(sqlitestorage.Open(cfg.SQLitePath))
		}
	case config.BackendMongo:
		store, err = openStore(mongostorage.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection))
	case config.BackendFirestore:
		store, err = openStore(firestorestorage.Open(ctx, cfg.ProjectID, cfg.FirestoreCollection))
	case config.BackendMemory:
		store = away.NewInMemoryStore()
	default:
		err = fmt.Errorf("%w: %q", away.ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openStore keeps a failed constructor's typed nil out of the interface.
func openStore[S away.Store](s S, err error) (away.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return nil
}

// New creates a new, fully initialized App from cfg.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("Record store opened")

	a := &App{Logger: logger, StartedAt: time.Now().UTC(), store: store}

	var notifiers clients.Fanout
	if cfg.Events.Enabled {
		a.pubsubClient, err = pubsub.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
		}
		a.publisher = clients.NewPubsubNotifier(a.pubsubClient, cfg.Events.TopicID, logger)
		notifiers = append(notifiers, a.publisher)
	}
	if cfg.Events.WebhookURL != "" {
		notifiers = append(notifiers, clients.NewWebhookClient(cfg.Events.WebhookURL, logger))
	}

	opts := []away.ServiceOption{
		away.WithLogger(logger),
		away.WithSupersede(cfg.Away.SupersedePrevious),
	}
	if len(notifiers) > 0 {
		opts = append(opts, away.WithNotifier(notifiers))
		logger.Info().Int("notifiers", len(notifiers)).Msg("Status notifiers configured")
	}

	a.AwaySvc = away.NewService(store, opts...)
	a.Commands = command.NewHandler(a.AwaySvc, command.DurationParser{Max: cfg.Away.MaxDuration}, logger)
	a.Server = server.New(a.Commands, a.AwaySvc, logger, a.StartedAt, server.WithAllowedOrigins(cfg.Server.CORSOrigins...))
	return a, nil
}

// Router returns the HTTP handler for the application.
func (a *App) Router() *chi.Mux {
	return a.Server.Router()
}

// Close flushes the notifiers and releases the store.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		errs = append(errs, a.pubsubClient.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
