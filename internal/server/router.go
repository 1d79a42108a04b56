// Package server exposes the away tracker over HTTP.
//
// Routes:
//
//	GET  /health-check  liveness probe with the server start time
//	POST /v1/slack_bot  form-encoded slash-command payload, JSON message reply
//	GET  /v1/records    JSON array of records matching the query-string filter
//
// Any other path redirects to /health-check. Request signature verification
// is expected to happen in front of this router. Browsers may read
// /v1/records cross-origin when allowed origins are configured.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/illmade-knight/away-tracker/internal/command"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Slash-command form fields.
const (
	FieldTeamID    = "team_id"
	FieldChannelID = "channel_id"
	FieldUserID    = "user_id"
	FieldCommand   = "command"
	FieldText      = "text"
	FieldTriggerID = "trigger_id"
)

// MsgInternalError is returned to callers instead of backend error details.
const MsgInternalError = "Something went wrong"

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health-check.
type HealthResponse struct {
	Status          string    `json:"status"`
	ServerStartedAt time.Time `json:"server_started_at"`
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	commands  *command.Handler
	service   *away.Service
	logger    zerolog.Logger
	startedAt time.Time
	origins   []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins enables CORS on the records API for origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server. startedAt is reported by the health check.
func New(commands *command.Handler, service *away.Service, logger zerolog.Logger, startedAt time.Time, opts ...Option) *Server {
	s := &Server{
		commands:  commands,
		service:   service,
		logger:    logger.With().Str("component", "http-server").Logger(),
		startedAt: startedAt.UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with request-id, recovery and access logging.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))

	r.Get("/health-check", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/slack_bot", s.handleSlashCommand)
		r.Group(func(r chi.Router) {
			if len(s.origins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: s.origins,
					AllowedMethods: []string{http.MethodGet, http.MethodOptions},
					AllowedHeaders: []string{"Accept", "Content-Type"},
					MaxAge:         300,
				}))
			}
			r.Get("/records", s.handleRecords)
			r.Options("/records", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health-check", http.StatusFound)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ServerStartedAt: s.startedAt})
}

func (s *Server) handleSlashCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	req := command.Request{
		TeamID:    r.PostForm.Get(FieldTeamID),
		ChannelID: r.PostForm.Get(FieldChannelID),
		UserID:    r.PostForm.Get(FieldUserID),
		Command:   r.PostForm.Get(FieldCommand),
		Text:      r.PostForm.Get(FieldText),
		TriggerID: r.PostForm.Get(FieldTriggerID),
	}
	if req.TeamID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "team_id and user_id are required")
		return
	}
	if _, ok := r.PostForm[FieldText]; !ok {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := s.commands.Handle(r.Context(), req)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("team_id", req.TeamID).Msg("Slash command failed")
		writeError(w, http.StatusInternalServerError, MsgInternalError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := away.FilterFromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.service.Query(r.Context(), filter)
	if err != nil {
		if away.IsClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("Records query failed")
		writeError(w, http.StatusInternalServerError, MsgInternalError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
