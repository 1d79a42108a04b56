package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/away-tracker/app"
	"github.com/illmade-knight/away-tracker/internal/config"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := app.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"message":"shown"`)
	})

	t.Run("Unknown level falls back to info", func(t *testing.T) {
		logger := app.NewLogger(config.LogConfig{Level: "loud", Format: "json"}, &bytes.Buffer{})

		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("Console format is not JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := app.NewLogger(config.LogConfig{Level: "info", Format: "console"}, &buf)

		logger.Info().Msg("hello")

		assert.Contains(t, buf.String(), "hello")
		assert.False(t, strings.HasPrefix(buf.String(), "{"))
	})
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown backend", func(t *testing.T) {
		store, err := app.OpenStore(ctx, config.StoreConfig{Backend: "redis"})

		require.ErrorIs(t, err, away.ErrUnknownBackend)
		assert.Nil(t, store)
	})

	t.Run("JSONL creates its directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "afk_log.jsonl")

		store, err := app.OpenStore(ctx, config.StoreConfig{Backend: "JSONL", JSONLPath: path})

		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		assert.FileExists(t, path)
	})

	t.Run("JSONL with a bad suffix", func(t *testing.T) {
		store, err := app.OpenStore(ctx, config.StoreConfig{Backend: config.BackendJSONL, JSONLPath: filepath.Join(t.TempDir(), "afk.json")})

		require.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("SQLite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afk.db")

		store, err := app.OpenStore(ctx, config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: path})

		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		records, err := store.Read(ctx, away.Filter{})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestApp_EndToEnd(t *testing.T) {
	// Arrange: a JSONL-backed app with a webhook notifier
	ctx := context.Background()
	var hooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)

	cfg := &config.Config{
		Store:  config.StoreConfig{Backend: config.BackendJSONL, JSONLPath: filepath.Join(t.TempDir(), "afk_log.jsonl")},
		Events: config.EventsConfig{WebhookURL: hook.URL},
		Away:   config.AwayConfig{SupersedePrevious: true},
		Log:    config.LogConfig{Level: "debug", Format: "json"},
	}
	a, err := app.New(ctx, cfg, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	form := url.Values{"team_id": {"T1"}, "channel_id": {"C1"}, "user_id": {"U1"}, "command": {"/afk"}}

	// Act: declare twice, the second replacing the first
	for _, text := range []string{"for 1h", "for 3h"} {
		form.Set("text", text)
		resp, err := http.PostForm(srv.URL+"/v1/slack_bot", form)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Assert: one active record, one cancelled, and both declarations announced
	active, err := a.AwaySvc.ListCurrent(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "for 3h", active[0].Text)

	history, err := a.AwaySvc.Query(ctx, away.HistoryFilter())
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, int32(2), hooks.Load())
}
