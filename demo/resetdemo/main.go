// FILE: main.go
// This demo resets a JSONL record log to a fixed data set with an OVERWRITE
// write, then walks the list, clear and history flows against it.
//
// OVERWRITE wipes every team's records. Point -path at a scratch file.

package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/illmade-knight/away-tracker/app"
	"github.com/illmade-knight/away-tracker/internal/command"
	"github.com/illmade-knight/away-tracker/internal/config"
	"github.com/illmade-knight/away-tracker/pkg/away"
)

func main() {
	path := flag.String("path", "./storage/demo_afk_log.jsonl", "JSONL log to reset")
	flag.Parse()

	logger := app.NewLogger(config.LogConfig{Level: "info", Format: "console"}, os.Stdout)
	ctx := context.Background()

	store, err := app.OpenStore(ctx, config.StoreConfig{Backend: config.BackendJSONL, JSONLPath: *path})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open record log")
	}
	defer store.Close()

	// 1. Reset the log to a known data set
	now := time.Now().UTC()
	seed := []away.Record{
		away.NewRecord(away.Provenance{TeamID: "T-demo", ChannelID: "C-general", UserID: "U-sora", Command: "/afk", Text: "lunch"},
			now.Add(-30*time.Minute), now.Add(45*time.Minute)),
		away.NewRecord(away.Provenance{TeamID: "T-demo", ChannelID: "C-general", UserID: "U-jim", Command: "/afk", Text: "dentist"},
			now, now.Add(3*time.Hour)),
		away.NewRecord(away.Provenance{TeamID: "T-demo", ChannelID: "C-general", UserID: "U-ana", Command: "/afk", Text: "yesterday"},
			now.Add(-26*time.Hour), now.Add(-20*time.Hour)),
		away.NewRecord(away.Provenance{TeamID: "T-other", ChannelID: "C-ops", UserID: "U-kai", Command: "/afk", Text: "on call handover"},
			now, now.Add(time.Hour)),
	}
	ids, err := store.Write(ctx, seed, away.WriteOverwrite)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to reset record log")
	}
	logger.Info().Int("records", len(ids)).Str("path", *path).Msg("✅ Record log reset")

	svc := away.NewService(store, away.WithLogger(logger))
	handler := command.NewHandler(svc, command.DurationParser{}, logger)
	req := command.Request{TeamID: "T-demo", ChannelID: "C-general", UserID: "U-sora", Command: "/afk"}

	// 2. Table of who is away now (the expired record is not shown)
	req.Text = command.SubTable
	resp, err := handler.Handle(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to list records")
	}
	logger.Info().Msg("Current AFK table:\n" + resp.Text)

	// 3. Sora comes back early
	req.Text = command.SubClear
	resp, err = handler.Handle(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to clear records")
	}
	logger.Info().Msg(resp.Text)

	// 4. The full history keeps cancelled and expired records
	history, err := svc.Query(ctx, away.HistoryFilter())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read history")
	}
	for _, r := range history {
		logger.Info().
			Str("team_id", r.TeamID).
			Str("user_id", r.UserID).
			Str("status", string(r.Status)).
			Str("end", command.FormatTime(r.EndDatetime)).
			Msg(r.Text)
	}
}
