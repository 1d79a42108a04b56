// Package command turns slash-command invocations into away operations and
// renders the replies.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/rs/zerolog"
)

// Sub-commands recognised in the command text. Anything else is a phrase for
// the DateParser.
const (
	SubList  = "list"
	SubTable = "table"
	SubClear = "clear"
)

// MsgNoRecords is the reply when there is nothing to show or clear.
const MsgNoRecords = "No AFK records"

// Request is one slash-command invocation.
type Request struct {
	TeamID    string
	ChannelID string
	UserID    string
	Command   string
	Text      string
	TriggerID string
}

// Handler dispatches requests to the away service.
type Handler struct {
	service *away.Service
	parser  DateParser
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHandler creates a handler using parser for free-text declarations.
func NewHandler(service *away.Service, parser DateParser, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		parser:  parser,
		logger:  logger.With().Str("component", "command-handler").Logger(),
		now:     time.Now,
	}
}

// Handle runs the sub-command named by req.Text. Errors are store failures;
// unparsable input and rejected declarations are reported in the Response.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	text := strings.TrimSpace(req.Text)
	switch strings.ToLower(text) {
	case SubList:
		return h.list(ctx, req, RenderList)
	case SubTable:
		return h.list(ctx, req, RenderTable)
	case SubClear:
		return h.clear(ctx, req)
	default:
		return h.declare(ctx, req, text)
	}
}

func (h *Handler) list(ctx context.Context, req Request, render func([]away.Record) Response) (Response, error) {
	records, err := h.service.ListCurrent(ctx, req.TeamID)
	if err != nil {
		return Response{}, err
	}
	if len(records) == 0 {
		return textResponse(MsgNoRecords), nil
	}
	return render(records), nil
}

func (h *Handler) clear(ctx context.Context, req Request) (Response, error) {
	n, err := h.service.Clear(ctx, req.TeamID, req.UserID)
	if err != nil {
		return Response{}, err
	}
	if n == 0 {
		return textResponse(MsgNoRecords), nil
	}
	return textResponse(fmt.Sprintf("%d AFK %s cleared", n, plural(n, "record"))), nil
}

func (h *Handler) declare(ctx context.Context, req Request, text string) (Response, error) {
	start, end, err := h.parser.Parse(text, h.now())
	if err != nil {
		h.logger.Debug().Err(err).Str("user_id", req.UserID).Msg("Unparsable away phrase")
		return textResponse(fmt.Sprintf("Could not parse %q, please enter AFK details manually", text)), nil
	}

	record, err := h.service.Declare(ctx, away.Declaration{
		Provenance: away.Provenance{
			TeamID:    req.TeamID,
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Command:   req.Command,
			Text:      text,
			TriggerID: req.TriggerID,
		},
		Start: start,
		End:   end,
	})
	if err != nil {
		var vErr *away.ValidationError
		if errors.As(err, &vErr) {
			return textResponse("Could not record AFK: " + vErr.Error()), nil
		}
		return Response{}, err
	}

	h.logger.Info().Str("team_id", record.TeamID).Str("user_id", record.UserID).Str("record_id", record.ID).Msg("Away declared")
	return RenderList([]away.Record{record}), nil
}
