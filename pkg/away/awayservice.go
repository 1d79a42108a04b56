// FILE: away/service.go

package away

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/sharing"
	"github.com/rs/zerolog"
)

// Notifier is told about status changes after they are persisted.
type Notifier interface {
	Notify(ctx context.Context, event sharing.StatusEvent) error
}

// Service provides the business logic for declaring and clearing away status.
type Service struct {
	store     Store
	notifier  Notifier
	logger    zerolog.Logger
	supersede bool
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier announces declarations and clears through n.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger.With().Str("component", "away-service").Logger() }
}

// WithSupersede makes a new declaration cancel the user's current ones.
func WithSupersede(enabled bool) ServiceOption {
	return func(s *Service) { s.supersede = enabled }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService is the constructor for the away Service. It takes a Store,
// allowing callers to switch between any of the backends.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Declaration is the input for a new away interval.
type Declaration struct {
	Provenance
	Start time.Time
	End   time.Time
}

// Declare validates and stores a new away record.
func (s *Service) Declare(ctx context.Context, d Declaration) (Record, error) {
	var errs []FieldError
	if d.TeamID == "" {
		errs = append(errs, FieldError{Field: FieldTeamID, Message: "required"})
	}
	if d.UserID == "" {
		errs = append(errs, FieldError{Field: FieldUserID, Message: "required"})
	}
	if d.End.Before(d.Start) {
		errs = append(errs, FieldError{Field: FieldEndDatetime, Message: "end time cannot be before start time"})
	}
	if len(errs) > 0 {
		return Record{}, NewValidationErrors(errs)
	}

	record := NewRecord(d.Provenance, d.Start, d.End)

	if s.supersede {
		if err := s.replaceCurrent(ctx, record); err != nil {
			return Record{}, err
		}
	} else if _, err := s.store.Write(ctx, []Record{record}, WriteAppend); err != nil {
		return Record{}, fmt.Errorf("failed to save away record: %w", err)
	}

	s.notify(ctx, sharing.StatusEvent{
		Kind:       sharing.EventDeclared,
		TeamID:     record.TeamID,
		UserID:     record.UserID,
		ChannelID:  record.ChannelID,
		RecordIDs:  []string{record.ID},
		Start:      record.StartDatetime,
		End:        record.EndDatetime,
		Text:       record.Text,
		OccurredAt: Instant(s.now()),
	})
	return record, nil
}

// replaceCurrent cancels the user's current records and upserts the new one
// in a single update call.
func (s *Service) replaceCurrent(ctx context.Context, record Record) error {
	current, err := s.store.Read(ctx, Filter{
		TeamIDs: []string{record.TeamID},
		UserIDs: []string{record.UserID},
	})
	if err != nil {
		return fmt.Errorf("failed to read current away records: %w", err)
	}

	batch := make([]Record, 0, len(current)+1)
	for _, r := range current {
		r.Status = StatusCancelled
		batch = append(batch, r)
	}
	batch = append(batch, record)

	if _, err := s.store.Update(ctx, batch, true); err != nil {
		return fmt.Errorf("failed to replace away records: %w", err)
	}
	return nil
}

// ListCurrent returns the team's active, unexpired records, soonest end first.
func (s *Service) ListCurrent(ctx context.Context, teamID string) ([]Record, error) {
	records, err := s.store.Read(ctx, Filter{TeamIDs: []string{teamID}})
	if err != nil {
		return nil, fmt.Errorf("failed to list away records: %w", err)
	}
	SortByEnd(records)
	return records, nil
}

// Query runs an arbitrary filter against the store.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Record, error) {
	records, err := s.store.Read(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortByEnd(records)
	return records, nil
}

// Clear cancels the user's active records and returns how many changed.
func (s *Service) Clear(ctx context.Context, teamID, userID string) (int, error) {
	scope := Scope{TeamID: teamID, UserID: userID}
	changed, err := s.store.CancelActive(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to clear away status: %w", err)
	}
	if changed > 0 {
		s.notify(ctx, sharing.StatusEvent{
			Kind:       sharing.EventCleared,
			TeamID:     teamID,
			UserID:     userID,
			OccurredAt: Instant(s.now()),
		})
	}
	return changed, nil
}

// GetStore exposes the underlying store.
func (s *Service) GetStore() Store {
	return s.store
}

func (s *Service) notify(ctx context.Context, event sharing.StatusEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn().Err(err).
			Str("kind", string(event.Kind)).
			Str("team_id", event.TeamID).
			Str("user_id", event.UserID).
			Msg("Failed to publish away status event")
	}
}

// SortByEnd orders records by ascending EndDatetime, ties broken by id.
func SortByEnd(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].EndDatetime.Equal(records[j].EndDatetime) {
			return records[i].EndDatetime.Before(records[j].EndDatetime)
		}
		return records[i].ID < records[j].ID
	})
}
