// FILE: away/models.go

package away

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RecordVersion is the schema version stamped on every new record.
const RecordVersion = 1

// Status is the lifecycle state of an away record.
// The only legal transition is StatusActive -> StatusCancelled.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the two persisted statuses.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCancelled
}

// AllStatuses returns every status; used when a caller wants the full history.
func AllStatuses() []Status {
	return []Status{StatusActive, StatusCancelled}
}

// Epoch is the lower bound that makes a read include every record ever stored.
var Epoch = time.Unix(0, 0).UTC()

// WriteMode selects how Write treats the existing contents of a store.
type WriteMode int

const (
	// WriteAppend adds records and leaves existing ones untouched.
	WriteAppend WriteMode = iota
	// WriteOverwrite wipes the ENTIRE store, every team and user, before
	// inserting. It is meant for resets and demos only and must never be
	// reached from a per-request code path.
	WriteOverwrite
)

func (m WriteMode) String() string {
	switch m {
	case WriteAppend:
		return "append"
	case WriteOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// Record is one declared away interval. Apart from Status, every field is
// fixed once the record is created.
type Record struct {
	ID            string    `json:"id"`
	TeamID        string    `json:"team_id"`
	ChannelID     string    `json:"channel_id"`
	UserID        string    `json:"user_id"`
	Command       string    `json:"command"`
	Text          string    `json:"text"`
	TriggerID     string    `json:"trigger_id"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Status        Status    `json:"status"`
	Created       time.Time `json:"created"`
	Version       int       `json:"version"`
}

// Provenance describes where a declaration came from.
type Provenance struct {
	TeamID    string
	ChannelID string
	UserID    string
	Command   string
	Text      string
	TriggerID string
}

// NewRecord builds an active record with a fresh id, creation time and the
// current schema version.
func NewRecord(p Provenance, start, end time.Time) Record {
	return Record{
		ID:            newID(),
		TeamID:        p.TeamID,
		ChannelID:     p.ChannelID,
		UserID:        p.UserID,
		Command:       p.Command,
		Text:          p.Text,
		TriggerID:     p.TriggerID,
		StartDatetime: Instant(start),
		EndDatetime:   Instant(end),
		Status:        StatusActive,
		Created:       Instant(time.Now()),
		Version:       RecordVersion,
	}
}

func newID() string { return uuid.NewString() }

// Instant normalizes t to the stored form: UTC, millisecond precision, no
// monotonic reading. Every backend can hold this value without loss.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Validate checks the fields a store relies on. String fields must be valid
// UTF-8 so that every backend stores them byte for byte.
func (r Record) Validate() error {
	var errs []FieldError
	if !r.Status.Valid() {
		errs = append(errs, FieldError{Field: FieldStatus, Message: fmt.Sprintf("unknown status %q", r.Status)})
	}
	for _, f := range []struct{ name, value string }{
		{FieldID, r.ID},
		{FieldTeamID, r.TeamID},
		{"channel_id", r.ChannelID},
		{FieldUserID, r.UserID},
		{"command", r.Command},
		{"text", r.Text},
		{"trigger_id", r.TriggerID},
	} {
		if !utf8.ValidString(f.value) {
			errs = append(errs, FieldError{Field: f.name, Message: "must be valid UTF-8"})
		}
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// Decoded fixes up a record read back from storage: records written before
// versioning carry no version and are treated as version 1.
func (r Record) Decoded() Record {
	if r.Version == 0 {
		r.Version = RecordVersion
	}
	return r
}

// Supersede returns incoming as the replacement for stored, keeping a
// cancelled record cancelled.
func Supersede(stored, incoming Record) Record {
	if stored.Status == StatusCancelled {
		incoming.Status = StatusCancelled
	}
	return incoming
}

// Scope names the records a status transition applies to.
type Scope struct {
	TeamID string
	UserID string
}

// Validate requires both halves of the scope.
func (s Scope) Validate() error {
	var errs []FieldError
	if s.TeamID == "" {
		errs = append(errs, FieldError{Field: "team_id", Message: "required"})
	}
	if s.UserID == "" {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}
