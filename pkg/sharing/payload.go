// FILE: pkg/sharing/payload.go

package sharing

import "time"

// EventKind distinguishes what happened to a user's away status.
type EventKind string

const (
	EventDeclared EventKind = "declared"
	EventCleared  EventKind = "cleared"
)

// StatusEvent is a self-contained, portable announcement of an away status
// change. It carries plain values only so subscribers need none of our types.
type StatusEvent struct {
	Kind       EventKind `json:"kind"`
	TeamID     string    `json:"team_id"`
	UserID     string    `json:"user_id"`
	ChannelID  string    `json:"channel_id,omitempty"`
	RecordIDs  []string  `json:"record_ids"`
	Start      time.Time `json:"start,omitempty"`
	End        time.Time `json:"end,omitempty"`
	Text       string    `json:"text,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
