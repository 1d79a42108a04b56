package clients

import (
	"context"
	"errors"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/sharing"
)

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []away.Notifier

// Notify calls every notifier, even after one fails.
func (f Fanout) Notify(ctx context.Context, event sharing.StatusEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
