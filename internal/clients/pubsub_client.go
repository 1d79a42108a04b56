// Package clients provides the outbound adapters that announce away status
// changes to other systems.
package clients

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/illmade-knight/away-tracker/pkg/sharing"
	"github.com/rs/zerolog"
)

// PubsubNotifier publishes every StatusEvent as a JSON message on one topic.
type PubsubNotifier struct {
	publisher *pubsub.Publisher
	topicID   string
	logger    zerolog.Logger
}

// NewPubsubNotifier creates a notifier publishing to topicID on client.
// The caller owns client; Stop flushes and releases the publisher only.
func NewPubsubNotifier(client *pubsub.Client, topicID string, logger zerolog.Logger) *PubsubNotifier {
	return &PubsubNotifier{
		publisher: client.Publisher(topicID),
		topicID:   topicID,
		logger:    logger.With().Str("client", "pubsub").Str("topic", topicID).Logger(),
	}
}

// Notify publishes the event and waits for the server to acknowledge it.
func (n *PubsubNotifier) Notify(ctx context.Context, event sharing.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":    string(event.Kind),
			"team_id": event.TeamID,
		},
	})
	msgID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish status event to %s: %w", n.topicID, err)
	}

	n.logger.Debug().Str("message_id", msgID).Str("kind", string(event.Kind)).Msg("Published status event")
	return nil
}

// Stop flushes pending messages.
func (n *PubsubNotifier) Stop() {
	n.publisher.Stop()
}
