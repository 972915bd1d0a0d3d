package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

type streamAppender interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// EventRepository appends notifier events to a Redis stream. Entries stay in
// the stream until trimmed, so a notifier that is offline reads them later
// through its consumer group.
type EventRepository struct {
	client streamAppender
	stream string
	maxLen int64
}

// NewEventRepository constructs the publisher. maxLen caps the stream
// approximately; zero leaves it untrimmed.
func NewEventRepository(client streamAppender, stream string, maxLen int64) *EventRepository {
	return &EventRepository{client: client, stream: stream, maxLen: maxLen}
}

// Publish encodes the event as JSON and appends it. An error means the entry
// was not stored and the caller should retry.
func (r *EventRepository) Publish(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":      event.ID,
			"type":    string(event.Type),
			"payload": payload,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("append event %s: %w", event.Type, err)
	}
	return nil
}
