package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/models"
)

const arrivalEventType = "notification.created"

// arrivalEvent is the payload pushed when the server creates a notification.
type arrivalEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Consumer feeds server-pushed notification arrivals into the store.
type Consumer struct {
	store        *Store
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds the notification arrival consumer.
func NewConsumer(store *Store, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{store: store, subscription: subscription, logg: logg}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.process(ctx, msg)
		// Appending is a local operation that cannot fail; malformed
		// payloads are dropped rather than redelivered forever.
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != arrivalEventType {
		c.logg.Debug(logCtx, "skipping non-arrival event")
		return
	}

	var event arrivalEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logg.Warn(logCtx, "dropping undecodable notification event")
		return
	}
	kind, err := enums.ParseNotificationType(event.Type)
	if err != nil {
		c.logg.Warn(logCtx, "dropping notification event with unknown type")
		return
	}

	c.store.Append(models.Notification{
		ID:        event.ID,
		UserID:    event.UserID,
		Type:      kind,
		Title:     event.Title,
		Message:   event.Message,
		CreatedAt: event.CreatedAt,
	})
	c.logg.Info(logCtx, "notification arrival appended")
}
