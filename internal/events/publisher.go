package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the redis pub/sub channel ticket events are mirrored to.
const Channel = "ticket-events"

var allEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketDeleted,
}

// RegisterLogSubscriber logs every dispatched event.
func RegisterLogSubscriber(dispatcher Dispatcher, logger *zap.Logger) {
	handler := func(_ context.Context, event Event) error {
		logger.Info("ticket event",
			zap.String("type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.String("actor_id", event.ActorID),
		)
		return nil
	}
	for _, eventType := range allEventTypes {
		dispatcher.Subscribe(eventType, handler)
	}
}

// RegisterRedisPublisher mirrors dispatched events onto a redis pub/sub
// channel for external consumers. Publish failures are logged, not raised;
// event fanout is best effort.
func RegisterRedisPublisher(dispatcher Dispatcher, client *redis.Client, logger *zap.Logger) {
	handler := func(ctx context.Context, event Event) error {
		body, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := client.Publish(ctx, Channel, body).Err(); err != nil {
			logger.Warn("failed to publish event to redis", zap.Error(err))
			return err
		}
		return nil
	}
	for _, eventType := range allEventTypes {
		dispatcher.Subscribe(eventType, handler)
	}
}
