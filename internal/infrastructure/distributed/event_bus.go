package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventPolicyChanged     EventType = "policy.changed"
	EventSessionDisconnect EventType = "session.disconnect"
)

// Event is a coordination message between gateway instances sharing
// one Redis. Policy changes and admin disconnects apply everywhere;
// document operations deliberately do not cross instances.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus provides event publishing and subscription for coordination
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"collabgate:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event.
// Events published by this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishPolicyChanged publishes the new policy so peer instances can
// evict their own rooms.
func (eb *EventBus) PublishPolicyChanged(ctx context.Context, policy *domain.CollaborationPolicy) error {
	payload, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	return eb.Publish(ctx, &Event{
		Type:    EventPolicyChanged,
		Payload: payload,
	})
}

// PublishSessionDisconnect asks whichever instance holds the session
// to drop it.
func (eb *EventBus) PublishSessionDisconnect(ctx context.Context, sessionID domain.SessionID) error {
	return eb.Publish(ctx, &Event{
		Type:      EventSessionDisconnect,
		SessionID: sessionID,
	})
}

// PolicyChanged implements ports.PolicyListener: local policy flips
// are forwarded to peer instances.
func (eb *EventBus) PolicyChanged(policy *domain.CollaborationPolicy) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := eb.PublishPolicyChanged(ctx, policy); err != nil {
		eb.logger.Warnw("failed to propagate policy change", "error", err)
	}
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

var _ ports.PolicyListener = (*EventBus)(nil)
