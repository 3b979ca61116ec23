package events

import (
	"context"
	"encoding/json"

	"marketslip/internal/slip/models"
)

// Publisher is implemented by AMQPPublisher and KafkaPublisher.
type Publisher interface {
	EnsureTopology(ctx context.Context) error
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// StatusChange names the reservation whose status moved.
type StatusChange struct {
	MarketID      string
	ReservationID string
	SlipID        string
	Status        models.ReservationStatus
}

// BuildStatusEvent renders change in the standard event shape.
func BuildStatusEvent(change StatusChange) models.ReservationStatusEvent {
	return models.ReservationStatusEvent{
		Event:         models.EventUpdateReservationStatus,
		ReservationID: change.ReservationID,
		MarketID:      change.MarketID,
		Status:        change.Status,
		SlipID:        change.SlipID,
	}
}

// StatusNotifier announces reservation status changes.
type StatusNotifier struct {
	publisher  Publisher
	routingKey string
}

func NewStatusNotifier(publisher Publisher) *StatusNotifier {
	return &StatusNotifier{publisher: publisher, routingKey: RoutingKeyReservationStatus}
}

// PublishStatusChange publishes the standard event for change, or override
// verbatim when it is non-nil.
func (n *StatusNotifier) PublishStatusChange(ctx context.Context, change StatusChange, override map[string]any) error {
	if override != nil {
		return n.publisher.Publish(ctx, n.routingKey, override)
	}
	return n.publisher.Publish(ctx, n.routingKey, BuildStatusEvent(change))
}

// Republish sends an already encoded event again.
func (n *StatusNotifier) Republish(ctx context.Context, routingKey string, payload []byte) error {
	if routingKey == "" {
		routingKey = n.routingKey
	}
	return n.publisher.Publish(ctx, routingKey, json.RawMessage(payload))
}
