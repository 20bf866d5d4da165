package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purchase event types.
const (
	EventPurchaseCreated  = "purchase.created"
	EventPurchaseCanceled = "purchase.canceled"
)

// PurchaseEvent is published after a purchase is committed or canceled.
type PurchaseEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	PurchaseID int       `json:"purchase_id"`
	UserID     int       `json:"user_id"`
	BookID     int       `json:"book_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends raw payloads to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// EventPublisher delivers purchase events.
type EventPublisher interface {
	PublishPurchase(ctx context.Context, evt PurchaseEvent) error
}

// BrokerEvents encodes purchase events as JSON and sends them through a
// message broker.
type BrokerEvents struct {
	pub     Publisher
	channel string
}

func NewBrokerEvents(pub Publisher, channel string) *BrokerEvents {
	return &BrokerEvents{pub: pub, channel: channel}
}

func (b *BrokerEvents) PublishPurchase(ctx context.Context, evt PurchaseEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode purchase event: %w", err)
	}
	_, err = b.pub.Publish(ctx, b.channel, data, map[string]string{
		"type":     evt.Type,
		"event_id": evt.ID,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// DecodePurchaseEvent parses a payload produced by BrokerEvents.
func DecodePurchaseEvent(data []byte) (PurchaseEvent, error) {
	var evt PurchaseEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return PurchaseEvent{}, fmt.Errorf("decode purchase event: %w", err)
	}
	if evt.Type == "" || evt.PurchaseID == 0 {
		return PurchaseEvent{}, fmt.Errorf("decode purchase event: missing type or purchase id")
	}
	return evt, nil
}

type noopEvents struct{}

func (noopEvents) PublishPurchase(context.Context, PurchaseEvent) error { return nil }
