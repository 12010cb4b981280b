package events

import (
	"context"
	"time"
)

// OrderEvent is published for every notification dispatched about an order.
type OrderEvent struct {
	EventID   string                 `json:"event_id"`
	Type      string                 `json:"type"`
	OrderID   string                 `json:"order_id,omitempty"`
	UserID    string                 `json:"user_id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

//go:generate mockgen -source=events.go -destination=mocks/mock_publisher.go -package=mocks

// Publisher sends order events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event OrderEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
