package orders

import (
	"context"
	"time"
)

// EventType names a committed order transition.
type EventType string

const (
	EventConfirmed EventType = "order_confirmed"
	EventRejected  EventType = "order_rejected"
	EventShipped   EventType = "order_shipped"
	EventDelivered EventType = "order_delivered"
)

// Event is published after a transition commits. Reason is set for rejections only.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	FullName   string    `json:"full_name,omitempty"`
	TotalPrice int64     `json:"total_price"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives order events.
//
//go:generate mockgen -destination=../mocks/mock_notifier.go -package=mocks . Notifier
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

func eventFor(to Status) (EventType, bool) {
	switch to {
	case StatusProcessing:
		return EventConfirmed, true
	case StatusCancelled:
		return EventRejected, true
	case StatusShipping:
		return EventShipped, true
	case StatusDelivered:
		return EventDelivered, true
	}
	return "", false
}
