// Package notify maps order state transitions to the external
// notification dispatcher.
package notify

import (
	"context"
	"time"
)

// Kind names a customer-visible transition edge. Each kind fires at
// most once per order.
type Kind string

const (
	KindOrderPlaced    Kind = "order_placed"
	KindOrderConfirmed Kind = "order_confirmed"
	KindOrderShipped   Kind = "order_shipped"
	KindOrderDelivered Kind = "order_delivered"
	KindOrderCancelled Kind = "order_cancelled"
	KindOrderIssue     Kind = "order_issue"
)

// Event is one notification to dispatch.
type Event struct {
	OrderID    string            `json:"order_id"`
	ExternalID string            `json:"external_id"`
	Kind       Kind              `json:"kind"`
	Recipient  string            `json:"recipient"`
	Data       map[string]string `json:"data,omitempty"`
	At         time.Time         `json:"at"`
}

// Notifier delivers events to the notification dispatcher. Delivery
// failures must never roll back order state; callers log and move on.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
