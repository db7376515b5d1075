// Package storefront talks to the storefront platform: the source of
// new customer orders and the sink for fulfillment updates.
package storefront

import (
	"context"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

// Client is the narrow storefront contract the orchestrator consumes.
type Client interface {
	// ListNewOrders returns orders placed after the given external id
	// watermark, oldest first. An empty watermark returns everything.
	ListNewOrders(ctx context.Context, sinceExternalID string) ([]*order.Order, error)
	GetOrder(ctx context.Context, externalID string) (*order.Order, error)
	SetFulfillmentStatus(ctx context.Context, externalID string, status order.Status) error
	AddFulfillment(ctx context.Context, externalID, carrier, trackingNumber string) error
}
