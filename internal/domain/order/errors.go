package order

import "fmt"

// Sentinel errors shared across the fulfillment engine.
var (
	ErrNotFound = fmt.Errorf("order not found")
	// ErrStale is returned by repositories when a conditional update
	// lost against a concurrent writer.
	ErrStale = fmt.Errorf("aggregate modified concurrently")
	// ErrNoSupplierAvailable means scoring found no supplier able to
	// source any line item of an order.
	ErrNoSupplierAvailable = fmt.Errorf("no supplier available")
	// ErrDuplicate is returned by Create when an order with the same
	// external id already exists. Re-ingest of a delivered-again
	// storefront order is a no-op, not a failure.
	ErrDuplicate = fmt.Errorf("order already ingested")
)

// UnroutableItemError indicates a single line item no supplier could
// source. The decomposer records the omission and continues.
type UnroutableItemError struct {
	ItemKey string
}

func (e *UnroutableItemError) Error() string {
	return fmt.Sprintf("no supplier can source item %s", e.ItemKey)
}

// CancellationConflictError rejects a cancel request because at least
// one child already shipped.
type CancellationConflictError struct {
	OrderID         string
	SupplierOrderID string
	Status          SupplierStatus
}

func (e *CancellationConflictError) Error() string {
	return fmt.Sprintf("cannot cancel order %s: supplier order %s is already %s",
		e.OrderID, e.SupplierOrderID, e.Status)
}

// InvalidTransitionError rejects an operator action that does not apply
// to the aggregate's current status.
type InvalidTransitionError struct {
	ID     string
	Status string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %s", e.Action, e.ID, e.Status)
}
