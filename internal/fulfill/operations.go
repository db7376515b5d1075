package fulfill

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/notify"
)

// Operator-triggered operations. These run synchronously so the
// management surface can return the updated aggregate.

// RetryOrder re-activates an order stuck in ERROR. Only children that
// were never placed at a supplier (or failed) are re-submitted;
// already-placed ones are left untouched so the supplier is never
// double-charged.
func (o *Orchestrator) RetryOrder(ctx context.Context, id string) (*order.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusError {
		return nil, &order.InvalidTransitionError{ID: id, Status: string(ord.Status), Action: "retry"}
	}

	ord.Status = order.StatusNew
	ord.ErrorMessage = ""
	if err := o.orders.Update(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "reset order")
	}

	subs, err := o.subs.ListByOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load supplier orders")
	}

	if len(subs) == 0 {
		// Decomposition never succeeded, run it from scratch.
		o.activate(ctx, ord)
	} else {
		var resubmit []*order.SupplierOrder
		for _, so := range subs {
			if so.Placed() || so.Status.Terminal() {
				continue
			}
			if so.Status == order.SupplierError {
				so.RecordError("manual retry requested")
				so.Status = order.SupplierPending
				if err := o.subs.Update(ctx, so); err != nil {
					return nil, errors.Wrap(err, "reset supplier order")
				}
			}
			resubmit = append(resubmit, so)
		}

		ord.Status = order.StatusProcessing
		if err := o.orders.Update(ctx, ord); err != nil {
			return nil, errors.Wrap(err, "activate order")
		}
		o.submitAll(ctx, ord, resubmit)
	}

	return o.orders.Get(ctx, id)
}

// RetrySupplierOrder resets a single failed child to pending and
// re-submits only it. The audit log keeps the full failure history.
func (o *Orchestrator) RetrySupplierOrder(ctx context.Context, id string) (*order.SupplierOrder, error) {
	so, err := o.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if so.Status != order.SupplierError {
		return nil, &order.InvalidTransitionError{ID: id, Status: string(so.Status), Action: "retry"}
	}

	so.RecordError("manual retry requested")
	so.Status = order.SupplierPending
	if err := o.subs.Update(ctx, so); err != nil {
		return nil, errors.Wrap(err, "reset supplier order")
	}

	o.submit(ctx, so)

	// A successful resubmission may complete the parent's recovery.
	if so.Placed() {
		if ord, err := o.orders.Get(ctx, so.OrderID); err == nil && ord.Status == order.StatusError {
			if siblings, err := o.subs.ListByOrder(ctx, so.OrderID); err == nil && allPlacedOrTerminal(siblings) {
				ord.Status = order.StatusProcessing
				ord.ErrorMessage = ""
				o.updateOrder(ctx, ord)
			}
		}
	}

	return o.subs.Get(ctx, id)
}

func allPlacedOrTerminal(subs []*order.SupplierOrder) bool {
	for _, so := range subs {
		if !so.Placed() && !so.Status.Terminal() {
			return false
		}
	}
	return true
}

// CancelOrder cancels an order and all of its children. Refused when
// any child already shipped; otherwise every non-terminal child is
// cancelled best-effort at its supplier.
func (o *Orchestrator) CancelOrder(ctx context.Context, id, reason string) (*order.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord.Status.Terminal() {
		return nil, &order.InvalidTransitionError{ID: id, Status: string(ord.Status), Action: "cancel"}
	}

	subs, err := o.subs.ListByOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load supplier orders")
	}

	// Guard first: no state change when the cancel is refused.
	for _, so := range subs {
		if so.Status.Shipped() {
			return nil, &order.CancellationConflictError{
				OrderID:         id,
				SupplierOrderID: so.ID,
				Status:          so.Status,
			}
		}
	}

	for _, so := range subs {
		if so.Status.Terminal() {
			continue
		}
		if so.Placed() {
			if gw, ok := o.gateways[so.Supplier]; ok {
				if err := gw.Cancel(ctx, so.SupplierRef, reason); err != nil {
					// Best effort: record and continue, the order is
					// cancelled on our side regardless.
					so.RecordError("supplier cancel failed: " + err.Error())
				}
			}
		}
		so.Status = order.SupplierCancelled
		so.RecordError("cancelled: " + reason)
		o.updateSub(ctx, so)
	}

	ord.Status = order.StatusCancelled
	if err := o.orders.Update(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "persist cancellation")
	}
	o.pushStatus(ctx, ord)
	o.notify(ctx, ord, notify.KindOrderCancelled, map[string]string{"reason": reason})

	return ord, nil
}

// RefreshOrderStatus forces an immediate poll of every placed child and
// reconciles the parent, outside the regular cycle.
func (o *Orchestrator) RefreshOrderStatus(ctx context.Context, id string) (*order.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord.Status.Terminal() {
		return ord, nil
	}

	subs, err := o.subs.ListByOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load supplier orders")
	}
	for _, so := range subs {
		if !so.Placed() || so.Status.Terminal() {
			continue
		}
		o.poll(ctx, so)
	}

	if err := o.reconcileOrder(ctx, id); err != nil {
		return nil, err
	}
	return o.orders.Get(ctx, id)
}
