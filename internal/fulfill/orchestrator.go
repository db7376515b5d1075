package fulfill

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/gateway"
	"github.com/xenking/dropship-fulfillment/internal/notify"
	"github.com/xenking/dropship-fulfillment/internal/storefront"
)

// Config tunes the orchestrator loop.
type Config struct {
	// PollInterval is the pause between cycles.
	PollInterval time.Duration
	// StuckShippedAfter forces re-verification of orders sitting in
	// SHIPPED longer than this without full delivery.
	StuckShippedAfter time.Duration
	// MaxConcurrent bounds the fan-out of gateway calls within one
	// phase, respecting the suppliers' implicit rate limits.
	MaxConcurrent int
}

// Orchestrator runs the continuous fulfillment loop: ingest new orders,
// submit supplier orders, poll outstanding ones, reconcile parents and
// re-verify stragglers. It also exposes the operator-triggered
// retry/cancel operations.
type Orchestrator struct {
	cfg      Config
	orders   order.Repository
	subs     order.SupplierOrderRepository
	marks    order.WatermarkStore
	shop     storefront.Client
	gateways map[supplier.Type]gateway.Gateway
	dec      *Decomposer
	notifier notify.Notifier
	lg       *zap.Logger

	// seen screens external ids already ingested by this process, so
	// the common re-delivery case skips a store round-trip.
	seen *bloom.BloomFilter
}

// New wires an Orchestrator.
func New(
	cfg Config,
	orders order.Repository,
	subs order.SupplierOrderRepository,
	marks order.WatermarkStore,
	shop storefront.Client,
	gateways map[supplier.Type]gateway.Gateway,
	dec *Decomposer,
	notifier notify.Notifier,
	lg *zap.Logger,
) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Orchestrator{
		cfg:      cfg,
		orders:   orders,
		subs:     subs,
		marks:    marks,
		shop:     shop,
		gateways: gateways,
		dec:      dec,
		notifier: notifier,
		lg:       lg,
		seen:     bloom.NewWithEstimates(1_000_000, 0.001),
	}
}

// Run executes the polling loop until the context is cancelled.
// Cancellation is cooperative: the current phase drains before the loop
// stops.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.lg.Info("Fulfillment loop started",
		zap.Duration("interval", o.cfg.PollInterval),
		zap.Int("max_concurrent", o.cfg.MaxConcurrent),
	)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		o.cycle(ctx)

		select {
		case <-ctx.Done():
			o.lg.Info("Fulfillment loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle runs the four phases in order. Each phase is a barrier: its
// fan-out completes before the next phase starts. A phase failure is
// logged and the remaining phases still run.
func (o *Orchestrator) cycle(ctx context.Context) {
	if err := o.ingest(ctx); err != nil {
		o.lg.Error("Ingest phase failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}

	changed, err := o.sweepStatuses(ctx)
	if err != nil {
		o.lg.Error("Status sweep failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}

	o.reconcileAll(ctx, changed)
	if ctx.Err() != nil {
		return
	}

	if err := o.sweepStuck(ctx); err != nil {
		o.lg.Error("Stuck-shipment sweep failed", zap.Error(err))
	}
}

// ingest fetches storefront orders newer than the watermark, decomposes
// and submits them. The watermark only advances after the order is
// persisted, so a crash in between re-delivers the order next cycle
// (at-least-once; the external-id uniqueness makes re-delivery a no-op).
func (o *Orchestrator) ingest(ctx context.Context) error {
	mark, err := o.marks.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "read watermark")
	}

	incoming, err := o.shop.ListNewOrders(ctx, mark)
	if err != nil {
		return errors.Wrap(err, "list new orders")
	}

	for _, in := range incoming {
		if in.ExternalID == "" || len(in.Items) == 0 {
			o.lg.Warn("Rejecting malformed storefront order",
				zap.String("external_id", in.ExternalID),
				zap.Int("items", len(in.Items)),
			)
			continue
		}

		if o.seen.TestString(in.ExternalID) {
			if existing, err := o.orders.GetByExternalID(ctx, in.ExternalID); err == nil && existing != nil {
				continue
			}
		}

		if err := o.processNew(ctx, in); err != nil {
			o.lg.Error("Order ingest failed",
				zap.String("external_id", in.ExternalID),
				zap.Error(err),
			)
			continue
		}
		o.seen.AddString(in.ExternalID)

		if err := o.marks.Set(ctx, in.ExternalID); err != nil {
			o.lg.Error("Watermark update failed", zap.Error(err))
		}
	}
	return nil
}

// processNew persists the incoming order and activates fulfillment.
func (o *Orchestrator) processNew(ctx context.Context, in *order.Order) error {
	now := time.Now().UTC()
	in.ID = uuid.New().String()
	in.Status = order.StatusNew
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	if err := o.orders.Create(ctx, in); err != nil {
		if errors.Is(err, order.ErrDuplicate) {
			// Already ingested before a crash or by a prior cycle.
			return nil
		}
		return errors.Wrap(err, "persist order")
	}
	o.notify(ctx, in, notify.KindOrderPlaced, nil)

	o.activate(ctx, in)
	return nil
}

// activate decomposes an order, persists the children and submits them
// to their suppliers. Shared between ingest and whole-order retry.
func (o *Orchestrator) activate(ctx context.Context, ord *order.Order) {
	dec, err := o.dec.Decompose(ctx, ord)
	if err != nil {
		o.failOrder(ctx, ord, fmt.Sprintf("decomposition failed: %v", err))
		return
	}

	if len(dec.Skipped) > 0 {
		reasons := make([]string, len(dec.Skipped))
		for i, s := range dec.Skipped {
			reasons[i] = s.Key + ": " + s.Reason
		}
		ord.ErrorMessage = "unroutable items: " + strings.Join(reasons, "; ")
	}

	if err := o.subs.CreateBatch(ctx, dec.Subs); err != nil {
		o.failOrder(ctx, ord, fmt.Sprintf("persist supplier orders: %v", err))
		return
	}

	ord.Status = order.StatusProcessing
	o.updateOrder(ctx, ord)
	o.notify(ctx, ord, notify.KindOrderConfirmed, nil)

	o.submitAll(ctx, ord, dec.Subs)
}

// submitAll places the given supplier orders with bounded parallelism.
// If any placement exhausts its retries, the parent is marked ERROR
// with an aggregate message; successfully placed siblings are left
// alone.
func (o *Orchestrator) submitAll(ctx context.Context, ord *order.Order, subs []*order.SupplierOrder) {
	var failed atomic.Int32
	g := &errgroup.Group{}
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, so := range subs {
		g.Go(func() error {
			if !o.submit(ctx, so) {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		msg := fmt.Sprintf("%d of %d supplier placements failed", n, len(subs))
		var details []string
		for _, so := range subs {
			if len(so.ErrorLog) > 0 {
				last := so.ErrorLog[len(so.ErrorLog)-1]
				details = append(details, string(so.Supplier)+": "+last.Message)
			}
		}
		if len(details) > 0 {
			msg += " (" + strings.Join(details, "; ") + ")"
		}
		o.failOrder(ctx, ord, msg)
	}
}

// submit places one supplier order. Failures are recorded on the
// child's error log; success advances it to processing.
func (o *Orchestrator) submit(ctx context.Context, so *order.SupplierOrder) bool {
	gw, ok := o.gateways[so.Supplier]
	if !ok {
		so.RecordError("no gateway configured for supplier " + string(so.Supplier))
		so.Status = order.SupplierError
		o.updateSub(ctx, so)
		return false
	}

	result, err := gw.Place(ctx, gateway.PlaceRequest{
		ExternalRef: so.ID,
		Items:       so.Items,
		Address:     so.ShippingAddr,
	})
	if err != nil {
		so.RecordError("placement failed: " + err.Error())
		so.Status = order.SupplierError
		o.updateSub(ctx, so)
		return false
	}

	so.SupplierRef = result.SupplierRef
	so.Status = order.SupplierProcessing
	o.updateSub(ctx, so)
	return true
}

// sweepStatuses polls every placed non-terminal supplier order and
// returns the parent ids whose children changed.
func (o *Orchestrator) sweepStatuses(ctx context.Context) ([]string, error) {
	active, err := o.subs.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active supplier orders")
	}

	var (
		mu      sync.Mutex
		changed = make(map[string]struct{})
	)
	g := &errgroup.Group{}
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, so := range active {
		if !so.Placed() {
			continue
		}
		g.Go(func() error {
			if o.poll(ctx, so) {
				mu.Lock()
				changed[so.OrderID] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	return ids, nil
}

// poll fetches the supplier's current status for one child and persists
// any change, pulling tracking info on the shipped edge. Returns true
// when the child changed. A poll failure is isolated to this child.
func (o *Orchestrator) poll(ctx context.Context, so *order.SupplierOrder) bool {
	gw, ok := o.gateways[so.Supplier]
	if !ok {
		return false
	}

	status, err := gw.GetStatus(ctx, so.SupplierRef)
	if err != nil {
		so.RecordError("status poll failed: " + err.Error())
		o.updateSub(ctx, so)
		return false
	}
	if status == so.Status {
		return false
	}

	so.Status = status
	if status.Shipped() && so.Tracking == nil {
		tr, err := gw.GetTracking(ctx, so.SupplierRef)
		if err != nil {
			so.RecordError("tracking fetch failed: " + err.Error())
		} else {
			so.Tracking = tr
		}
	}
	o.updateSub(ctx, so)
	return true
}

// reconcileAll applies the reconciliation rule to every order with at
// least one updated child.
func (o *Orchestrator) reconcileAll(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		if err := o.reconcileOrder(ctx, id); err != nil {
			o.lg.Error("Reconciliation failed", zap.String("order_id", id), zap.Error(err))
		}
	}
}

// reconcileOrder derives the parent status from its children and, on a
// transition edge, pushes the update to the storefront and fires the
// notification exactly once.
func (o *Orchestrator) reconcileOrder(ctx context.Context, orderID string) error {
	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order")
	}
	subs, err := o.subs.ListByOrder(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load supplier orders")
	}

	statuses := make([]order.SupplierStatus, len(subs))
	for i, so := range subs {
		statuses[i] = so.Status
	}

	next, transitioned := order.Reconcile(ord.Status, statuses)
	if !transitioned {
		return nil
	}

	ord.Status = next
	if err := o.orders.Update(ctx, ord); err != nil {
		if errors.Is(err, order.ErrStale) {
			// Another writer won; the next cycle re-reads and retries.
			return nil
		}
		return errors.Wrap(err, "persist transition")
	}

	switch next {
	case order.StatusShipped:
		o.pushTracking(ctx, ord, subs)
		o.pushStatus(ctx, ord)
		o.notify(ctx, ord, notify.KindOrderShipped, trackingData(subs))
	case order.StatusDelivered:
		o.pushStatus(ctx, ord)
		o.notify(ctx, ord, notify.KindOrderDelivered, nil)
	}
	return nil
}

// sweepStuck re-verifies orders sitting in SHIPPED beyond the threshold
// without full delivery: every non-delivered child is polled again and
// the parent reconciled.
func (o *Orchestrator) sweepStuck(ctx context.Context) error {
	shipped, err := o.orders.ListByStatus(ctx, order.StatusShipped)
	if err != nil {
		return errors.Wrap(err, "list shipped orders")
	}

	cutoff := time.Now().UTC().Add(-o.cfg.StuckShippedAfter)
	for _, ord := range shipped {
		if ord.UpdatedAt.After(cutoff) {
			continue
		}

		o.lg.Warn("Re-verifying long-outstanding shipment",
			zap.String("order_id", ord.ID),
			zap.Time("last_update", ord.UpdatedAt),
		)

		subs, err := o.subs.ListByOrder(ctx, ord.ID)
		if err != nil {
			o.lg.Error("Load children failed", zap.String("order_id", ord.ID), zap.Error(err))
			continue
		}
		for _, so := range subs {
			if so.Status == order.SupplierDelivered || !so.Placed() {
				continue
			}
			o.poll(ctx, so)
		}
		if err := o.reconcileOrder(ctx, ord.ID); err != nil {
			o.lg.Error("Reconciliation failed", zap.String("order_id", ord.ID), zap.Error(err))
		}
	}
	return nil
}

// failOrder transitions an order to ERROR with a human-readable message
// and fires the issue notification.
func (o *Orchestrator) failOrder(ctx context.Context, ord *order.Order, msg string) {
	ord.Status = order.StatusError
	if ord.ErrorMessage != "" {
		ord.ErrorMessage += "; " + msg
	} else {
		ord.ErrorMessage = msg
	}
	o.updateOrder(ctx, ord)
	o.notify(ctx, ord, notify.KindOrderIssue, map[string]string{"error": msg})

	o.lg.Error("Order failed",
		zap.String("order_id", ord.ID),
		zap.String("external_id", ord.ExternalID),
		zap.String("error", msg),
	)
}

// pushStatus reports the customer-facing status to the storefront.
// Failures are logged only.
func (o *Orchestrator) pushStatus(ctx context.Context, ord *order.Order) {
	if err := o.shop.SetFulfillmentStatus(ctx, ord.ExternalID, ord.Status); err != nil {
		o.lg.Warn("Storefront status push failed",
			zap.String("order_id", ord.ID),
			zap.Error(err),
		)
	}
}

// pushTracking attaches every shipped child's tracking number to the
// storefront order.
func (o *Orchestrator) pushTracking(ctx context.Context, ord *order.Order, subs []*order.SupplierOrder) {
	for _, so := range subs {
		if so.Tracking == nil {
			continue
		}
		if err := o.shop.AddFulfillment(ctx, ord.ExternalID, so.Tracking.Carrier, so.Tracking.Number); err != nil {
			o.lg.Warn("Storefront fulfillment push failed",
				zap.String("order_id", ord.ID),
				zap.String("supplier_order_id", so.ID),
				zap.Error(err),
			)
		}
	}
}

// trackingData flattens child tracking numbers for notification
// context.
func trackingData(subs []*order.SupplierOrder) map[string]string {
	data := make(map[string]string)
	for _, so := range subs {
		if so.Tracking != nil {
			data[string(so.Supplier)] = so.Tracking.Number
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// notify dispatches an event; delivery failures never roll back state.
func (o *Orchestrator) notify(ctx context.Context, ord *order.Order, kind notify.Kind, data map[string]string) {
	ev := notify.Event{
		OrderID:    ord.ID,
		ExternalID: ord.ExternalID,
		Kind:       kind,
		Recipient:  ord.CustomerEmail,
		Data:       data,
		At:         time.Now().UTC(),
	}
	if err := o.notifier.Notify(ctx, ev); err != nil {
		o.lg.Warn("Notification delivery failed",
			zap.String("order_id", ord.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) updateOrder(ctx context.Context, ord *order.Order) {
	if err := o.orders.Update(ctx, ord); err != nil {
		o.lg.Error("Order update failed", zap.String("order_id", ord.ID), zap.Error(err))
	}
}

func (o *Orchestrator) updateSub(ctx context.Context, so *order.SupplierOrder) {
	if err := o.subs.Update(ctx, so); err != nil {
		o.lg.Error("Supplier order update failed", zap.String("supplier_order_id", so.ID), zap.Error(err))
	}
}
