package fulfill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/gateway"
	"github.com/xenking/dropship-fulfillment/internal/notify"
)

// queueSplitOrder seeds a storefront order whose two items route to the
// two different suppliers.
func queueSplitOrder(h *harness) *order.Order {
	h.mega.details["pA"] = snap(supplier.TypeMegaSupply, "pA", "9.99", "2.99", 10, 50, 4.8)
	h.prime.details["pB"] = snap(supplier.TypePrimeParts, "pB", "10.99", "1.50", 10, 50, 4.0)

	o := testOrder(lineItem("pA", 1, "14.99"), lineItem("pB", 2, "15.99"))
	o.ID = ""
	h.shop.queue = append(h.shop.queue, o)
	return o
}

func (h *harness) theOrder(t *testing.T) *order.Order {
	t.Helper()
	ord, err := h.orders.GetByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	return ord
}

func TestOrchestrator_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	queueSplitOrder(h)

	// Cycle 1: ingest, decompose, place both supplier orders.
	h.orch.cycle(ctx)

	ord := h.theOrder(t)
	assert.Equal(t, order.StatusProcessing, ord.Status)

	subs, err := h.subs.ListByOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, so := range subs {
		assert.Equal(t, order.SupplierProcessing, so.Status)
		assert.True(t, so.Placed())
	}
	require.NoError(t, order.VerifyPartition(ord, subs))

	assert.Equal(t, 1, h.mega.placeCount())
	assert.Equal(t, 1, h.prime.placeCount())
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderPlaced))
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderConfirmed))

	// Watermark advanced; re-running the cycle must not re-ingest.
	mark, _ := h.marks.Get(ctx)
	assert.Equal(t, "ext-1", mark)

	// Both suppliers ship: the order becomes SHIPPED exactly once.
	h.mega.setAllStatuses(order.SupplierShipped)
	h.prime.setAllStatuses(order.SupplierShipped)
	h.orch.cycle(ctx)

	ord = h.theOrder(t)
	assert.Equal(t, order.StatusShipped, ord.Status)
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderShipped))
	assert.Len(t, h.shop.fulfillAdds, 2, "both tracking numbers pushed to storefront")

	subs, _ = h.subs.ListByOrder(ctx, ord.ID)
	for _, so := range subs {
		require.NotNil(t, so.Tracking, "tracking captured on the shipped edge")
	}

	// Idle cycle: no child changed, no duplicate notification.
	h.orch.cycle(ctx)
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderShipped))

	// One supplier delivers: order stays SHIPPED.
	h.mega.setAllStatuses(order.SupplierDelivered)
	h.orch.cycle(ctx)
	ord = h.theOrder(t)
	assert.Equal(t, order.StatusShipped, ord.Status)
	assert.Equal(t, 0, h.notifier.count(notify.KindOrderDelivered))

	// Second supplier delivers: DELIVERED exactly once.
	h.prime.setAllStatuses(order.SupplierDelivered)
	h.orch.cycle(ctx)
	ord = h.theOrder(t)
	assert.Equal(t, order.StatusDelivered, ord.Status)
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderDelivered))

	// Further cycles never regress a delivered order.
	h.orch.cycle(ctx)
	ord = h.theOrder(t)
	assert.Equal(t, order.StatusDelivered, ord.Status)
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderDelivered))
}

func TestOrchestrator_IngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	queueSplitOrder(h)

	h.orch.cycle(ctx)
	h.orch.cycle(ctx)
	h.orch.cycle(ctx)

	assert.Equal(t, 1, h.mega.placeCount(), "re-delivered order must not be placed twice")
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderPlaced))
}

func TestOrchestrator_PartialPlacementFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	queueSplitOrder(h)

	h.prime.placeErr = &gateway.APIError{
		Supplier:   supplier.TypePrimeParts,
		StatusCode: 503,
		Message:    "upstream timeout",
		Transient:  true,
	}

	h.orch.cycle(ctx)

	ord := h.theOrder(t)
	assert.Equal(t, order.StatusError, ord.Status)
	assert.Contains(t, ord.ErrorMessage, "primeparts")
	assert.Contains(t, ord.ErrorMessage, "upstream timeout")
	assert.Equal(t, 1, h.notifier.count(notify.KindOrderIssue))

	subs, err := h.subs.ListByOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, so := range subs {
		switch so.Supplier {
		case supplier.TypeMegaSupply:
			// The succeeded sibling is left alone.
			assert.Equal(t, order.SupplierProcessing, so.Status)
			assert.True(t, so.Placed())
		case supplier.TypePrimeParts:
			assert.Equal(t, order.SupplierError, so.Status)
			assert.False(t, so.Placed())
			require.NotEmpty(t, so.ErrorLog)
			assert.Contains(t, so.ErrorLog[len(so.ErrorLog)-1].Message, "upstream timeout")
		}
	}
}

func TestOrchestrator_FailedOrderStaysErrorWhileSiblingAdvances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	queueSplitOrder(h)

	h.prime.placeErr = &gateway.APIError{
		Supplier:   supplier.TypePrimeParts,
		StatusCode: 503,
		Message:    "upstream timeout",
		Transient:  true,
	}

	h.orch.cycle(ctx)
	require.Equal(t, order.StatusError, h.theOrder(t).Status)

	// The placed sibling ships and then delivers, but the unplaced
	// child is still dead: the parent must hold ERROR until an operator
	// retries it, and no shipped notification fires.
	h.mega.setAllStatuses(order.SupplierShipped)
	h.orch.cycle(ctx)

	ord := h.theOrder(t)
	assert.Equal(t, order.StatusError, ord.Status)
	assert.Equal(t, 0, h.notifier.count(notify.KindOrderShipped))

	h.mega.setAllStatuses(order.SupplierDelivered)
	h.orch.cycle(ctx)

	ord = h.theOrder(t)
	assert.Equal(t, order.StatusError, ord.Status)
	assert.Equal(t, 0, h.notifier.count(notify.KindOrderDelivered))
}

func TestOrchestrator_NoSupplierAvailableMarksError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)

	o := testOrder(lineItem("ghost", 1, "5.00"))
	o.ID = ""
	h.shop.queue = append(h.shop.queue, o)

	h.orch.cycle(ctx)

	ord := h.theOrder(t)
	assert.Equal(t, order.StatusError, ord.Status)
	assert.Contains(t, ord.ErrorMessage, "decomposition failed")

	// No partial decomposition was persisted.
	subs, err := h.subs.ListByOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestOrchestrator_MalformedOrderRejectedBeforePersistence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	h.shop.queue = append(h.shop.queue, testOrder()) // no line items

	h.orch.cycle(ctx)

	_, err := h.orders.GetByExternalID(ctx, "ext-1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrchestrator_StuckShippedResweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(supplier.StrategyCheapest)
	queueSplitOrder(h)

	h.orch.cycle(ctx)
	h.mega.setAllStatuses(order.SupplierShipped)
	h.prime.setAllStatuses(order.SupplierShipped)
	h.orch.cycle(ctx)

	ord := h.theOrder(t)
	require.Equal(t, order.StatusShipped, ord.Status)

	// The suppliers delivered long ago, but nothing changed on our
	// side for over the threshold.
	h.mega.setAllStatuses(order.SupplierDelivered)
	h.prime.setAllStatuses(order.SupplierDelivered)
	h.orch.cfg.StuckShippedAfter = 0

	// Force the sweep path alone: mark children terminal-invisible to
	// the regular sweep by aging the order.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, h.orch.sweepStuck(ctx))

	ord = h.theOrder(t)
	assert.Equal(t, order.StatusDelivered, ord.Status)
}
