package fulfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/gateway"
	"github.com/xenking/dropship-fulfillment/internal/notify"
)

// --- In-memory stores ---

type memOrders struct {
	mu   sync.Mutex
	byID map[string]*order.Order
}

func newMemOrders() *memOrders {
	return &memOrders{byID: make(map[string]*order.Order)}
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.ExternalID == o.ExternalID {
			return order.ErrDuplicate
		}
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByExternalID(_ context.Context, externalID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.ExternalID == externalID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[o.ID]; !ok {
		return order.ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) ListByStatus(_ context.Context, status order.Status) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.byID {
		if o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSubs struct {
	mu   sync.Mutex
	byID map[string]*order.SupplierOrder
}

func newMemSubs() *memSubs {
	return &memSubs{byID: make(map[string]*order.SupplierOrder)}
}

func (m *memSubs) CreateBatch(_ context.Context, subs []*order.SupplierOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, so := range subs {
		cp := *so
		m.byID[so.ID] = &cp
	}
	return nil
}

func (m *memSubs) Get(_ context.Context, id string) (*order.SupplierOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	so, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *so
	return &cp, nil
}

func (m *memSubs) Update(_ context.Context, so *order.SupplierOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[so.ID]; !ok {
		return order.ErrNotFound
	}
	so.UpdatedAt = time.Now().UTC()
	cp := *so
	m.byID[so.ID] = &cp
	return nil
}

func (m *memSubs) ListByOrder(_ context.Context, orderID string) ([]*order.SupplierOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.SupplierOrder
	for _, so := range m.byID {
		if so.OrderID == orderID {
			cp := *so
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubs) ListByStatus(_ context.Context, status order.SupplierStatus) ([]*order.SupplierOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.SupplierOrder
	for _, so := range m.byID {
		if so.Status == status {
			cp := *so
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubs) ListActive(_ context.Context) ([]*order.SupplierOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.SupplierOrder
	for _, so := range m.byID {
		if !so.Status.Terminal() {
			cp := *so
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCatalog struct {
	mu   sync.Mutex
	rows map[string]*supplier.CatalogProduct
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: make(map[string]*supplier.CatalogProduct)}
}

func (m *memCatalog) UpsertBatch(_ context.Context, products []supplier.CatalogProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		cp := p
		m.rows[string(p.Supplier)+"/"+p.SKU] = &cp
	}
	return nil
}

func (m *memCatalog) Get(_ context.Context, sup supplier.Type, sku string) (*supplier.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[string(sup)+"/"+sku]
	if !ok {
		return nil, fmt.Errorf("supplier product %s/%s not found", sup, sku)
	}
	cp := *p
	return &cp, nil
}

type memMarks struct {
	mu   sync.Mutex
	mark string
}

func (m *memMarks) Get(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mark, nil
}

func (m *memMarks) Set(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mark = externalID
	return nil
}

// --- Storefront fake ---

type fakeShop struct {
	mu          sync.Mutex
	queue       []*order.Order
	fulfillSet  []order.Status
	fulfillAdds []string
}

func (s *fakeShop) ListNewOrders(_ context.Context, since string) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.queue {
		if since == "" || o.ExternalID > since {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeShop) GetOrder(_ context.Context, externalID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.queue {
		if o.ExternalID == externalID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *fakeShop) SetFulfillmentStatus(_ context.Context, _ string, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fulfillSet = append(s.fulfillSet, status)
	return nil
}

func (s *fakeShop) AddFulfillment(_ context.Context, _ string, carrier, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fulfillAdds = append(s.fulfillAdds, carrier+":"+number)
	return nil
}

// --- Gateway fake ---

type fakeGateway struct {
	typ supplier.Type

	mu         sync.Mutex
	details    map[string]*supplier.ProductSnapshot
	detailsErr error
	placeErr   error
	placed     []gateway.PlaceRequest
	nextRef    int
	statuses   map[string]order.SupplierStatus
	tracking   map[string]*order.Tracking
	canceled   []string
}

func newFakeGateway(typ supplier.Type) *fakeGateway {
	return &fakeGateway{
		typ:      typ,
		details:  make(map[string]*supplier.ProductSnapshot),
		statuses: make(map[string]order.SupplierStatus),
		tracking: make(map[string]*order.Tracking),
	}
}

func (g *fakeGateway) Supplier() supplier.Type { return g.typ }

func (g *fakeGateway) Place(_ context.Context, req gateway.PlaceRequest) (*gateway.PlaceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.placeErr != nil {
		return nil, g.placeErr
	}
	g.nextRef++
	ref := fmt.Sprintf("%s-%d", g.typ, g.nextRef)
	g.placed = append(g.placed, req)
	g.statuses[ref] = order.SupplierProcessing
	return &gateway.PlaceResult{SupplierRef: ref, Status: order.SupplierPending}, nil
}

func (g *fakeGateway) GetStatus(_ context.Context, ref string) (order.SupplierStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[ref]
	if !ok {
		return "", &gateway.APIError{Supplier: g.typ, StatusCode: 404, Message: "unknown order"}
	}
	return st, nil
}

func (g *fakeGateway) GetTracking(_ context.Context, ref string) (*order.Tracking, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracking[ref], nil
}

func (g *fakeGateway) Cancel(_ context.Context, ref, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, ref)
	g.statuses[ref] = order.SupplierCancelled
	return nil
}

func (g *fakeGateway) Search(_ context.Context, _ string) ([]supplier.ProductSnapshot, error) {
	return nil, nil
}

func (g *fakeGateway) GetDetails(_ context.Context, productID string) (*supplier.ProductSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detailsErr != nil {
		return nil, g.detailsErr
	}
	snap, ok := g.details[productID]
	if !ok {
		return nil, &gateway.APIError{Supplier: g.typ, StatusCode: 404, Message: "unknown product"}
	}
	cp := *snap
	return &cp, nil
}

// setStatus moves every placed order on this fake to the given status.
func (g *fakeGateway) setAllStatuses(st order.SupplierStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ref := range g.statuses {
		g.statuses[ref] = st
		if st.Shipped() {
			if _, ok := g.tracking[ref]; !ok {
				g.tracking[ref] = &order.Tracking{Carrier: "carrier-" + string(g.typ), Number: "TRK-" + ref}
			}
		}
	}
}

func (g *fakeGateway) placeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.placed)
}

// --- Notifier fake ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Kind == kind {
			c++
		}
	}
	return c
}

// --- Harness ---

type harness struct {
	orders   *memOrders
	subs     *memSubs
	marks    *memMarks
	catalog  *memCatalog
	shop     *fakeShop
	mega     *fakeGateway
	prime    *fakeGateway
	notifier *recordingNotifier
	orch     *Orchestrator
}

func newHarness(strategy supplier.Strategy) *harness {
	h := &harness{
		orders:   newMemOrders(),
		subs:     newMemSubs(),
		marks:    &memMarks{},
		catalog:  newMemCatalog(),
		shop:     &fakeShop{},
		mega:     newFakeGateway(supplier.TypeMegaSupply),
		prime:    newFakeGateway(supplier.TypePrimeParts),
		notifier: &recordingNotifier{},
	}
	gateways := map[supplier.Type]gateway.Gateway{
		supplier.TypeMegaSupply: h.mega,
		supplier.TypePrimeParts: h.prime,
	}
	dec := NewDecomposer(gateways, h.catalog, strategy, supplier.TypeMegaSupply)
	h.orch = New(
		Config{
			PollInterval:      time.Minute,
			StuckShippedAfter: 30 * 24 * time.Hour,
			MaxConcurrent:     4,
		},
		h.orders, h.subs, h.marks, h.shop, gateways, dec, h.notifier, zap.NewNop(),
	)
	return h
}
