package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
)

// fakeBackend is an in-memory order service.
type fakeBackend struct {
	mu           sync.Mutex
	orders       map[string]orders.Order
	payments     map[string]orders.Payment
	createOrders int
	createPays   int
	confirms     int
	taxSkew      int64 // added to the backend's tax to force a totals mismatch
	paySkew      int64
	failConfirm  error
	gate         chan struct{} // when set, CreateOrder waits on it
	entered      chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{orders: map[string]orders.Order{}, payments: map[string]orders.Payment{}}
}

func (b *fakeBackend) CreateOrder(ctx context.Context, d orders.OrderDraft, key string) (orders.Order, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return orders.Order{}, ctx.Err()
		}
	}
	t, err := cart.Calculate(d.Items)
	if err != nil {
		return orders.Order{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createOrders++
	o := orders.Order{
		ID:            fmt.Sprintf("ord-%d", b.createOrders),
		TableNumber:   d.TableNumber,
		PaymentMethod: d.PaymentMethod,
		Subtotal:      t.Subtotal,
		Tax:           t.Tax + b.taxSkew,
		ServiceCharge: t.ServiceCharge,
		TotalAmount:   t.TotalAmount + b.taxSkew,
		Status:        orders.StatusPendingPayment,
	}
	for _, it := range d.Items {
		o.Items = append(o.Items, orders.OrderItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	b.orders[o.ID] = o
	return o, nil
}

func (b *fakeBackend) GetOrder(_ context.Context, id string) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.KindNotFound, "orders.get", id)
	}
	return o, nil
}

func (b *fakeBackend) CreatePayment(_ context.Context, orderID string, m orders.PaymentMethod) (orders.Payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[orderID]
	b.createPays++
	p := orders.Payment{
		ID:      fmt.Sprintf("pay-%d", b.createPays),
		OrderID: orderID,
		Method:  m,
		Amount:  o.TotalAmount + b.paySkew,
		Status:  orders.PaymentPending,
	}
	b.payments[p.ID] = p
	return p, nil
}

func (b *fakeBackend) ConfirmPayment(_ context.Context, id, txid string, data map[string]string) (orders.Payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirms++
	if b.failConfirm != nil {
		return orders.Payment{}, b.failConfirm
	}
	p := b.payments[id]
	p.Status = orders.PaymentCompleted
	p.TransactionID = txid
	p.ProviderData = data
	b.payments[id] = p
	o := b.orders[p.OrderID]
	o.Status = orders.StatusConfirmed
	b.orders[o.ID] = o
	return p, nil
}

func (b *fakeBackend) CancelOrder(_ context.Context, id, _ string) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	o.Status = orders.StatusCancelled
	b.orders[id] = o
	return o, nil
}

func (b *fakeBackend) UpdateStatus(_ context.Context, id string, s orders.Status) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	o.Status = s
	b.orders[id] = o
	return o, nil
}

func (b *fakeBackend) put(o orders.Order) {
	b.mu.Lock()
	b.orders[o.ID] = o
	b.mu.Unlock()
}

func (b *fakeBackend) counts() (createOrders, createPays, confirms int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createOrders, b.createPays, b.confirms
}

func (b *fakeBackend) payment(id string) orders.Payment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payments[id]
}

// scriptedGateway fails with the queued errors, then succeeds.
type scriptedGateway struct {
	method orders.PaymentMethod
	mu     sync.Mutex
	errs   []error
	calls  int
	hold   string // open provider hold reported to the registry
}

func (g *scriptedGateway) Method() orders.PaymentMethod { return g.method }

func (g *scriptedGateway) Process(_ context.Context, o orders.Order, amount int64) (payments.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return payments.Result{}, err
	}
	return payments.Result{TransactionID: fmt.Sprintf("%s-tx-%d", g.method, g.calls), TradeNo: payments.NewTradeNo("T")}, nil
}

func (g *scriptedGateway) OpenHold(context.Context, string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hold, g.hold != "", nil
}

func (g *scriptedGateway) setHold(ref string) {
	g.mu.Lock()
	g.hold = ref
	g.mu.Unlock()
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env orders.Envelope) error {
	p.mu.Lock()
	p.events = append(p.events, env)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}
