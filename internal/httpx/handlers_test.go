package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/syncpoll"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory order service covering every backend role the
// handlers reach.
type memBackend struct {
	mu     sync.Mutex
	orders map[string]orders.Order
	pays   map[string]orders.Payment
	gets   int
}

func newMemBackend() *memBackend {
	return &memBackend{orders: map[string]orders.Order{}, pays: map[string]orders.Payment{}}
}

func (b *memBackend) CreateOrder(_ context.Context, d orders.OrderDraft, _ string) (orders.Order, error) {
	t, err := cart.Calculate(d.Items)
	if err != nil {
		return orders.Order{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o := orders.Order{
		ID:            fmt.Sprintf("ord-%d", len(b.orders)+1),
		CustomerID:    "cust-1",
		TableNumber:   d.TableNumber,
		PaymentMethod: d.PaymentMethod,
		Subtotal:      t.Subtotal,
		Tax:           t.Tax,
		ServiceCharge: t.ServiceCharge,
		TotalAmount:   t.TotalAmount,
		Status:        orders.StatusPendingPayment,
	}
	b.orders[o.ID] = o
	return o, nil
}

func (b *memBackend) GetOrder(_ context.Context, id string) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	o, ok := b.orders[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.KindNotFound, "orders.get", "order "+id+" not found")
	}
	return o, nil
}

func (b *memBackend) CreatePayment(_ context.Context, orderID string, m orders.PaymentMethod) (orders.Payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := orders.Payment{ID: fmt.Sprintf("pay-%d", len(b.pays)+1), OrderID: orderID, Method: m,
		Amount: b.orders[orderID].TotalAmount, Status: orders.PaymentPending}
	b.pays[p.ID] = p
	return p, nil
}

func (b *memBackend) ConfirmPayment(_ context.Context, id, txid string, _ map[string]string) (orders.Payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pays[id]
	p.Status, p.TransactionID = orders.PaymentCompleted, txid
	b.pays[id] = p
	o := b.orders[p.OrderID]
	o.Status = orders.StatusConfirmed
	b.orders[o.ID] = o
	return p, nil
}

func (b *memBackend) CancelOrder(ctx context.Context, id, _ string) (orders.Order, error) {
	return b.UpdateStatus(ctx, id, orders.StatusCancelled)
}

func (b *memBackend) UpdateStatus(_ context.Context, id string, s orders.Status) (orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	o.Status = s
	b.orders[id] = o
	return o, nil
}

func (b *memBackend) ListOrders(_ context.Context, customerID string) ([]orders.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []orders.Order
	for _, o := range b.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (b *memBackend) StaffOverview(context.Context) (orders.StaffOverview, error) {
	return orders.StaffOverview{Counts: map[orders.Status]int{}}, nil
}

func (b *memBackend) StaffDashboard(_ context.Context, staffID string) (orders.StaffDashboard, error) {
	return orders.StaffDashboard{StaffID: staffID}, nil
}

func (b *memBackend) put(o orders.Order) {
	b.mu.Lock()
	b.orders[o.ID] = o
	b.mu.Unlock()
}

type walletStub struct{ open map[string]bool }

func (w *walletStub) Cancel(_ context.Context, orderID string) error {
	if !w.open[orderID] {
		return apperr.New(apperr.KindNotFound, "wallet.cancel", "no open reservation")
	}
	delete(w.open, orderID)
	return nil
}

type fixture struct {
	srv     *httptest.Server
	backend *memBackend
	views   *syncpoll.Views
	rdb     *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := newMemBackend()
	gateways := payments.NewRegistry(payments.Cash{})
	sessions := &checkout.Registry{
		Store: &cart.RedisStore{Redis: rdb},
		New: func(*cart.Session) *checkout.Orchestrator {
			return &checkout.Orchestrator{API: b, Gateways: gateways, Guard: &checkout.RedisGuard{Redis: rdb}}
		},
	}
	views := &syncpoll.Views{Source: b}
	t.Cleanup(views.CloseAll)

	r := NewRouter()
	Register(r,
		&CartHandler{Sessions: sessions},
		&CheckoutHandler{Sessions: sessions, Wallet: &walletStub{open: map[string]bool{"ord-9": true}}, Redis: rdb},
		&OrdersHandler{API: b, Redis: rdb},
		&ViewsHandler{Views: views},
	)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, backend: b, views: views, rdb: rdb}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(HeaderSession, "sess-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/cart/table", tableReq{TableNumber: "A12"}, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/cart/items", orders.CartItem{MenuItemID: "burger", Quantity: 2, UnitPrice: 250}, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/cart/items", orders.CartItem{MenuItemID: "tea", Quantity: 1, UnitPrice: 80}, nil))
}

func TestCart_RequiresSession(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/cart")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCart_EditAndTotals(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	var totals cart.Totals
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/cart/totals", nil, &totals))
	assert.Equal(t, cart.Totals{Subtotal: 580, Tax: 29, ServiceCharge: 58, TotalAmount: 667, ItemCount: 3}, totals)

	var c cartResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/cart/items/tea", quantityReq{Quantity: 3}, &c))
	assert.Equal(t, int64(740), c.Totals.Subtotal)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/cart/items/burger", nil, &c))
	require.Len(t, c.Items, 1)

	var e errorResp
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/cart/items/tea", quantityReq{Quantity: 100}, &e))
	assert.Equal(t, "VALIDATION", e.Kind)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/cart/items/nope", quantityReq{Quantity: 1}, &e))

	// an invalid replacement leaves the cart as it was
	bad := putCartReq{TableNumber: "A12", Items: []orders.CartItem{{MenuItemID: "x", Quantity: 0, UnitPrice: 1}}}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/cart", bad, &e))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/cart", nil, &c))
	assert.Equal(t, "A12", c.TableNumber)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestCheckout_CashClearsCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	var out checkoutResp
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/checkout", checkoutReq{PaymentMethod: orders.MethodCash}, &out))
	assert.Equal(t, "ord-1", out.OrderID)
	assert.Equal(t, checkout.StateComplete, out.State.State)

	var c cartResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/cart", nil, &c))
	assert.Empty(t, c.Items)
	assert.Equal(t, "A12", c.TableNumber, "table survives a completed checkout")

	o, err := f.backend.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
}

func TestCheckout_ErrorsCarryStep(t *testing.T) {
	f := newFixture(t)

	var e errorResp
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/checkout", checkoutReq{PaymentMethod: orders.MethodCash}, &e))
	assert.Equal(t, "VALIDATION", e.Kind)
	assert.Equal(t, checkout.StepOrder, e.Step)

	f.fillCart(t)
	require.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/checkout", checkoutReq{PaymentMethod: orders.MethodCard}, &e))
	assert.Equal(t, "GATEWAY_CONFIG", e.Kind)
	assert.Equal(t, "ord-1", e.OrderID)

	var s checkout.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/checkout/state", nil, &s))
	assert.Equal(t, checkout.StateFailed, s.State)

	var out checkoutResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/retry", checkoutReq{PaymentMethod: orders.MethodCash}, &out))
	assert.Equal(t, "ord-1", out.OrderID)
}

func TestOrders_CancelAndStatus(t *testing.T) {
	f := newFixture(t)
	f.backend.put(orders.Order{ID: "ord-7", Status: orders.StatusPreparing})
	f.backend.put(orders.Order{ID: "ord-8", Status: orders.StatusPendingPayment})

	var e errorResp
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/orders/ord-7/cancel", cancelReq{Reason: "late"}, &e))
	assert.Equal(t, "INVALID_TRANSITION", e.Kind)

	var o orders.Order
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/orders/ord-8/cancel", cancelReq{Reason: "changed mind"}, &o))
	assert.Equal(t, orders.StatusCancelled, o.Status)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/orders/ord-7/status", statusReq{Status: orders.StatusReady}, &o))
	assert.Equal(t, orders.StatusReady, o.Status)

	var st statusResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-7/status?surface=staff", nil, &st))
	assert.True(t, st.Cached, "the update wrote through to the cache")
	assert.Equal(t, orders.StatusReady, st.Status)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/orders/ord-7/status", statusReq{Status: orders.StatusCompleted}, &o))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-7/status?surface=staff", nil, &st))
	assert.Equal(t, orders.StatusCompleted, st.Status)
	assert.Equal(t, "Delivered", st.Label)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/orders/missing", nil, &e))
}

func TestOrders_StatusCacheFollowsCancel(t *testing.T) {
	f := newFixture(t)
	f.backend.put(orders.Order{ID: "ord-1", Status: orders.StatusConfirmed})

	var st statusResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-1/status", nil, &st))
	assert.False(t, st.Cached)
	assert.Equal(t, orders.StatusConfirmed, st.Status)

	var o orders.Order
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/orders/ord-1/cancel", cancelReq{Reason: "kitchen closed"}, &o))
	assert.Equal(t, orders.StatusCancelled, o.Status)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-1/status", nil, &st))
	assert.Equal(t, orders.StatusCancelled, st.Status)
	assert.Equal(t, "Cancelled", st.Label)
}

func TestCheckout_PaymentDropsCachedStatus(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	var e errorResp
	require.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/checkout", checkoutReq{PaymentMethod: orders.MethodCard}, &e))
	var st statusResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-1/status", nil, &st))
	assert.Equal(t, orders.StatusPendingPayment, st.Status)

	var out checkoutResp
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/checkout/retry", checkoutReq{PaymentMethod: orders.MethodCash}, &out))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/ord-1/status", nil, &st))
	assert.False(t, st.Cached)
	assert.Equal(t, orders.StatusConfirmed, st.Status)
}

func TestViews_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.backend.put(orders.Order{ID: "ord-1", CustomerID: "cust-1", Status: orders.StatusPreparing})

	var opened openResp
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/views/customer/cust-1", nil, &opened))
	require.NotEmpty(t, opened.ViewID)

	require.Eventually(t, func() bool {
		s, err := f.views.Snapshot(opened.ViewID)
		return err == nil && len(s.Orders) == 1
	}, time.Second, 5*time.Millisecond)

	var snap syncpoll.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/views/"+opened.ViewID, nil, &snap))
	assert.Equal(t, syncpoll.KindCustomer, snap.Kind)
	assert.Equal(t, 1, snap.ActiveCount)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/views/"+opened.ViewID+"/focus", nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/views/"+opened.ViewID, nil, nil))
	var e errorResp
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/views/"+opened.ViewID, nil, &e))

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/views/staff/s1", nil, &opened))
	assert.Equal(t, 1, f.views.Len())
}

func TestWalletCancel(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/payments/wallet/ord-9/cancel", nil, nil))
	var e errorResp
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/payments/wallet/ord-9/cancel", nil, &e))
}
