package cart

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

// Cart is the session-owned cart: line items plus the selected table.
// It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	table string
	order []string // insertion order of menu item ids
	items map[string]orders.CartItem
}

func New() *Cart {
	return &Cart{items: make(map[string]orders.CartItem)}
}

// Add merges into an existing line for the same menu item.
func (c *Cart) Add(item orders.CartItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := item
	if cur, ok := c.items[item.MenuItemID]; ok {
		merged = cur
		merged.Quantity += item.Quantity
		merged.UnitPrice = item.UnitPrice // latest menu price wins
		if item.SpecialRequests != "" {
			merged.SpecialRequests = item.SpecialRequests
		}
	}
	if err := orders.ValidateItem(merged, len(c.order)); err != nil {
		return err
	}
	if _, ok := c.items[item.MenuItemID]; !ok {
		c.order = append(c.order, item.MenuItemID)
	}
	c.items[item.MenuItemID] = merged
	return nil
}

func (c *Cart) SetQuantity(menuItemID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.items[menuItemID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "cart.set_quantity", "item %s not in cart", menuItemID)
	}
	cur.Quantity = qty
	if err := orders.ValidateItem(cur, c.indexOf(menuItemID)); err != nil {
		return err
	}
	c.items[menuItemID] = cur
	return nil
}

func (c *Cart) Remove(menuItemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[menuItemID]; !ok {
		return
	}
	delete(c.items, menuItemID)
	i := c.indexOf(menuItemID)
	c.order = append(c.order[:i], c.order[i+1:]...)
}

func (c *Cart) SetTable(table string) error {
	if err := orders.ValidateTableNumber(table); err != nil {
		return err
	}
	c.mu.Lock()
	c.table = table
	c.mu.Unlock()
	return nil
}

func (c *Cart) Table() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

// Clear empties the items; the table number is kept because diners stay seated.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = make(map[string]orders.CartItem)
	c.order = nil
	c.mu.Unlock()
}

func (c *Cart) Items() []orders.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]orders.CartItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cart) Totals() (Totals, error) {
	return Calculate(c.Items())
}

// Draft snapshots the cart into a checkout draft.
func (c *Cart) Draft(method orders.PaymentMethod, specialRequests string) orders.OrderDraft {
	return orders.OrderDraft{
		TableNumber:     c.Table(),
		PaymentMethod:   method,
		SpecialRequests: specialRequests,
		Items:           c.Items(),
	}
}

func (c *Cart) indexOf(id string) int {
	for i, v := range c.order {
		if v == id {
			return i
		}
	}
	return -1
}

// snapshot is the persisted form.
type snapshot struct {
	TableNumber string            `json:"table_number"`
	Items       []orders.CartItem `json:"items"`
}

func (c *Cart) snapshot() snapshot {
	return snapshot{TableNumber: c.Table(), Items: c.Items()}
}

func fromSnapshot(s snapshot) (*Cart, error) {
	c := New()
	c.table = s.TableNumber
	for i, it := range s.Items {
		if err := orders.ValidateItem(it, i); err != nil {
			return nil, fmt.Errorf("restore cart: %w", err)
		}
		if _, dup := c.items[it.MenuItemID]; dup {
			continue
		}
		c.order = append(c.order, it.MenuItemID)
		c.items[it.MenuItemID] = it
	}
	return c, nil
}

// Session binds one session's cart to its store.
type Session struct {
	ID    string
	Cart  *Cart
	store Store
}

// Open loads the session's cart, or starts an empty one.
func Open(ctx context.Context, store Store, sessionID string) (*Session, error) {
	c, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Session{ID: sessionID, Cart: c, store: store}, nil
}

func (s *Session) Save(ctx context.Context) error {
	return s.store.Save(ctx, s.ID, s.Cart)
}

// Clear empties the cart and persists the empty state. Used after a
// successful checkout and on logout.
func (s *Session) Clear(ctx context.Context) error {
	s.Cart.Clear()
	if s.Cart.Table() == "" {
		return s.store.Delete(ctx, s.ID)
	}
	return s.store.Save(ctx, s.ID, s.Cart)
}

// Logout drops everything, table number included.
func (s *Session) Logout(ctx context.Context) error {
	s.Cart = New()
	return s.store.Delete(ctx, s.ID)
}

// SortedItems returns items ordered by menu item id; used for canonical hashing.
func SortedItems(items []orders.CartItem) []orders.CartItem {
	out := append([]orders.CartItem(nil), items...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].MenuItemID != out[j].MenuItemID {
			return out[i].MenuItemID < out[j].MenuItemID
		}
		return out[i].Quantity < out[j].Quantity
	})
	return out
}
