package cart

import (
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/shopspring/decimal"
)

var (
	TaxRate           = decimal.RequireFromString("0.05")
	ServiceChargeRate = decimal.RequireFromString("0.10")
)

type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	Tax           int64 `json:"tax"`
	ServiceCharge int64 `json:"service_charge"`
	TotalAmount   int64 `json:"total_amount"`
	ItemCount     int   `json:"item_count"`
}

// Calculate prices a cart. Tax and service charge are both taken from the
// subtotal, rounded half-up to a whole minor unit each, then summed.
func Calculate(items []orders.CartItem) (Totals, error) {
	var t Totals
	for i, it := range items {
		if err := orders.ValidateItem(it, i); err != nil {
			return Totals{}, err
		}
		t.Subtotal += it.UnitPrice * int64(it.Quantity)
		t.ItemCount += it.Quantity
	}
	sub := decimal.NewFromInt(t.Subtotal)
	t.Tax = roundHalfUp(sub.Mul(TaxRate))
	t.ServiceCharge = roundHalfUp(sub.Mul(ServiceChargeRate))
	t.TotalAmount = t.Subtotal + t.Tax + t.ServiceCharge
	return t, nil
}

// decimal.Round rounds half away from zero, which is half-up for the
// non-negative amounts a cart can produce.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Matches reports whether an order's server-side totals agree with t.
func (t Totals) Matches(o orders.Order) bool {
	return t.Subtotal == o.Subtotal &&
		t.Tax == o.Tax &&
		t.ServiceCharge == o.ServiceCharge &&
		t.TotalAmount == o.TotalAmount
}
