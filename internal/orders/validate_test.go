package orders

import (
	"strings"
	"testing"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func validDraft() OrderDraft {
	return OrderDraft{
		TableNumber:   "A12",
		PaymentMethod: MethodCash,
		Items: []CartItem{
			{MenuItemID: "m-1", Quantity: 2, UnitPrice: 250},
		},
	}
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(d *OrderDraft)
		wantErr       bool
		errorContains string
	}{
		{name: "valid", mutate: func(d *OrderDraft) {}},
		{name: "digits only table", mutate: func(d *OrderDraft) { d.TableNumber = "7" }},
		{
			name:          "empty items",
			mutate:        func(d *OrderDraft) { d.Items = nil },
			wantErr:       true,
			errorContains: "items",
		},
		{
			name:          "missing table",
			mutate:        func(d *OrderDraft) { d.TableNumber = "" },
			wantErr:       true,
			errorContains: "table_number",
		},
		{
			name:          "two letter table",
			mutate:        func(d *OrderDraft) { d.TableNumber = "AB1" },
			wantErr:       true,
			errorContains: "table_number",
		},
		{
			name:          "table too long",
			mutate:        func(d *OrderDraft) { d.TableNumber = "A1234567890" },
			wantErr:       true,
			errorContains: "table_number",
		},
		{
			name:          "missing method",
			mutate:        func(d *OrderDraft) { d.PaymentMethod = "" },
			wantErr:       true,
			errorContains: "payment_method",
		},
		{
			name:          "unknown method",
			mutate:        func(d *OrderDraft) { d.PaymentMethod = "BARTER" },
			wantErr:       true,
			errorContains: "payment_method",
		},
		{
			name:          "quantity over limit",
			mutate:        func(d *OrderDraft) { d.Items[0].Quantity = 100 },
			wantErr:       true,
			errorContains: "items[0].quantity",
		},
		{
			name:          "negative price",
			mutate:        func(d *OrderDraft) { d.Items[0].UnitPrice = -1 },
			wantErr:       true,
			errorContains: "items[0].unit_price",
		},
		{
			name:          "long item request",
			mutate:        func(d *OrderDraft) { d.Items[0].SpecialRequests = strings.Repeat("x", 201) },
			wantErr:       true,
			errorContains: "special_requests",
		},
		{
			name:    "200 multibyte characters fit",
			mutate:  func(d *OrderDraft) { d.SpecialRequests = strings.Repeat("辣", 200) },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			err := ValidateDraft(d)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}
