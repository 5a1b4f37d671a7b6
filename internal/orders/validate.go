package orders

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
)

const (
	MaxQuantity        = 99
	MaxSpecialRequests = 200
	MaxTableNumber     = 10
)

var tableNumberPattern = regexp.MustCompile(`^[A-Za-z]?[0-9]+$`)

// ValidateItem checks one cart line. index is only used for the field path.
func ValidateItem(item CartItem, index int) error {
	prefix := fmt.Sprintf("items[%d]", index)
	if item.MenuItemID == "" {
		return apperr.Validation("cart", prefix+".menu_item_id", "is required")
	}
	if item.Quantity < 1 || item.Quantity > MaxQuantity {
		return apperr.Validation("cart", prefix+".quantity", fmt.Sprintf("must be between 1 and %d", MaxQuantity))
	}
	if item.UnitPrice < 0 {
		return apperr.Validation("cart", prefix+".unit_price", "must not be negative")
	}
	if utf8.RuneCountInString(item.SpecialRequests) > MaxSpecialRequests {
		return apperr.Validation("cart", prefix+".special_requests", fmt.Sprintf("must not exceed %d characters", MaxSpecialRequests))
	}
	return nil
}

func ValidateTableNumber(table string) error {
	if table == "" {
		return apperr.Validation("draft", "table_number", "is required")
	}
	if len(table) > MaxTableNumber || !tableNumberPattern.MatchString(table) {
		return apperr.Validation("draft", "table_number", "must be an optional letter followed by digits, at most 10 characters")
	}
	return nil
}

func ValidateDraft(d OrderDraft) error {
	if len(d.Items) == 0 {
		return apperr.Validation("draft", "items", "cannot be empty")
	}
	if err := ValidateTableNumber(d.TableNumber); err != nil {
		return err
	}
	if d.PaymentMethod == "" {
		return apperr.Validation("draft", "payment_method", "is required")
	}
	if !d.PaymentMethod.Valid() {
		return apperr.Validation("draft", "payment_method", fmt.Sprintf("unsupported method %q", d.PaymentMethod))
	}
	if utf8.RuneCountInString(d.SpecialRequests) > MaxSpecialRequests {
		return apperr.Validation("draft", "special_requests", fmt.Sprintf("must not exceed %d characters", MaxSpecialRequests))
	}
	for i, it := range d.Items {
		if err := ValidateItem(it, i); err != nil {
			return err
		}
	}
	return nil
}
