package orders

import "time"

// All money is in minor currency units.

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodWallet       PaymentMethod = "WALLET"
	MethodDeviceWallet PaymentMethod = "DEVICE_WALLET"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodWallet, MethodDeviceWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type CartItem struct {
	MenuItemID      string `json:"menu_item_id"`
	Name            string `json:"name,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type OrderDraft struct {
	TableNumber     string        `json:"table_number"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	SpecialRequests string        `json:"special_requests,omitempty"`
	Items           []CartItem    `json:"items"`
}

type OrderItem struct {
	ID              string `json:"id,omitempty"`
	MenuItemID      string `json:"menu_item_id"`
	Name            string `json:"name,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id,omitempty"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	Tax           int64         `json:"tax"`
	ServiceCharge int64         `json:"service_charge"`
	TotalAmount   int64         `json:"total_amount"`
	Status        Status        `json:"status"`
	TableNumber   string        `json:"table_number"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	EstimatedTime *int          `json:"estimated_time,omitempty"` // minutes
}

type Payment struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	Method        PaymentMethod     `json:"method"`
	Amount        int64             `json:"amount"`
	Status        PaymentStatus     `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	ProviderData  map[string]string `json:"provider_data,omitempty"`
}

// StaffOverview is the aggregate returned by GET /staff/overview.
type StaffOverview struct {
	Counts       map[Status]int `json:"counts"`
	TotalOrders  int            `json:"total_orders"`
	RevenueToday int64          `json:"revenue_today"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ActiveCount counts in-progress orders with the same rule the customer view uses.
func (o StaffOverview) ActiveCount() int {
	n := 0
	for s, c := range o.Counts {
		if IsActive(s) {
			n += c
		}
	}
	return n
}

type StaffDashboard struct {
	StaffID        string         `json:"staff_id"`
	AssignedOrders []Order        `json:"assigned_orders"`
	Counts         map[Status]int `json:"counts"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
