package redisx

import "time"

const (
	// Session cart: cart:{session_id} -> {"table_number": "...", "items": [...]}
	KeyCart = "cart:%s"

	// Checkout idempotency: idem:checkout:{key} -> order_id (or "" while claimed)
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
