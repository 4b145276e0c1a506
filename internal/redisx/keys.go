package redisx

import "time"

const (
	// Checkout idempotency shortcut: idem:checkout:{client_order_id} -> order_id.
	// The unique index on orders.client_order_id stays the source of truth.
	KeyIdemCheckout = "idem:checkout:%s"

	// Order status cache: order_status:{order_id} -> {"status":..., "payment_status":...}
	KeyOrderStatus = "order_status:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
