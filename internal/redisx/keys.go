package redisx

import "time"

const (
	// Idempotency checkout: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order view: order:view:{order_id} -> assembled order JSON
	KeyOrderView = "order:view:%s"

	// Dedup processor events: dedup:recon:{event_id}
	KeyEventDedup = "dedup:recon:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderView   = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
