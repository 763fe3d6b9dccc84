package redisx

import "time"

const (
	// Idempotent checkout: idem:order:create:{customer_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order status cache: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Seller dashboard cache: seller_summary:{seller_id} -> SellerSummary JSON
	KeySellerSummary = "seller_summary:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cross-process lock: lock:{name} -> owner token
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLStatusCache  = 5 * time.Minute
	TTLSummaryCache = time.Minute
	TTLDedup        = 48 * time.Hour
)
