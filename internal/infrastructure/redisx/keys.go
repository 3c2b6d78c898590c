package redisx

import "time"

const (
	// Idempotent order placement: idem:order:create:{owner}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cart of one owner: cart:{owner_key} -> JSON []CartItem
	KeyCart = "cart:%s"

	// Per-day order number counter: seq:order:{yyyymmdd} -> int
	KeyOrderSequence = "seq:order:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLCart        = 7 * 24 * time.Hour
	TTLSequence    = 48 * time.Hour
)
