package redisx

import "time"

const (
	// View order untuk GET /orders/{id}: cache:order:{order_id} -> JSON
	KeyOrderView = "cache:order:%s"

	// Daftar produk aktif: cache:products -> JSON array
	KeyProducts = "cache:products"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderView = 5 * time.Minute
	// view yang masih bisa berubah (pembayaran telat, refund)
	TTLOrderViewLive = 15 * time.Second
	TTLProducts      = time.Minute
	TTLDedup         = 48 * time.Hour
)

// Entity dan event untuk Invalidate.
const (
	EntityOrder   = "order"
	EntityProduct = "product"

	EventCreate = "create"
	EventUpdate = "update"
	EventDelete = "delete"
)
