package orders

import (
	"context"
	"time"
)

// Tx is one unit of work. Row locks taken through it are held until the
// surrounding WithinTx returns; nothing it writes is visible to others
// before then, and all of it is discarded if fn returns an error.
type Tx interface {
	Account(ctx context.Context, id string) (Account, error)

	// LockProduct returns the product row and holds it exclusively.
	LockProduct(ctx context.Context, id string) (Product, error)
	// DecrementStock fails with a *StockError instead of going below zero.
	DecrementStock(ctx context.Context, productID string, qty int) error

	// ClaimIdempotencyKey serializes units of work that share customerID
	// and key until they end, then reports the order already stored under
	// them, if any.
	ClaimIdempotencyKey(ctx context.Context, customerID, key string) (orderID string, found bool, err error)

	// InsertOrder writes the order and all of its items.
	InsertOrder(ctx context.Context, o Order) error
	// LockOrder returns the order with its items and holds the order row
	// exclusively.
	LockOrder(ctx context.Context, id string) (Order, error)
	// UpdateOrder persists status, shipment fields and updated_at, but only
	// if the stored status is still from.
	UpdateOrder(ctx context.Context, o Order, from Status) error
	// DeleteOrder removes the items, then the order.
	DeleteOrder(ctx context.Context, id string) error
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Order(ctx context.Context, id string) (Order, error)
	// StaleOrders lists ids of orders in status last updated at or before
	// the cutoff, oldest first.
	StaleOrders(ctx context.Context, status Status, cutoff time.Time) ([]string, error)
	CustomerOrders(ctx context.Context, customerID string) ([]Order, error)
	// SellerOrders returns orders newest first plus the total count. A
	// limit of zero returns every order.
	SellerOrders(ctx context.Context, sellerID string, limit, offset int) ([]Order, int, error)
	SellerProducts(ctx context.Context, sellerID string) ([]Product, error)
}

// Locker guards runs that should not overlap across processes.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}
