package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

// Cache holds the derived, rebuildable state kept in Redis. Losing any of
// it only costs a database read.
type Cache struct {
	RDB *redis.Client
}

type StatusEntry struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (c *Cache) SetOrderStatus(ctx context.Context, orderID string, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *Cache) OrderStatus(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	var e StatusEntry
	ok, err := c.getJSON(ctx, fmt.Sprintf(KeyOrderStatus, orderID), &e)
	return e, ok, err
}

func (c *Cache) DropOrderStatus(ctx context.Context, orderID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

func (c *Cache) SellerSummary(ctx context.Context, sellerID string) (orders.SellerSummary, bool, error) {
	var s orders.SellerSummary
	ok, err := c.getJSON(ctx, fmt.Sprintf(KeySellerSummary, sellerID), &s)
	return s, ok, err
}

func (c *Cache) PutSellerSummary(ctx context.Context, s orders.SellerSummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeySellerSummary, s.SellerID), b, TTLSummaryCache).Err()
}

func (c *Cache) InvalidateSeller(ctx context.Context, sellerID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeySellerSummary, sellerID)).Err()
}

// CheckoutFor returns the order a customer created earlier under an
// idempotency key. A miss is not authoritative; the database decides.
func (c *Cache) CheckoutFor(ctx context.Context, customerID, key string) (string, bool, error) {
	id, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, customerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *Cache) RememberCheckout(ctx context.Context, customerID, key, orderID string) error {
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, customerID, key), orderID, TTLIdempotency).Err()
}

// OrderSwept brings the cache in line with a sweep: completed orders get
// their new status, purged ones lose their entry, and the seller summary
// is dropped either way.
func (c *Cache) OrderSwept(ctx context.Context, o orders.Order, purged bool) error {
	var err error
	if purged {
		err = c.DropOrderStatus(ctx, o.ID)
	} else {
		err = c.SetOrderStatus(ctx, o.ID, StatusEntry{Status: o.Status, UpdatedAt: o.UpdatedAt})
	}
	if err != nil {
		return err
	}
	return c.InvalidateSeller(ctx, o.SellerID)
}

// MarkProcessed records an event id for a consumer. It reports false when
// the id was already recorded.
func (c *Cache) MarkProcessed(ctx context.Context, service, eventID string) (bool, error) {
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), 1, TTLDedup).Result()
}

// Forget removes a dedup mark so a failed event can be handled again.
func (c *Cache) Forget(ctx context.Context, service, eventID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TryLock takes a named lock with SET NX PX. The returned unlock only
// releases the lock while this caller still owns it.
func (c *Cache) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf(KeyLock, name)
	token := uuid.NewString()
	ok, err := c.RDB.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, c.RDB, []string{key}, token).Err()
	}
	return unlock, true, nil
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
