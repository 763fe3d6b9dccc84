package memstore

import (
	"context"
	"fmt"
	"github.com/SatriaFarel/BookPoint/internal/orders"
)

// memTx stages writes; a nil entry in orders marks a delete.
type memTx struct {
	s        *Store
	held     map[string]*rowLock
	order    []string
	products map[string]orders.Product
	orders   map[string]*orders.Order
}

// lock acquires the row lock for key, waiting for other units of work to
// finish with it. Locks are re-entrant within one tx.
func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := t.s.acquireRow(key)
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		t.s.releaseRow(key, l)
		return ctx.Err()
	}
	t.held[key] = l
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		key := t.order[i]
		l := t.held[key]
		<-l.ch
		t.s.releaseRow(key, l)
	}
	t.held = nil
	t.order = nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, p := range t.products {
		t.s.products[id] = p
	}
	for id, o := range t.orders {
		if o == nil {
			delete(t.s.orders, id)
			continue
		}
		t.s.orders[id] = copyOrder(*o)
	}
}

func (t *memTx) product(id string) (orders.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[id]
	return p, ok
}

func (t *memTx) currentOrder(id string) (orders.Order, bool) {
	if o, ok := t.orders[id]; ok {
		if o == nil {
			return orders.Order{}, false
		}
		return copyOrder(*o), true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	if !ok {
		return orders.Order{}, false
	}
	return copyOrder(o), true
}

func (t *memTx) Account(_ context.Context, id string) (orders.Account, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.accounts[id]
	if !ok {
		return orders.Account{}, fmt.Errorf("account %s: %w", id, orders.ErrNotFound)
	}
	return a, nil
}

func (t *memTx) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	if err := t.lock(ctx, "product:"+id); err != nil {
		return orders.Product{}, err
	}
	p, ok := t.product(id)
	if !ok {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	return p, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	p, err := t.LockProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p.Stock < qty {
		return &orders.StockError{ProductID: productID, Required: qty, Available: p.Stock}
	}
	p.Stock -= qty
	t.products[productID] = p
	return nil
}

func (t *memTx) ClaimIdempotencyKey(ctx context.Context, customerID, key string) (string, bool, error) {
	if err := t.lock(ctx, "idem:"+customerID+"\x00"+key); err != nil {
		return "", false, err
	}
	match := func(o orders.Order) bool {
		return o.CustomerID == customerID && o.IdempotencyKey == key
	}
	for id, o := range t.orders {
		if o != nil && match(*o) {
			return id, true, nil
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, o := range t.s.orders {
		if _, staged := t.orders[id]; staged {
			continue
		}
		if match(o) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o orders.Order) error {
	if err := t.lock(ctx, "order:"+o.ID); err != nil {
		return err
	}
	if _, exists := t.currentOrder(o.ID); exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	c := copyOrder(o)
	t.orders[o.ID] = &c
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	if err := t.lock(ctx, "order:"+id); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.currentOrder(id)
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return o, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o orders.Order, from orders.Status) error {
	cur, err := t.LockOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if cur.Status != from {
		return &orders.TransitionError{OrderID: o.ID, From: from, To: o.Status, Reason: "order changed concurrently"}
	}
	cur.Status = o.Status
	cur.Carrier = o.Carrier
	cur.TrackingNumber = o.TrackingNumber
	cur.UpdatedAt = o.UpdatedAt
	t.orders[o.ID] = &cur
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id string) error {
	if _, err := t.LockOrder(ctx, id); err != nil {
		return err
	}
	t.orders[id] = nil
	return nil
}
