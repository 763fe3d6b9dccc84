// Package memstore is an in-process orders.Store. Row locks are real and
// writes are staged until the unit of work commits, so it behaves like the
// Postgres store under concurrency. It backs tests and the "memory" driver.
package memstore

import (
	"context"
	"fmt"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"sort"
	"sync"
	"time"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]orders.Account
	products map[string]orders.Product
	orders   map[string]orders.Order
	locks    map[string]*rowLock
}

// rowLock is a row lock shared by every unit of work waiting on or holding
// it. The entry is dropped once refs reaches zero.
type rowLock struct {
	ch   chan struct{}
	refs int
}

func New() *Store {
	return &Store{
		accounts: map[string]orders.Account{},
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		locks:    map[string]*rowLock{},
	}
}

func (s *Store) PutAccount(a orders.Account) {
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

// Product returns the committed state of a product.
func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx := &memTx{
		s:        s,
		held:     map[string]*rowLock{},
		products: map[string]orders.Product{},
		orders:   map[string]*orders.Order{},
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) Order(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (s *Store) StaleOrders(_ context.Context, status orders.Status, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []orders.Order
	for _, o := range s.orders {
		if o.Status == status && !o.UpdatedAt.After(cutoff) {
			hits = append(hits, o)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].UpdatedAt.Equal(hits[j].UpdatedAt) {
			return hits[i].UpdatedAt.Before(hits[j].UpdatedAt)
		}
		return hits[i].ID < hits[j].ID
	})
	ids := make([]string, len(hits))
	for i, o := range hits {
		ids[i] = o.ID
	}
	return ids, nil
}

func (s *Store) CustomerOrders(_ context.Context, customerID string) ([]orders.Order, error) {
	return s.filter(func(o orders.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *Store) SellerOrders(_ context.Context, sellerID string, limit, offset int) ([]orders.Order, int, error) {
	all := s.filter(func(o orders.Order) bool { return o.SellerID == sellerID })
	total := len(all)
	if limit <= 0 {
		return all, total, nil
	}
	if offset >= total {
		return []orders.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) SellerProducts(_ context.Context, sellerID string) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orders.Product
	for _, p := range s.products {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// filter returns matching orders newest first.
func (s *Store) filter(keep func(orders.Order) bool) []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []orders.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) acquireRow(key string) *rowLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *Store) releaseRow(key string, l *rowLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

func copyOrder(o orders.Order) orders.Order {
	c := o
	c.Items = append([]orders.Item{}, o.Items...)
	return c
}
