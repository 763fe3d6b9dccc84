package orders_test

import (
	"context"
	"github.com/SatriaFarel/BookPoint/internal/memstore"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	got []orders.Envelope
}

func (r *recorder) PublishEvent(_ context.Context, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, env)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, e := range r.got {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	store   *memstore.Store
	clock   *orders.ManualClock
	events  *recorder
	svc     *orders.Service
	sweeper *orders.Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutAccount(orders.Account{ID: "seller-1", Role: orders.RoleSeller, Name: "Toko Buku", BankAccount: "BCA 123"})
	st.PutAccount(orders.Account{ID: "seller-2", Role: orders.RoleSeller, Name: "Pustaka", QRISRef: "qris/s2.png"})
	st.PutAccount(orders.Account{ID: "cust-1", Role: orders.RoleCustomer, Name: "Ayu"})
	st.PutAccount(orders.Account{ID: "cust-2", Role: orders.RoleCustomer, Name: "Budi"})
	st.PutProduct(orders.Product{ID: "book-a", SellerID: "seller-1", Name: "Laskar Pelangi", Price: 50000, Stock: 10, DiscountPercent: 10})
	st.PutProduct(orders.Product{ID: "book-b", SellerID: "seller-1", Name: "Bumi Manusia", Price: 80000, Stock: 1})
	st.PutProduct(orders.Product{ID: "book-c", SellerID: "seller-2", Name: "Ronggeng", Price: 30000, Stock: 3})

	clock := orders.NewManualClock(t0)
	rec := &recorder{}
	return &fixture{
		store:   st,
		clock:   clock,
		events:  rec,
		svc:     &orders.Service{Store: st, Clock: clock, Events: rec, Name: "test"},
		sweeper: &orders.Sweeper{Store: st, Clock: clock, Events: rec, Name: "test"},
	}
}

func (f *fixture) checkout(t *testing.T, items ...orders.ItemInput) orders.Order {
	t.Helper()
	o, err := f.svc.Checkout(context.Background(), orders.CheckoutRequest{
		CustomerID:    "cust-1",
		SellerID:      "seller-1",
		PaymentMethod: orders.PaymentTransfer,
		ProofRef:      "proofs/1.jpg",
		Items:         items,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok)
	return p.Stock
}

// shipped drives a fresh order to shipped at the current clock time.
func (f *fixture) shipped(t *testing.T) orders.Order {
	t.Helper()
	ctx := context.Background()
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
	_, err := f.svc.Approve(ctx, o.ID)
	require.NoError(t, err)
	o, err = f.svc.RecordShipment(ctx, o.ID, "JNE", "JNE123")
	require.NoError(t, err)
	return o
}

func (f *fixture) rejected(t *testing.T) orders.Order {
	t.Helper()
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
	o, err := f.svc.Reject(context.Background(), o.ID)
	require.NoError(t, err)
	return o
}
