package orders_test

import (
	"context"
	"errors"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func TestCheckout_CreatesOrderAndTakesStock(t *testing.T) {
	f := newFixture(t)

	o := f.checkout(t,
		orders.ItemInput{ProductID: "book-b", Quantity: 1},
		orders.ItemInput{ProductID: "book-a", Quantity: 2},
	)

	assert.Equal(t, orders.StatusSubmitted, o.Status)
	assert.Equal(t, "seller-1", o.SellerID)
	assert.Equal(t, t0, o.CreatedAt)
	require.Len(t, o.Items, 2)
	// 50000 less 10% twice, plus 80000.
	assert.Equal(t, int64(2*45000+80000), o.TotalPrice)
	assert.Equal(t, 3, o.Quantity())

	assert.Equal(t, 8, f.stock(t, "book-a"))
	assert.Equal(t, 0, f.stock(t, "book-b"))

	stored, err := f.svc.Order(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalPrice, stored.TotalPrice)
	assert.Len(t, stored.Items, 2)

	assert.Equal(t, []string{orders.EventOrderSubmitted}, f.events.types())
}

func TestCheckout_RejectsBadInput(t *testing.T) {
	base := orders.CheckoutRequest{
		CustomerID:    "cust-1",
		SellerID:      "seller-1",
		PaymentMethod: orders.PaymentTransfer,
		ProofRef:      "proofs/1.jpg",
		Items:         []orders.ItemInput{{ProductID: "book-a", Quantity: 1}},
	}

	tests := []struct {
		name   string
		mutate func(*orders.CheckoutRequest)
		reason orders.Reason
	}{
		{"no items", func(r *orders.CheckoutRequest) { r.Items = nil }, orders.ReasonInvalidItems},
		{"zero quantity", func(r *orders.CheckoutRequest) { r.Items[0].Quantity = 0 }, orders.ReasonInvalidItems},
		{"negative quantity", func(r *orders.CheckoutRequest) { r.Items[0].Quantity = -2 }, orders.ReasonInvalidItems},
		{"unknown method", func(r *orders.CheckoutRequest) { r.PaymentMethod = "cash" }, orders.ReasonInvalidPayment},
		{"missing proof", func(r *orders.CheckoutRequest) { r.ProofRef = " " }, orders.ReasonMissingProof},
		{"missing seller", func(r *orders.CheckoutRequest) { r.SellerID = "" }, orders.ReasonInvalidRequest},
		{"unknown seller", func(r *orders.CheckoutRequest) { r.SellerID = "ghost" }, orders.ReasonUnknownSeller},
		{"customer as seller", func(r *orders.CheckoutRequest) { r.SellerID = "cust-1" }, orders.ReasonUnknownSeller},
		{"unknown customer", func(r *orders.CheckoutRequest) { r.CustomerID = "ghost" }, orders.ReasonUnknownCustomer},
		{"unknown product", func(r *orders.CheckoutRequest) { r.Items[0].ProductID = "nope" }, orders.ReasonUnknownProduct},
		{"other seller's product", func(r *orders.CheckoutRequest) { r.Items[0].ProductID = "book-c" }, orders.ReasonInvalidItems},
		{"method seller lacks", func(r *orders.CheckoutRequest) { r.PaymentMethod = orders.PaymentQRIS }, orders.ReasonPaymentUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := base
			req.Items = append([]orders.ItemInput(nil), base.Items...)
			tt.mutate(&req)

			_, err := f.svc.Checkout(context.Background(), req)
			require.ErrorIs(t, err, orders.ErrInvalidCheckout)
			var ce *orders.CheckoutError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.reason, ce.Reason)

			assert.Equal(t, 10, f.stock(t, "book-a"))
			assert.Empty(t, f.events.types())
		})
	}
}

func TestCheckout_PaymentUnsupportedMatchesSentinel(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), orders.CheckoutRequest{
		CustomerID: "cust-1", SellerID: "seller-2", PaymentMethod: orders.PaymentTransfer,
		ProofRef: "p", Items: []orders.ItemInput{{ProductID: "book-c", Quantity: 1}},
	})
	assert.ErrorIs(t, err, orders.ErrPaymentUnsupported)
	assert.ErrorIs(t, err, orders.ErrInvalidCheckout)
}

func TestCheckout_ShortageRollsBackEveryLine(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), orders.CheckoutRequest{
		CustomerID: "cust-1", SellerID: "seller-1", PaymentMethod: orders.PaymentTransfer, ProofRef: "p",
		Items: []orders.ItemInput{
			{ProductID: "book-a", Quantity: 3},
			{ProductID: "book-b", Quantity: 2},
		},
	})
	require.ErrorIs(t, err, orders.ErrInvalidCheckout)
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	var se *orders.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "book-b", se.ProductID)
	assert.Equal(t, 1, se.Available)

	assert.Equal(t, 10, f.stock(t, "book-a"))
	assert.Equal(t, 1, f.stock(t, "book-b"))
	list, err := f.svc.CustomerOrders(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckout_DuplicateLinesAreChargedTogether(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), orders.CheckoutRequest{
		CustomerID: "cust-1", SellerID: "seller-1", PaymentMethod: orders.PaymentTransfer, ProofRef: "p",
		Items: []orders.ItemInput{
			{ProductID: "book-b", Quantity: 1},
			{ProductID: "book-b", Quantity: 1},
		},
	})
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, 1, f.stock(t, "book-b"))
}

func TestCheckout_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(orders.Product{ID: "hot", SellerID: "seller-1", Name: "Hot", Price: 1000, Stock: 5})

	const buyers = 2
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Checkout(context.Background(), orders.CheckoutRequest{
				CustomerID: "cust-1", SellerID: "seller-1", PaymentMethod: orders.PaymentTransfer, ProofRef: "p",
				Items: []orders.ItemInput{{ProductID: "hot", Quantity: 3}},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, f.stock(t, "hot"))
}

func TestCheckout_ConcurrentMixedCartsStayConsistent(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(orders.Product{ID: "x", SellerID: "seller-1", Price: 10, Stock: 20})
	f.store.PutProduct(orders.Product{ID: "y", SellerID: "seller-1", Price: 10, Stock: 20})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []orders.ItemInput{{ProductID: "x", Quantity: 1}, {ProductID: "y", Quantity: 1}}
			if i%2 == 1 {
				items[0], items[1] = items[1], items[0]
			}
			_, _ = f.svc.Checkout(context.Background(), orders.CheckoutRequest{
				CustomerID: "cust-1", SellerID: "seller-1", PaymentMethod: orders.PaymentTransfer, ProofRef: "p",
				Items: items,
			})
		}(i)
	}
	wg.Wait()

	placed, err := f.svc.CustomerOrders(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Len(t, placed, 20)
	assert.Equal(t, 0, f.stock(t, "x"))
	assert.Equal(t, 0, f.stock(t, "y"))
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 2})
	total := o.TotalPrice

	f.clock.Advance(time.Hour)
	o, err := f.svc.Approve(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusApproved, o.Status)
	assert.Equal(t, t0.Add(time.Hour), o.UpdatedAt)

	o, err = f.svc.RecordShipment(ctx, o.ID, " JNE ", "JNE0001")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, o.Status)
	assert.Equal(t, "JNE", o.Carrier)
	assert.Equal(t, "JNE0001", o.TrackingNumber)

	o, err = f.svc.ConfirmReceipt(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, total, o.TotalPrice)
	assert.Equal(t, t0, o.CreatedAt)

	stored, err := f.svc.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, stored.Status)
	assert.Equal(t, "JNE0001", stored.TrackingNumber)

	assert.Equal(t, []string{
		orders.EventOrderSubmitted,
		orders.EventOrderApproved,
		orders.EventOrderShipped,
		orders.EventOrderCompleted,
	}, f.events.types())
}

func TestLifecycle_IllegalMoves(t *testing.T) {
	ctx := context.Background()

	t.Run("approve twice", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
		_, err := f.svc.Approve(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})
	t.Run("reject after approve", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
		_, err := f.svc.Approve(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.Reject(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})
	t.Run("ship before approval", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
		_, err := f.svc.RecordShipment(ctx, o.ID, "JNE", "1")
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		stored, _ := f.svc.Order(ctx, o.ID)
		assert.Empty(t, stored.Carrier)
	})
	t.Run("confirm before shipment", func(t *testing.T) {
		f := newFixture(t)
		o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
		_, err := f.svc.Approve(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.ConfirmReceipt(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})
	t.Run("confirm twice", func(t *testing.T) {
		f := newFixture(t)
		o := f.shipped(t)
		_, err := f.svc.ConfirmReceipt(ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.ConfirmReceipt(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})
	t.Run("anything after reject", func(t *testing.T) {
		f := newFixture(t)
		o := f.rejected(t)
		_, err := f.svc.Approve(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		_, err = f.svc.RecordShipment(ctx, o.ID, "JNE", "1")
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	})
	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Approve(ctx, "missing")
		assert.ErrorIs(t, err, orders.ErrNotFound)
		_, err = f.svc.RecordShipment(ctx, "missing", "", "")
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})
}

func TestRecordShipment_NeedsCarrierAndTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
	_, err := f.svc.Approve(ctx, o.ID)
	require.NoError(t, err)

	for _, c := range [][2]string{{"", "X1"}, {"JNE", ""}, {"  ", "  "}} {
		_, err := f.svc.RecordShipment(ctx, o.ID, c[0], c[1])
		var te *orders.TransitionError
		require.True(t, errors.As(err, &te), "carrier=%q tracking=%q", c[0], c[1])
		assert.NotEmpty(t, te.Reason)
	}
	stored, err := f.svc.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusApproved, stored.Status)
}

func TestReject_DoesNotRestock(t *testing.T) {
	f := newFixture(t)
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 4})
	_, err := f.svc.Reject(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, "book-a"))
}

func TestSellerOrders_Pages(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
		f.clock.Advance(time.Minute)
	}
	page, total, err := f.svc.SellerOrders(context.Background(), "seller-1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, t0, page[0].CreatedAt)
}

func TestEvents_CarryTraceID(t *testing.T) {
	f := newFixture(t)
	ctx := orders.WithTraceID(context.Background(), "req-42")
	_, err := f.svc.Checkout(ctx, orders.CheckoutRequest{
		CustomerID: "cust-1", SellerID: "seller-1", PaymentMethod: orders.PaymentTransfer, ProofRef: "p",
		Items: []orders.ItemInput{{ProductID: "book-a", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, f.events.got, 1)
	assert.Equal(t, "req-42", f.events.got[0].TraceID)
	assert.Equal(t, "test", f.events.got[0].Producer)
}

type failingPublisher struct{}

func (failingPublisher) PublishEvent(context.Context, orders.Envelope) error {
	return errors.New("broker down")
}

func TestEvents_PublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.svc.Events = failingPublisher{}
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 1})
	_, err := f.svc.Approve(context.Background(), o.ID)
	assert.NoError(t, err)
}

func idemRequest(customer, key string, qty int) orders.CheckoutRequest {
	return orders.CheckoutRequest{
		CustomerID:     customer,
		SellerID:       "seller-1",
		PaymentMethod:  orders.PaymentTransfer,
		ProofRef:       "proofs/1.jpg",
		IdempotencyKey: key,
		Items:          []orders.ItemInput{{ProductID: "book-a", Quantity: qty}},
	}
}

func TestPlaceOrder_ReplaysSameCustomerAndKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, replayed, err := f.svc.PlaceOrder(ctx, idemRequest("cust-1", "k1", 2))
	require.NoError(t, err)
	assert.False(t, replayed)

	// A retry replays the stored order even if the body drifted.
	again, replayed, err := f.svc.PlaceOrder(ctx, idemRequest("cust-1", " k1 ", 3))
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.TotalPrice, again.TotalPrice)

	assert.Equal(t, 8, f.stock(t, "book-a"))
	assert.Equal(t, []string{orders.EventOrderSubmitted}, f.events.types())
}

func TestPlaceOrder_KeyIsScopedToCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, _, err := f.svc.PlaceOrder(ctx, idemRequest("cust-1", "shared", 1))
	require.NoError(t, err)
	theirs, replayed, err := f.svc.PlaceOrder(ctx, idemRequest("cust-2", "shared", 2))
	require.NoError(t, err)

	assert.False(t, replayed)
	assert.NotEqual(t, mine.ID, theirs.ID)
	assert.Equal(t, "cust-2", theirs.CustomerID)
	assert.Equal(t, 7, f.stock(t, "book-a"))
}

func TestPlaceOrder_ConcurrentRetriesCreateOneOrder(t *testing.T) {
	f := newFixture(t)

	const retries = 8
	ids := make([]string, retries)
	replays := make([]bool, retries)
	errs := make([]error, retries)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var o orders.Order
			o, replays[i], errs[i] = f.svc.PlaceOrder(context.Background(), idemRequest("cust-1", "retry", 1))
			ids[i] = o.ID
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	for i := 0; i < retries; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if !replays[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 9, f.stock(t, "book-a"))

	placed, err := f.svc.CustomerOrders(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Len(t, placed, 1)
}

func TestPlaceOrder_FailedCheckoutDoesNotConsumeKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceOrder(ctx, idemRequest("cust-1", "k1", 50))
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	o, replayed, err := f.svc.PlaceOrder(ctx, idemRequest("cust-1", "k1", 1))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, orders.StatusSubmitted, o.Status)
}

func TestApproveRejectRace_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(orders.Product{ID: "race", SellerID: "seller-1", Name: "Race", Price: 1000, Stock: 1000})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		o := f.checkout(t, orders.ItemInput{ProductID: "race", Quantity: 1})

		var approveErr, rejectErr error
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, approveErr = f.svc.Approve(ctx, o.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, rejectErr = f.svc.Reject(ctx, o.ID)
		}()
		close(start)
		wg.Wait()

		stored, err := f.svc.Order(ctx, o.ID)
		require.NoError(t, err)
		switch {
		case approveErr == nil:
			require.ErrorIs(t, rejectErr, orders.ErrInvalidTransition)
			assert.Equal(t, orders.StatusApproved, stored.Status)
		case rejectErr == nil:
			require.ErrorIs(t, approveErr, orders.ErrInvalidTransition)
			assert.Equal(t, orders.StatusRejected, stored.Status)
		default:
			t.Fatalf("both lost: approve=%v reject=%v", approveErr, rejectErr)
		}
	}
}

func TestTotalPriceIgnoresLaterProductEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.checkout(t, orders.ItemInput{ProductID: "book-a", Quantity: 2})
	require.Equal(t, int64(90000), o.TotalPrice)

	p, ok := f.store.Product("book-a")
	require.True(t, ok)
	p.Price = 99000
	p.DiscountPercent = 50
	f.store.PutProduct(p)

	o, err := f.svc.Approve(ctx, o.ID)
	require.NoError(t, err)
	stored, err := f.svc.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), stored.TotalPrice)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(45000), stored.Items[0].UnitPrice)

	inv, err := f.svc.Invoice(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), inv.TotalPrice)
}
