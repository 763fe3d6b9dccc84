package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"sort"
	"strings"
	"time"
)

// RefundNotice is returned to the seller when an order is rejected. Refunds
// happen outside the system.
const RefundNotice = "Order rejected. The buyer is refunded manually within 1 month."

const maxIdempotencyKeyLen = 128

// Service owns every status change made on behalf of buyers and sellers.
type Service struct {
	Store  Store
	Ledger Ledger
	Clock  Clock
	Events Publisher
	Log    *zap.Logger
	// Name is stamped on published events as the producer.
	Name string
}

func (s *Service) clock() Clock {
	if s.Clock == nil {
		return SystemClock{}
	}
	return s.Clock
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Checkout creates an order and its items in one unit of work, taking stock
// for every item. Any failure leaves stock and orders untouched.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (Order, error) {
	o, _, err := s.PlaceOrder(ctx, req)
	return o, err
}

// PlaceOrder is Checkout that also reports replays: when the customer
// already has an order under req.IdempotencyKey, that order is returned
// with replayed set and no stock is taken.
func (s *Service) PlaceOrder(ctx context.Context, req CheckoutRequest) (Order, bool, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validateCheckout(req); err != nil {
		return Order{}, false, err
	}

	// Lock products in a fixed order so overlapping carts cannot deadlock.
	lines := append([]ItemInput(nil), req.Items...)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	var order Order
	replayID := ""
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			id, found, err := tx.ClaimIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				replayID = id
				return nil
			}
		}

		seller, err := tx.Account(ctx, req.SellerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return checkoutErr(ReasonUnknownSeller, req.SellerID, nil)
			}
			return err
		}
		if seller.Role != RoleSeller {
			return checkoutErr(ReasonUnknownSeller, req.SellerID, nil)
		}
		customer, err := tx.Account(ctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return checkoutErr(ReasonUnknownCustomer, req.CustomerID, nil)
			}
			return err
		}
		if customer.Role != RoleCustomer {
			return checkoutErr(ReasonUnknownCustomer, req.CustomerID, nil)
		}
		if !seller.Accepts(req.PaymentMethod) {
			return checkoutErr(ReasonPaymentUnsupported, string(req.PaymentMethod), ErrPaymentUnsupported)
		}

		now := s.clock().Now()
		order = Order{
			ID:             uuid.NewString(),
			CustomerID:     req.CustomerID,
			SellerID:       req.SellerID,
			Status:         StatusSubmitted,
			PaymentMethod:  req.PaymentMethod,
			PaymentProof:   req.ProofRef,
			CreatedAt:      now,
			UpdatedAt:      now,
			Items:          make([]Item, 0, len(lines)),
			IdempotencyKey: req.IdempotencyKey,
		}
		for _, line := range lines {
			p, err := s.Ledger.ReserveAndDecrement(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				var se *StockError
				switch {
				case errors.As(err, &se):
					return checkoutErr(ReasonInsufficientStock, "", se)
				case errors.Is(err, ErrNotFound):
					return checkoutErr(ReasonUnknownProduct, line.ProductID, nil)
				}
				return err
			}
			if p.SellerID != req.SellerID {
				return checkoutErr(ReasonInvalidItems, fmt.Sprintf("product %s is not sold by %s", p.ID, req.SellerID), nil)
			}
			it := Item{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: p.ID,
				Quantity:  line.Quantity,
				UnitPrice: p.UnitPrice(),
			}
			order.Items = append(order.Items, it)
			order.TotalPrice += it.LineTotal()
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		s.logger().Info("checkout rejected",
			zap.String("customer_id", req.CustomerID),
			zap.String("seller_id", req.SellerID),
			zap.Error(err),
		)
		return Order{}, false, err
	}
	if replayID != "" {
		o, err := s.Store.Order(ctx, replayID)
		if err != nil {
			return Order{}, false, err
		}
		s.logger().Info("checkout replayed",
			zap.String("order_id", o.ID),
			zap.String("customer_id", o.CustomerID),
		)
		return o, true, nil
	}

	s.logger().Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("seller_id", order.SellerID),
		zap.Int64("total_price", order.TotalPrice),
		zap.Int("items", len(order.Items)),
	)
	emit(ctx, s.Events, s.logger(), s.Name, EventOrderSubmitted, order, order.UpdatedAt)
	return order, false, nil
}

func validateCheckout(req CheckoutRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.SellerID) == "" {
		return checkoutErr(ReasonInvalidRequest, "customer_id and seller_id are required", nil)
	}
	if !req.PaymentMethod.Valid() {
		return checkoutErr(ReasonInvalidPayment, string(req.PaymentMethod), nil)
	}
	if strings.TrimSpace(req.ProofRef) == "" {
		return checkoutErr(ReasonMissingProof, "", nil)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return checkoutErr(ReasonInvalidRequest, "idempotency key is too long", nil)
	}
	if len(req.Items) == 0 {
		return checkoutErr(ReasonInvalidItems, "at least one item is required", nil)
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return checkoutErr(ReasonInvalidItems, fmt.Sprintf("item %d: product_id is required", i), nil)
		}
		if it.Quantity <= 0 {
			return checkoutErr(ReasonInvalidItems, fmt.Sprintf("item %d: quantity must be positive", i), nil)
		}
	}
	return nil
}

func (s *Service) Approve(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusApproved, nil)
}

// Reject does not restock the items; stock for rejected orders is
// reconciled by hand.
func (s *Service) Reject(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusRejected, nil)
}

// RecordShipment stores carrier and tracking number together and marks the
// order shipped. Both values are required.
func (s *Service) RecordShipment(ctx context.Context, orderID, carrier, tracking string) (Order, error) {
	carrier, tracking = strings.TrimSpace(carrier), strings.TrimSpace(tracking)
	if carrier == "" || tracking == "" {
		o, err := s.Store.Order(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		return Order{}, &TransitionError{
			OrderID: orderID, From: o.Status, To: StatusShipped,
			Reason: "carrier and tracking number are both required",
		}
	}
	return s.transition(ctx, orderID, StatusShipped, func(o *Order) {
		o.Carrier = carrier
		o.TrackingNumber = tracking
	})
}

func (s *Service) ConfirmReceipt(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusCompleted, nil)
}

func (s *Service) Order(ctx context.Context, orderID string) (Order, error) {
	return s.Store.Order(ctx, orderID)
}

func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	return s.Store.CustomerOrders(ctx, customerID)
}

func (s *Service) SellerOrders(ctx context.Context, sellerID string, page, limit int) ([]Order, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	return s.Store.SellerOrders(ctx, sellerID, limit, (page-1)*limit)
}

// transition locks the order, checks the move against the transition
// table, applies mutate, and writes the result in one unit of work.
func (s *Service) transition(ctx context.Context, orderID string, to Status, mutate func(*Order)) (Order, error) {
	var out Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.advance(to, s.clock().Now()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(&o)
		}
		if err := tx.UpdateOrder(ctx, o, from); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger().Info("order transitioned",
		zap.String("order_id", out.ID),
		zap.String("status", string(out.Status)),
	)
	emit(ctx, s.Events, s.logger(), s.Name, eventForStatus[to], out, out.UpdatedAt)
	return out, nil
}

// emit publishes a lifecycle event. Failures are logged, never returned:
// the transition has already been committed.
func emit(ctx context.Context, pub Publisher, log *zap.Logger, producer, eventType string, o Order, at time.Time) {
	if pub == nil {
		return
	}
	env, err := NewEnvelope(eventType, producer, traceID(ctx), o, at)
	if err != nil {
		log.Error("build event", zap.String("order_id", o.ID), zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := pub.PublishEvent(ctx, env); err != nil {
		log.Warn("publish event", zap.String("order_id", o.ID), zap.String("event_type", eventType), zap.Error(err))
	}
}
