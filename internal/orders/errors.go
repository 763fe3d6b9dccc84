package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCheckout    = errors.New("invalid checkout")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrPaymentUnsupported = errors.New("payment method not supported by seller")
)

// Reason is a stable, machine readable cause for a rejected checkout.
type Reason string

const (
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonInvalidItems       Reason = "invalid_items"
	ReasonInvalidPayment     Reason = "invalid_payment_method"
	ReasonMissingProof       Reason = "missing_proof"
	ReasonUnknownSeller      Reason = "unknown_seller"
	ReasonUnknownCustomer    Reason = "unknown_customer"
	ReasonUnknownProduct     Reason = "unknown_product"
	ReasonPaymentUnsupported Reason = "payment_unsupported"
	ReasonInsufficientStock  Reason = "insufficient_stock"
)

// CheckoutError is returned for every rejected checkout. It always matches
// ErrInvalidCheckout, and also matches the underlying cause when there is one.
type CheckoutError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *CheckoutError) Error() string {
	msg := fmt.Sprintf("invalid checkout: %s", e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CheckoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidCheckout}
	}
	return []error{ErrInvalidCheckout, e.Err}
}

func checkoutErr(reason Reason, detail string, cause error) error {
	return &CheckoutError{Reason: reason, Detail: detail, Err: cause}
}

type StockError struct {
	ProductID string
	Required  int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %s: required %d, available %d", e.ProductID, e.Required, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type TransitionError struct {
	OrderID string
	From    Status
	To      Status
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
