package orders

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderSubmitted = "OrderSubmitted"
	EventOrderApproved  = "OrderApproved"
	EventOrderRejected  = "OrderRejected"
	EventOrderShipped   = "OrderShipped"
	EventOrderCompleted = "OrderCompleted"
	EventOrderPurged    = "OrderPurged"
)

const EventVersion = 1

var eventForStatus = map[Status]string{
	StatusSubmitted: EventOrderSubmitted,
	StatusApproved:  EventOrderApproved,
	StatusRejected:  EventOrderRejected,
	StatusShipped:   EventOrderShipped,
	StatusCompleted: EventOrderCompleted,
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderEventPayload is shared by every lifecycle event; Status is the
// status after the event (empty for OrderPurged).
type OrderEventPayload struct {
	OrderID        string    `json:"order_id"`
	CustomerID     string    `json:"customer_id"`
	SellerID       string    `json:"seller_id"`
	Status         Status    `json:"status,omitempty"`
	TotalPrice     int64     `json:"total_price"`
	Carrier        string    `json:"carrier,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewEnvelope(eventType, producer, traceID string, o Order, at time.Time) (Envelope, error) {
	p := OrderEventPayload{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		SellerID:       o.SellerID,
		TotalPrice:     o.TotalPrice,
		Carrier:        o.Carrier,
		TrackingNumber: o.TrackingNumber,
		UpdatedAt:      o.UpdatedAt,
	}
	if eventType != EventOrderPurged {
		p.Status = o.Status
	}
	b, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload:       b,
	}, nil
}

// Publisher delivers lifecycle events. Delivery happens after the
// transaction commits, so a publish failure never undoes a transition.
type Publisher interface {
	PublishEvent(ctx context.Context, env Envelope) error
}

type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, Envelope) error { return nil }

type traceKey struct{}

// WithTraceID attaches a trace id that is copied onto published envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
