package orders

import (
	"context"
	"time"
)

type InvoiceLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type Invoice struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	Date          time.Time     `json:"date"`
	CustomerID    string        `json:"customer_id"`
	SellerID      string        `json:"seller_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TotalPrice    int64         `json:"total_price"`
	Lines         []InvoiceLine `json:"lines"`
}

func NewInvoice(o Order) Invoice {
	inv := Invoice{
		OrderID:       o.ID,
		Status:        o.Status,
		Date:          o.CreatedAt,
		CustomerID:    o.CustomerID,
		SellerID:      o.SellerID,
		PaymentMethod: o.PaymentMethod,
		TotalPrice:    o.TotalPrice,
		Lines:         make([]InvoiceLine, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		inv.Lines = append(inv.Lines, InvoiceLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal(),
		})
	}
	return inv
}

func (s *Service) Invoice(ctx context.Context, orderID string) (Invoice, error) {
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	return NewInvoice(o), nil
}
