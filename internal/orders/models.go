package orders

import "time"

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "transfer"
	PaymentQRIS     PaymentMethod = "qris"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentTransfer || m == PaymentQRIS
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSeller   Role = "seller"
	RoleCustomer Role = "customer"
)

// Account is the slice of a user profile the order core needs.
type Account struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	BankAccount string `json:"-"`
	QRISRef     string `json:"-"`
}

// Accepts reports whether the account can receive payments made with m.
// Only sellers accept payments; transfer needs a bank account, QRIS needs
// an uploaded QRIS code.
func (a Account) Accepts(m PaymentMethod) bool {
	if a.Role != RoleSeller {
		return false
	}
	switch m {
	case PaymentTransfer:
		return a.BankAccount != ""
	case PaymentQRIS:
		return a.QRISRef != ""
	}
	return false
}

type Product struct {
	ID              string    `json:"id"`
	SellerID        string    `json:"seller_id"`
	CategoryID      string    `json:"category_id"`
	Name            string    `json:"name"`
	Price           int64     `json:"price"`
	Stock           int       `json:"stock"`
	DiscountPercent int       `json:"discount_percent"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UnitPrice is the price a buyer pays right now, discount applied and
// rounded down to the whole currency unit.
func (p Product) UnitPrice() int64 {
	d := p.DiscountPercent
	if d <= 0 {
		return p.Price
	}
	if d > 100 {
		d = 100
	}
	return p.Price * int64(100-d) / 100
}

type Order struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customer_id"`
	SellerID       string        `json:"seller_id"`
	Status         Status        `json:"status"`
	TotalPrice     int64         `json:"total_price"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	PaymentProof   string        `json:"payment_proof"`
	Carrier        string        `json:"carrier,omitempty"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Items          []Item        `json:"items"`
	// IdempotencyKey is the client supplied key the order was created
	// under, unique per customer. Empty when none was sent.
	IdempotencyKey string `json:"-"`
}

type Item struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (it Item) LineTotal() int64 { return int64(it.Quantity) * it.UnitPrice }

// Quantity is the number of units across all items.
func (o Order) Quantity() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// advance moves the order to status to, stamping at as the update time.
// It is the single mutation point for Status.
func (o *Order) advance(to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	CustomerID    string        `json:"customer_id"`
	SellerID      string        `json:"seller_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []ItemInput   `json:"items"`
	ProofRef      string        `json:"proof_ref"`
	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-"`
}
