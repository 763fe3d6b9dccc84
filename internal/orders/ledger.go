package orders

import (
	"context"
	"errors"
	"fmt"
)

// Ledger keeps product stock consistent. It never opens its own
// transaction: callers pass the unit of work the reservation belongs to so
// a later failure rolls every decrement back together.
type Ledger struct{}

// ReserveAndDecrement locks the product row, checks that qty units are
// available, and takes them. The returned product reflects the stock after
// the decrement.
func (Ledger) ReserveAndDecrement(ctx context.Context, tx Tx, productID string, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, fmt.Errorf("product %s: quantity must be positive, got %d", productID, qty)
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if p.Stock < qty {
		return p, &StockError{ProductID: productID, Required: qty, Available: p.Stock}
	}
	if err := tx.DecrementStock(ctx, productID, qty); err != nil {
		var se *StockError
		if errors.As(err, &se) {
			return p, err
		}
		return p, fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	p.Stock -= qty
	return p, nil
}
