package orders

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
)

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Account(ctx context.Context, id string) (Account, error) {
	var a Account
	var role string
	err := t.tx.QueryRow(ctx, `
		SELECT id, role, name, address, bank_account, qris_ref
		FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &role, &a.Name, &a.Address, &a.BankAccount, &a.QRISRef)
	if err != nil {
		return Account{}, notFound(err, "account", id)
	}
	a.Role = Role(role)
	return a, nil
}

// LockProduct takes the row lock (FOR UPDATE); concurrent checkouts for the
// same product queue here until this transaction ends.
func (t *pgTx) LockProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Product{}, notFound(err, "product", id)
	}
	return p, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var stock int
		if err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock); err != nil {
			return notFound(err, "product", productID)
		}
		return &StockError{ProductID: productID, Required: qty, Available: stock}
	}
	return nil
}

// ClaimIdempotencyKey holds a transaction scoped advisory lock on the
// customer and key, so a concurrent retry waits here and then sees the
// committed order. The unique index on (customer_id, idempotency_key)
// backs this up.
func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, customerID, key string) (string, bool, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		customerID+":"+key); err != nil {
		return "", false, err
	}
	var id string
	err := t.tx.QueryRow(ctx, `
		SELECT id FROM orders WHERE customer_id=$1 AND idempotency_key=$2`, customerID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, seller_id, status, total_price, payment_method,
			payment_proof, carrier, tracking_number, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.CustomerID, o.SellerID, string(o.Status), o.TotalPrice, string(o.PaymentMethod),
		o.PaymentProof, o.Carrier, o.TrackingNumber, o.IdempotencyKey, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(id, order_id, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			it.ID, o.ID, it.ProductID, it.Quantity, it.UnitPrice)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, notFound(err, "order", id)
	}
	list := []Order{o}
	if err := loadItems(ctx, t.tx, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

// UpdateOrder only matches the row while it still has status from, so a
// stale read can never overwrite a newer transition.
func (t *pgTx) UpdateOrder(ctx context.Context, o Order, from Status) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, carrier=$3, tracking_number=$4, updated_at=$5
		WHERE id=$1 AND status=$6`,
		o.ID, string(o.Status), o.Carrier, o.TrackingNumber, o.UpdatedAt, string(from))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &TransitionError{OrderID: o.ID, From: from, To: o.Status, Reason: "order changed concurrently"}
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "order", id)
	}
	return nil
}
