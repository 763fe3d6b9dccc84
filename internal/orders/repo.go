package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

const orderCols = `id, customer_id, seller_id, status, total_price, payment_method,
	payment_proof, carrier, tracking_number, created_at, updated_at`

const productCols = `id, seller_id, category_id, name, price, stock, discount_percent, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// WithinTx runs fn in one database transaction; any error from fn rolls it
// back via the deferred Rollback.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Order(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, notFound(err, "order", id)
	}
	list := []Order{o}
	if err := loadItems(ctx, r.DB, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

func (r *Repo) StaleOrders(ctx context.Context, status Status, cutoff time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND updated_at <= $2
		ORDER BY updated_at, id`, string(status), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	list, err := queryOrders(ctx, r.DB, `
		SELECT `+orderCols+` FROM orders
		WHERE customer_id=$1
		ORDER BY created_at DESC, id`, customerID)
	if err != nil {
		return nil, err
	}
	return list, loadItems(ctx, r.DB, list)
}

func (r *Repo) SellerOrders(ctx context.Context, sellerID string, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE seller_id=$1`, sellerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + orderCols + ` FROM orders WHERE seller_id=$1 ORDER BY created_at DESC, id`
	args := []any{sellerID}
	if limit > 0 {
		q += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	list, err := queryOrders(ctx, r.DB, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, loadItems(ctx, r.DB, list)
}

func (r *Repo) SellerProducts(ctx context.Context, sellerID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products WHERE seller_id=$1 ORDER BY name, id`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanOrder(row scanner) (Order, error) {
	var o Order
	var status, method string
	err := row.Scan(&o.ID, &o.CustomerID, &o.SellerID, &status, &o.TotalPrice, &method,
		&o.PaymentProof, &o.Carrier, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func scanProduct(row scanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.CategoryID, &p.Name, &p.Price, &p.Stock, &p.DiscountPercent, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func queryOrders(ctx context.Context, q querier, sql string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// loadItems fills Items for every order in list with a single query.
func loadItems(ctx context.Context, q querier, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	idx := make(map[string]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
		idx[list[i].ID] = i
		list[i].Items = []Item{}
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, product_id, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		i := idx[it.OrderID]
		list[i].Items = append(list[i].Items, it)
	}
	return rows.Err()
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}
