package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo backs ProductStore, OrderStore and OwnershipStore on Postgres.
// Every shared-row mutation is a single conditional UPDATE checked via
// RowsAffected; there is no transaction spanning stock, order and wallet.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	params := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, available, created_at, updated_at
		FROM products WHERE id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND available AND stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) RestoreStock(ctx context.Context, productID string, qty int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	return err
}

func (r *Repo) RestoreStockAll(ctx context.Context, items []ItemQty) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, available, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const orderColumns = `id, parent_id, student_id, client_order_id, scheduled_for,
	payment_method, status, payment_status, payment_due_at, total_cents, notes,
	stock_restored, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ParentID, &o.StudentID, &o.ClientOrderID, &o.ScheduledFor,
		&o.Method, &o.Status, &o.PaymentStatus, &o.PaymentDueAt, &o.TotalCents, &o.Notes,
		&o.StockRestored, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, []OrderItem, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, meal_period, qty, price_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.MealPeriod, &it.Qty, &it.PriceCents); err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return o, items, rows.Err()
}

func (r *Repo) GetByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE client_order_id=$1`, clientOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *Repo) Insert(ctx context.Context, o *Order, items []OrderItem) error {
	// One tx for order + items only; stock and wallet moves stay outside so
	// they remain individually compensatable.
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, parent_id, student_id, client_order_id, scheduled_for,
			payment_method, status, payment_status, payment_due_at, total_cents, notes,
			stock_restored, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		o.ID, o.ParentID, o.StudentID, o.ClientOrderID, o.ScheduledFor,
		o.Method, o.Status, o.PaymentStatus, o.PaymentDueAt, o.TotalCents, o.Notes,
		o.StockRestored, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, meal_period, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ProductID, it.MealPeriod, it.Qty, it.PriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Delete(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) MarkCashPaid(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=$4
		WHERE id=$1 AND status=$5 AND payment_status=$6`,
		orderID, StatusPending, PaymentPaid, now, StatusAwaitingPayment, PaymentAwaiting)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkTimedOut(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=$4
		WHERE id=$1 AND status=$5 AND payment_status=$6`,
		orderID, StatusCancelled, PaymentTimeout, now, StatusAwaitingPayment, PaymentAwaiting)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkCancelled(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2,
			payment_status = CASE WHEN payment_status=$3 THEN $4 ELSE payment_status END,
			updated_at=$5
		WHERE id=$1 AND status IN ($6, $7)`,
		orderID, StatusCancelled, PaymentPaid, PaymentRefunded, now,
		StatusPending, StatusAwaitingPayment)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkStockRestored(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET stock_restored=TRUE, updated_at=now()
		WHERE id=$1`, orderID)
	return err
}

func (r *Repo) ListCancelledUnrestored(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND NOT stock_restored
		ORDER BY updated_at`, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) ListExpiredAwaitingCash(ctx context.Context, now time.Time) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND payment_status=$2 AND payment_due_at < $3
		ORDER BY payment_due_at`, StatusAwaitingPayment, PaymentAwaiting, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) ParentOwnsStudent(ctx context.Context, parentID, studentID string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM parent_students
		WHERE parent_id=$1 AND student_id=$2`, parentID, studentID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
