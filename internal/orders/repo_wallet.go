package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletRepo backs WalletStore and LedgerStore on Postgres.
type WalletRepo struct{ DB *pgxpool.Pool }

func (r *WalletRepo) GetBalance(ctx context.Context, parentID string) (int, bool, error) {
	var balance int
	err := r.DB.QueryRow(ctx,
		`SELECT balance_cents FROM wallets WHERE parent_id=$1`, parentID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// DeductBalance is the compare-and-swap against a concurrent checkout
// spending the same wallet: the write lands only while the balance still
// equals what the caller observed.
func (r *WalletRepo) DeductBalance(ctx context.Context, parentID string, amount, observed int) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $2, updated_at = now()
		WHERE parent_id=$1 AND balance_cents = $3 AND balance_cents >= $2`,
		parentID, amount, observed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *WalletRepo) CreditBalance(ctx context.Context, parentID string, amount int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE wallets SET balance_cents = balance_cents + $2, updated_at = now()
		WHERE parent_id=$1`, parentID, amount)
	return err
}

func (r *WalletRepo) Append(ctx context.Context, t *Transaction) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO transactions(id, order_id, parent_id, method, amount_cents, settlement, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.OrderID, t.ParentID, t.Method, t.AmountCents, t.Settlement, t.CreatedAt)
	return err
}

func (r *WalletRepo) Settle(ctx context.Context, orderID, settlement string) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE transactions SET settlement=$2 WHERE order_id=$1`, orderID, settlement)
	return err
}
