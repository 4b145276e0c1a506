package orders

import (
	"context"
	"time"
)

// Store interfaces are deliberately narrow: the engine and the payment
// services only ever need conditional single-row mutations, and every
// implementation (pgx or in-memory) must keep those mutations individually
// guarded so concurrent checkouts stay safe without locks.

type ProductStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// DecrementStock subtracts qty only while the product is available and
	// still holds at least qty units. Returns false when the guard fails.
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID string, qty int) error
	// RestoreStockAll returns every listed quantity in one atomic write,
	// so an interrupted restoration never leaves an order half-returned
	// and a retry never double-counts.
	RestoreStockAll(ctx context.Context, items []ItemQty) error
	ListProducts(ctx context.Context) ([]Product, error)
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*Order, []OrderItem, error)
	// GetByClientOrderID returns (nil, nil) when no order carries the key.
	GetByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error)
	// Insert fails with ErrAlreadyExists when the client_order_id is taken.
	Insert(ctx context.Context, o *Order, items []OrderItem) error
	// Delete removes an order and its items; compensation path only.
	Delete(ctx context.Context, orderID string) error

	// MarkCashPaid flips awaiting_payment -> pending/paid only while both
	// status and payment_status are still awaiting_payment, so neither a
	// sweep nor a cancellation that already landed can be overwritten.
	MarkCashPaid(ctx context.Context, orderID string, now time.Time) (bool, error)
	// MarkTimedOut flips awaiting_payment -> cancelled/timeout under the
	// same double guard; the sweeper, a late confirmation and a parent
	// cancel race through these and exactly one wins.
	MarkTimedOut(ctx context.Context, orderID string, now time.Time) (bool, error)
	// MarkCancelled cancels only while the status is still cancellable.
	// A paid order moves to payment_status refunded in the same update.
	MarkCancelled(ctx context.Context, orderID string, now time.Time) (bool, error)
	// MarkStockRestored records that a cancelled order's stock went back;
	// ListCancelledUnrestored is the sweeper's repair scan for cancelled
	// orders whose restoration failed mid-flight.
	MarkStockRestored(ctx context.Context, orderID string) error
	ListCancelledUnrestored(ctx context.Context) ([]Order, error)

	ListExpiredAwaitingCash(ctx context.Context, now time.Time) ([]Order, error)
}

type WalletStore interface {
	// GetBalance returns (balance, found).
	GetBalance(ctx context.Context, parentID string) (int, bool, error)
	// DeductBalance subtracts amount only while the balance still equals
	// observed. Returns false when a concurrent deduction got there first.
	DeductBalance(ctx context.Context, parentID string, amount, observed int) (bool, error)
	CreditBalance(ctx context.Context, parentID string, amount int) error
}

type OwnershipStore interface {
	ParentOwnsStudent(ctx context.Context, parentID, studentID string) (bool, error)
}

type LedgerStore interface {
	Append(ctx context.Context, t *Transaction) error
	Settle(ctx context.Context, orderID, settlement string) error
}
