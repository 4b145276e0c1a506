package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotOwned             = errors.New("student is not linked to this parent")
	ErrForbidden            = errors.New("caller does not own this order")
	ErrNoWallet             = errors.New("parent has no wallet")
	ErrInvalidPaymentMethod = errors.New("invalid payment method for this operation")
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrPaymentTimeout       = errors.New("cash payment deadline has passed")
	ErrNotCancellable       = errors.New("order is past a cancellable state")
	ErrOrderCancelled       = errors.New("order is cancelled")

	// ErrConflict signals a lost optimistic-concurrency race. The request
	// left no effects behind and is safe to retry.
	ErrConflict = errors.New("concurrent update conflict, retry")

	// ErrAlreadyExists is returned by stores when an insert hits the
	// client_order_id unique index.
	ErrAlreadyExists = errors.New("order already exists")
)

type ProductNotFoundError struct{ ProductID string }

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

type ProductUnavailableError struct{ ProductID string }

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product unavailable: %s", e.ProductID)
}

// StockError carries the shortfall so the client can trim its request.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type BalanceError struct {
	RequiredCents  int
	AvailableCents int
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d cents, available %d cents",
		e.RequiredCents, e.AvailableCents)
}
