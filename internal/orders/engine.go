package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultCashDue = 15 * time.Minute

type OrderLine struct {
	ProductID  string `json:"product_id"`
	MealPeriod string `json:"meal_period,omitempty"`
	Qty        int    `json:"quantity"`
	PriceCents int    `json:"price_at_order"`
}

type CreateOrderRequest struct {
	ParentID      string        `json:"parent_id"`
	StudentID     string        `json:"student_id"`
	ClientOrderID string        `json:"client_order_id"`
	ScheduledFor  string        `json:"scheduled_for"`
	Items         []OrderLine   `json:"items"`
	Method        PaymentMethod `json:"payment_method"`
	Notes         string        `json:"notes,omitempty"`
}

type Receipt struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentDueAt  *time.Time    `json:"payment_due_at,omitempty"`
	TotalCents    int           `json:"total_cents"`
	Replayed      bool          `json:"-"`
}

// Engine turns one validated request into one committed order. The commit
// is a saga over individually guarded writes: stock decrements, then the
// order insert, then the wallet deduct. Any failure after the first stock
// decrement rolls the earlier steps back before the error is returned, so a
// caller never observes a failed submission that kept stock. The engine
// never retries; that belongs to the checkout orchestrator or the human.
type Engine struct {
	Products ProductStore
	Orders   OrderStore
	Wallets  WalletStore
	Parents  OwnershipStore
	Ledger   LedgerStore

	CashDue time.Duration    // zero means DefaultCashDue
	Now     func() time.Time // zero means time.Now
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) cashDue() time.Duration {
	if e.CashDue > 0 {
		return e.CashDue
	}
	return DefaultCashDue
}

func validateRequest(req CreateOrderRequest) error {
	switch {
	case req.ParentID == "" || req.StudentID == "" || req.ClientOrderID == "":
		return fmt.Errorf("missing identity fields")
	case len(req.Items) == 0:
		return fmt.Errorf("empty item list")
	case !req.Method.Valid():
		return fmt.Errorf("unknown payment method %q", req.Method)
	}
	if _, err := time.Parse("2006-01-02", req.ScheduledFor); err != nil {
		return fmt.Errorf("bad scheduled_for %q", req.ScheduledFor)
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Qty <= 0 {
			return fmt.Errorf("bad line for product %q", it.ProductID)
		}
	}
	return nil
}

func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Receipt, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	owns, err := e.Parents.ParentOwnsStudent(ctx, req.ParentID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, ErrNotOwned
	}

	// Idempotent replay: an existing order under the same key is the
	// answer, not an error.
	if existing, err := e.Orders.GetByClientOrderID(ctx, req.ClientOrderID); err != nil {
		return nil, err
	} else if existing != nil {
		return replayReceipt(existing), nil
	}

	// Re-price from the catalog; client prices are only an estimate.
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	catalog, err := e.Products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, it := range req.Items {
		p, ok := catalog[it.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if !p.Available {
			return nil, &ProductUnavailableError{ProductID: it.ProductID}
		}
		if p.Stock < it.Qty {
			return nil, &StockError{ProductID: it.ProductID, Requested: it.Qty, Available: p.Stock}
		}
		total += p.PriceCents * it.Qty
	}

	observedBalance := 0
	if req.Method == PayBalance {
		balance, found, err := e.Wallets.GetBalance(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNoWallet
		}
		if balance < total {
			return nil, &BalanceError{RequiredCents: total, AvailableCents: balance}
		}
		observedBalance = balance
	}

	// Commit step (a): conditional stock decrements. Two checkouts racing
	// over the same product both pass the read above; only the guarded
	// UPDATE decides who keeps the unit.
	decremented := make([]OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		ok, err := e.Products.DecrementStock(ctx, it.ProductID, it.Qty)
		if err == nil && !ok {
			err = e.stockLost(ctx, it)
		}
		if err != nil {
			e.restoreStock(ctx, decremented)
			return nil, err
		}
		decremented = append(decremented, it)
	}

	// Commit steps (b)+(c): derive the initial lifecycle state and insert.
	now := e.now()
	o := &Order{
		ID:            uuid.NewString(),
		ParentID:      req.ParentID,
		StudentID:     req.StudentID,
		ClientOrderID: req.ClientOrderID,
		ScheduledFor:  req.ScheduledFor,
		Method:        req.Method,
		TotalCents:    total,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Method == PayCash {
		due := now.Add(e.cashDue())
		o.Status = StatusAwaitingPayment
		o.PaymentStatus = PaymentAwaiting
		o.PaymentDueAt = &due
	} else {
		o.Status = StatusPending
		o.PaymentStatus = PaymentPaid
	}

	items := make([]OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, OrderItem{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  it.ProductID,
			MealPeriod: it.MealPeriod,
			Qty:        it.Qty,
			PriceCents: catalog[it.ProductID].PriceCents,
		})
	}

	if err := e.Orders.Insert(ctx, o, items); err != nil {
		e.restoreStock(ctx, decremented)
		if errors.Is(err, ErrAlreadyExists) {
			// Lost the insert race to a concurrent submission with the
			// same key; hand back the winner.
			winner, gerr := e.Orders.GetByClientOrderID(ctx, req.ClientOrderID)
			if gerr == nil && winner != nil {
				return replayReceipt(winner), nil
			}
		}
		return nil, err
	}

	// Commit step (d): wallet deduct keyed on the balance observed in the
	// precondition. Step (e): on a lost race, unwind (a) and (c) before
	// surfacing the retryable conflict.
	if req.Method == PayBalance {
		ok, err := e.Wallets.DeductBalance(ctx, req.ParentID, total, observedBalance)
		if err == nil && !ok {
			err = ErrConflict
		}
		if err != nil {
			_ = e.Orders.Delete(ctx, o.ID)
			e.restoreStock(ctx, decremented)
			return nil, err
		}
	}

	// Commit step (f): ledger entry. A failure here unwinds everything —
	// the caller must never see a failed submission that kept its stock,
	// order or wallet deduction.
	settlement := SettlementCompleted
	if req.Method == PayCash {
		settlement = SettlementPending
	}
	if err := e.Ledger.Append(ctx, &Transaction{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		ParentID:    o.ParentID,
		Method:      o.Method,
		AmountCents: o.TotalCents,
		Settlement:  settlement,
		CreatedAt:   now,
	}); err != nil {
		if req.Method == PayBalance {
			_ = e.Wallets.CreditBalance(ctx, req.ParentID, total)
		}
		_ = e.Orders.Delete(ctx, o.ID)
		e.restoreStock(ctx, decremented)
		return nil, err
	}

	return &Receipt{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentDueAt:  o.PaymentDueAt,
		TotalCents:    o.TotalCents,
	}, nil
}

// stockLost re-reads the product so the error names the actual shortfall.
func (e *Engine) stockLost(ctx context.Context, it OrderLine) error {
	available := 0
	if ps, err := e.Products.GetProducts(ctx, []string{it.ProductID}); err == nil {
		if p, ok := ps[it.ProductID]; ok {
			available = p.Stock
		}
	}
	return &StockError{ProductID: it.ProductID, Requested: it.Qty, Available: available}
}

func (e *Engine) restoreStock(ctx context.Context, lines []OrderLine) {
	for _, it := range lines {
		_ = e.Products.RestoreStock(ctx, it.ProductID, it.Qty)
	}
}

func replayReceipt(o *Order) *Receipt {
	return &Receipt{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentDueAt:  o.PaymentDueAt,
		TotalCents:    o.TotalCents,
		Replayed:      true,
	}
}
