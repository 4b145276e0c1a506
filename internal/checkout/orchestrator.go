package checkout

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

// Submitter is what the orchestrator needs from the Order Processing
// Engine: one request in, one receipt or one error kind out.
type Submitter interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Receipt, error)
}

type Orchestrator struct {
	Engine  Submitter
	Wallets orders.WalletStore
	// MaxInFlight bounds concurrent partition submissions; <=0 means 4.
	MaxInFlight int
}

// PartitionResult reports one (student, date) group's fate.
type PartitionResult struct {
	StudentID     string          `json:"student_id"`
	Date          string          `json:"date"`
	ClientOrderID string          `json:"client_order_id"`
	Receipt       *orders.Receipt `json:"receipt,omitempty"`
	Err           error           `json:"-"`
}

// Outcome aggregates a checkout. Remaining holds the lines of failed
// partitions so the caller can put them back in the cart for retry;
// succeeded partitions' lines are gone.
type Outcome struct {
	Results   []PartitionResult
	Remaining []Line
	Succeeded int
	Failed    int
}

type Request struct {
	ParentID   string
	CheckoutID string // client-generated per checkout click
	Lines      []Line
	Method     orders.PaymentMethod
	Notes      string
	Dates      []string // optional partial-checkout restriction
}

// Checkout partitions the cart and submits each partition independently.
// One partition failing never rolls back the others; the aggregate outcome
// says which went through. For balance payment the combined total is
// checked against the wallet first, so a multi-order checkout is never
// partially funded.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Outcome, error) {
	if req.ParentID == "" || req.CheckoutID == "" {
		return nil, errors.New("missing parent or checkout id")
	}
	if !req.Method.Valid() {
		return nil, errors.New("unknown payment method")
	}

	reqs := Partition(req.ParentID, req.CheckoutID, req.Lines, req.Method, req.Notes, req.Dates)
	if len(reqs) == 0 {
		return &Outcome{}, nil
	}

	if req.Method == orders.PayBalance {
		combined := EstimateTotalCents(req.Lines, req.Dates)
		balance, found, err := o.Wallets.GetBalance(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, orders.ErrNoWallet
		}
		if balance < combined {
			return nil, &orders.BalanceError{RequiredCents: combined, AvailableCents: balance}
		}
	}

	results := make([]PartitionResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	limit := o.MaxInFlight
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for i := range reqs {
		i := i
		g.Go(func() error {
			r := reqs[i]
			receipt, err := o.Engine.CreateOrder(gctx, r)
			results[i] = PartitionResult{
				StudentID:     r.StudentID,
				Date:          r.ScheduledFor,
				ClientOrderID: r.ClientOrderID,
				Receipt:       receipt,
				Err:           err,
			}
			// Partition failures are part of the outcome, never a reason
			// to cancel sibling submissions.
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{Results: results}
	failed := map[partitionKey]bool{}
	for _, r := range results {
		if r.Err != nil {
			out.Failed++
			failed[partitionKey{StudentID: r.StudentID, Date: r.Date}] = true
		} else {
			out.Succeeded++
		}
	}

	wanted := map[string]bool{}
	for _, d := range req.Dates {
		wanted[d] = true
	}
	for _, ln := range req.Lines {
		skipped := len(wanted) > 0 && !wanted[ln.Date]
		if skipped || failed[partitionKey{StudentID: ln.StudentID, Date: ln.Date}] {
			out.Remaining = append(out.Remaining, ln)
		}
	}
	return out, nil
}
