package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	parentID  = "parent-1"
	studentID = "student-1"
)

func seededStore() *MemStore {
	s := NewMemStore()
	s.AddProduct(Product{ID: "adobo", SKU: "ADB", Name: "Adobo", Stock: 10, PriceCents: 6500, Available: true})
	s.AddProduct(Product{ID: "juice", SKU: "JUI", Name: "Calamansi Juice", Stock: 20, PriceCents: 2500, Available: true})
	s.AddProduct(Product{ID: "halo", SKU: "HAL", Name: "Halo-halo", Stock: 5, PriceCents: 5000, Available: false})
	s.LinkStudent(parentID, studentID)
	s.AddWallet(parentID, 10000)
	return s
}

func newTestEngine(s *MemStore) *Engine {
	return &Engine{Products: s, Orders: s, Wallets: s, Parents: s, Ledger: s}
}

func baseRequest(key string, method PaymentMethod) CreateOrderRequest {
	return CreateOrderRequest{
		ParentID:      parentID,
		StudentID:     studentID,
		ClientOrderID: key,
		ScheduledFor:  "2026-09-01",
		Items:         []OrderLine{{ProductID: "adobo", MealPeriod: "lunch", Qty: 1, PriceCents: 6500}},
		Method:        method,
	}
}

func TestCreateOrderCashHappyPath(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	before := time.Now().UTC()

	rc, err := e.CreateOrder(context.Background(), baseRequest("ck-1:student-1:2026-09-01", PayCash))
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, rc.Status)
	assert.Equal(t, PaymentAwaiting, rc.PaymentStatus)
	assert.Equal(t, 6500, rc.TotalCents)
	require.NotNil(t, rc.PaymentDueAt)
	assert.WithinDuration(t, before.Add(DefaultCashDue), *rc.PaymentDueAt, 5*time.Second)

	p, _ := s.Product("adobo")
	assert.Equal(t, 9, p.Stock)

	txs := s.Transactions(rc.OrderID)
	require.Len(t, txs, 1)
	assert.Equal(t, SettlementPending, txs[0].Settlement)
	assert.Equal(t, 6500, txs[0].AmountCents)
}

func TestCreateOrderBalancePath(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)

	rc, err := e.CreateOrder(context.Background(), baseRequest("ck-2:student-1:2026-09-01", PayBalance))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rc.Status)
	assert.Equal(t, PaymentPaid, rc.PaymentStatus)
	assert.Nil(t, rc.PaymentDueAt)

	w, _ := s.Wallet(parentID)
	assert.Equal(t, 10000-6500, w.BalanceCents)

	txs := s.Transactions(rc.OrderID)
	require.Len(t, txs, 1)
	assert.Equal(t, SettlementCompleted, txs[0].Settlement)
}

func TestCreateOrderRepricesFromCatalog(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)

	req := baseRequest("ck-3:student-1:2026-09-01", PayCash)
	req.Items[0].PriceCents = 1 // stale cart price must not win
	rc, err := e.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 6500, rc.TotalCents)

	_, items, err := s.GetOrder(context.Background(), rc.OrderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 6500, items[0].PriceCents)
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	req := baseRequest("ck-4:student-1:2026-09-01", PayCash)

	first, err := e.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := e.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.Status, second.Status)

	// only one decrement happened
	p, _ := s.Product("adobo")
	assert.Equal(t, 9, p.Stock)
}

func TestCreateOrderOwnership(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	req := baseRequest("ck-5:x:2026-09-01", PayCash)
	req.StudentID = "someone-elses-kid"

	_, err := e.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestCreateOrderValidation(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)

	req := baseRequest("ck-6:x:2026-09-01", PayCash)
	req.Items = nil
	_, err := e.CreateOrder(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest("ck-7:x:2026-09-01", PaymentMethod("barter"))
	_, err = e.CreateOrder(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest("ck-8:x:2026-09-01", PayCash)
	req.ScheduledFor = "next tuesday"
	_, err = e.CreateOrder(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest("ck-9:x:2026-09-01", PayCash)
	req.Items[0].Qty = 0
	_, err = e.CreateOrder(context.Background(), req)
	assert.Error(t, err)
}

func TestCreateOrderProductErrors(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)

	req := baseRequest("ck-10:x:2026-09-01", PayCash)
	req.Items[0].ProductID = "ghost"
	_, err := e.CreateOrder(context.Background(), req)
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "ghost", pnf.ProductID)

	req = baseRequest("ck-11:x:2026-09-01", PayCash)
	req.Items[0].ProductID = "halo"
	_, err = e.CreateOrder(context.Background(), req)
	var pua *ProductUnavailableError
	require.ErrorAs(t, err, &pua)

	req = baseRequest("ck-12:x:2026-09-01", PayCash)
	req.Items[0].Qty = 99
	_, err = e.CreateOrder(context.Background(), req)
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 99, se.Requested)
	assert.Equal(t, 10, se.Available)
}

func TestCreateOrderBalanceErrors(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)

	req := baseRequest("ck-13:x:2026-09-01", PayBalance)
	req.Items[0].Qty = 2 // 13000 > 10000
	_, err := e.CreateOrder(context.Background(), req)
	var be *BalanceError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 13000, be.RequiredCents)
	assert.Equal(t, 10000, be.AvailableCents)

	other := "parent-2"
	s.LinkStudent(other, "student-2")
	req = baseRequest("ck-14:x:2026-09-01", PayBalance)
	req.ParentID = other
	req.StudentID = "student-2"
	_, err = e.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoWallet)
}

// casFailWallets always loses the compare-and-swap, simulating a concurrent
// deduction between the balance check and the write.
type casFailWallets struct{ WalletStore }

func (casFailWallets) DeductBalance(ctx context.Context, parentID string, amount, observed int) (bool, error) {
	return false, nil
}

func TestCreateOrderCompensatesLostBalanceRace(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	e.Wallets = casFailWallets{s}

	req := baseRequest("ck-15:x:2026-09-01", PayBalance)
	_, err := e.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrConflict)

	// exact restoration: stock back where it was, no order, wallet untouched
	p, _ := s.Product("adobo")
	assert.Equal(t, 10, p.Stock)
	existing, err := s.GetByClientOrderID(context.Background(), req.ClientOrderID)
	require.NoError(t, err)
	assert.Nil(t, existing)
	w, _ := s.Wallet(parentID)
	assert.Equal(t, 10000, w.BalanceCents)
}

// ledgerFailStore rejects every append, simulating the audit store down.
type ledgerFailStore struct{ LedgerStore }

func (ledgerFailStore) Append(ctx context.Context, tx *Transaction) error {
	return errors.New("ledger unavailable")
}

func TestCreateOrderCompensatesLedgerFailure(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	e.Ledger = ledgerFailStore{s}

	req := baseRequest("ck-16:x:2026-09-01", PayBalance)
	_, err := e.CreateOrder(context.Background(), req)
	require.Error(t, err)

	// a failed submission leaves nothing behind: stock, wallet and the
	// order itself all back where they started
	p, _ := s.Product("adobo")
	assert.Equal(t, 10, p.Stock)
	w, _ := s.Wallet(parentID)
	assert.Equal(t, 10000, w.BalanceCents)
	existing, gerr := s.GetByClientOrderID(context.Background(), req.ClientOrderID)
	require.NoError(t, gerr)
	assert.Nil(t, existing)
}

func TestConcurrentOversell(t *testing.T) {
	s := NewMemStore()
	s.AddProduct(Product{ID: "last-one", SKU: "L1", Name: "Last Cup", Stock: 1, PriceCents: 100, Available: true})
	s.LinkStudent(parentID, studentID)
	s.AddWallet(parentID, 100000)
	e := newTestEngine(s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := baseRequest(fmt.Sprintf("race-%d:student-1:2026-09-01", i), PayBalance)
			req.Items = []OrderLine{{ProductID: "last-one", Qty: 1}}
			_, errs[i] = e.CreateOrder(context.Background(), req)
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			var se *StockError
			assert.ErrorAs(t, err, &se)
		}
	}
	assert.Equal(t, 1, okCount)
	p, _ := s.Product("last-one")
	assert.Equal(t, 0, p.Stock)
}

func TestConcurrentBalanceRace(t *testing.T) {
	s := NewMemStore()
	s.AddProduct(Product{ID: "meal", SKU: "M1", Name: "Meal", Stock: 100, PriceCents: 8000, Available: true})
	s.LinkStudent(parentID, studentID)
	s.AddWallet(parentID, 10000)
	e := newTestEngine(s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := baseRequest(fmt.Sprintf("brace-%d:student-1:2026-09-01", i), PayBalance)
			req.Items = []OrderLine{{ProductID: "meal", Qty: 1}}
			_, errs[i] = e.CreateOrder(context.Background(), req)
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		}
	}
	require.Equal(t, 1, okCount, "exactly one checkout may spend the wallet")

	w, _ := s.Wallet(parentID)
	assert.Equal(t, 2000, w.BalanceCents)
	// loser's stock fully restored
	p, _ := s.Product("meal")
	assert.Equal(t, 99, p.Stock)
}

func TestConcurrentDuplicateKey(t *testing.T) {
	s := seededStore()
	e := newTestEngine(s)
	req := baseRequest("dup:student-1:2026-09-01", PayCash)

	var wg sync.WaitGroup
	receipts := make([]*Receipt, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = e.CreateOrder(context.Background(), req)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, receipts[0].OrderID, receipts[1].OrderID)

	// one persisted order, one decrement
	p, _ := s.Product("adobo")
	assert.Equal(t, 9, p.Stock)
}

func TestStockConservation(t *testing.T) {
	s := NewMemStore()
	s.AddProduct(Product{ID: "siopao", SKU: "S1", Name: "Siopao", Stock: 5, PriceCents: 1500, Available: true})
	s.LinkStudent(parentID, studentID)
	e := newTestEngine(s)

	const attempts = 12
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := baseRequest(fmt.Sprintf("cons-%d:student-1:2026-09-01", i), PayCash)
			req.Items = []OrderLine{{ProductID: "siopao", Qty: 1}}
			_, errs[i] = e.CreateOrder(context.Background(), req)
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else if !errors.As(err, new(*StockError)) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	assert.Equal(t, 5, okCount)
	p, _ := s.Product("siopao")
	assert.Equal(t, 0, p.Stock)
}
