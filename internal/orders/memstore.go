package orders

import (
	"context"
	"sync"
	"time"
)

// MemStore is a mutex-guarded implementation of every store interface with
// the same conditional-update semantics as the Postgres repos. It backs the
// test suite and local development without a database.
type MemStore struct {
	mu       sync.Mutex
	products map[string]*Product
	orders   map[string]*Order
	items    map[string][]OrderItem
	byClient map[string]string // client_order_id -> order_id
	wallets  map[string]*Wallet
	ledger   []*Transaction
	children map[string]map[string]bool // parent_id -> student ids
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[string]*Product{},
		orders:   map[string]*Order{},
		items:    map[string][]OrderItem{},
		byClient: map[string]string{},
		wallets:  map[string]*Wallet{},
		children: map[string]map[string]bool{},
	}
}

// ---- seeding helpers ----

func (s *MemStore) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

func (s *MemStore) AddWallet(parentID string, balanceCents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[parentID] = &Wallet{ParentID: parentID, BalanceCents: balanceCents}
}

func (s *MemStore) LinkStudent(parentID, studentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.children[parentID] == nil {
		s.children[parentID] = map[string]bool{}
	}
	s.children[parentID][studentID] = true
}

// SetStatus force-sets a lifecycle status; seeding only (kitchen-side
// transitions are out of this module's scope).
func (s *MemStore) SetStatus(orderID string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.Status = st
	}
}

func (s *MemStore) Product(id string) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

func (s *MemStore) Wallet(parentID string) (Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[parentID]
	if !ok {
		return Wallet{}, false
	}
	return *w, true
}

func (s *MemStore) Transactions(orderID string) []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, t := range s.ledger {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out
}

// ---- ProductStore ----

func (s *MemStore) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (s *MemStore) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || !p.Available || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *MemStore) RestoreStock(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Stock += qty
	}
	return nil
}

func (s *MemStore) RestoreStockAll(ctx context.Context, items []ItemQty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if p, ok := s.products[it.ProductID]; ok {
			p.Stock += it.Qty
		}
	}
	return nil
}

func (s *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

// ---- OrderStore ----

func (s *MemStore) GetOrder(ctx context.Context, orderID string) (*Order, []OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	cp := *o
	items := append([]OrderItem(nil), s.items[orderID]...)
	return &cp, items, nil
}

func (s *MemStore) GetByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byClient[clientOrderID]
	if !ok {
		return nil, nil
	}
	cp := *s.orders[id]
	return &cp, nil
}

func (s *MemStore) Insert(ctx context.Context, o *Order, items []OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byClient[o.ClientOrderID]; taken {
		return ErrAlreadyExists
	}
	cp := *o
	s.orders[o.ID] = &cp
	s.items[o.ID] = append([]OrderItem(nil), items...)
	s.byClient[o.ClientOrderID] = o.ID
	return nil
}

func (s *MemStore) Delete(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		delete(s.byClient, o.ClientOrderID)
	}
	delete(s.orders, orderID)
	delete(s.items, orderID)
	return nil
}

func (s *MemStore) MarkCashPaid(ctx context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != StatusAwaitingPayment || o.PaymentStatus != PaymentAwaiting {
		return false, nil
	}
	o.Status = StatusPending
	o.PaymentStatus = PaymentPaid
	o.UpdatedAt = now
	return true, nil
}

func (s *MemStore) MarkTimedOut(ctx context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != StatusAwaitingPayment || o.PaymentStatus != PaymentAwaiting {
		return false, nil
	}
	o.Status = StatusCancelled
	o.PaymentStatus = PaymentTimeout
	o.UpdatedAt = now
	return true, nil
}

func (s *MemStore) MarkCancelled(ctx context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || !Cancellable(o.Status) {
		return false, nil
	}
	o.Status = StatusCancelled
	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	o.UpdatedAt = now
	return true, nil
}

func (s *MemStore) MarkStockRestored(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.StockRestored = true
	}
	return nil
}

func (s *MemStore) ListCancelledUnrestored(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == StatusCancelled && !o.StockRestored {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *MemStore) ListExpiredAwaitingCash(ctx context.Context, now time.Time) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == StatusAwaitingPayment && o.PaymentStatus == PaymentAwaiting &&
			o.PaymentDueAt != nil && o.PaymentDueAt.Before(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// ---- WalletStore ----

func (s *MemStore) GetBalance(ctx context.Context, parentID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[parentID]
	if !ok {
		return 0, false, nil
	}
	return w.BalanceCents, true, nil
}

func (s *MemStore) DeductBalance(ctx context.Context, parentID string, amount, observed int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[parentID]
	if !ok || w.BalanceCents != observed || w.BalanceCents < amount {
		return false, nil
	}
	w.BalanceCents -= amount
	return true, nil
}

func (s *MemStore) CreditBalance(ctx context.Context, parentID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[parentID]; ok {
		w.BalanceCents += amount
	}
	return nil
}

// ---- OwnershipStore ----

func (s *MemStore) ParentOwnsStudent(ctx context.Context, parentID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children[parentID][studentID], nil
}

// ---- LedgerStore ----

func (s *MemStore) Append(ctx context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.ledger = append(s.ledger, &cp)
	return nil
}

func (s *MemStore) Settle(ctx context.Context, orderID, settlement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.ledger {
		if t.OrderID == orderID {
			t.Settlement = settlement
		}
	}
	return nil
}
