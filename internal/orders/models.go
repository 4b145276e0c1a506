package orders

import "time"

type PaymentMethod string

const (
	PayCash    PaymentMethod = "cash"
	PayBalance PaymentMethod = "balance"
	PayGcash   PaymentMethod = "gcash"
	PayMaya    PaymentMethod = "paymaya"
	PayCard    PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCash, PayBalance, PayGcash, PayMaya, PayCard:
		return true
	}
	return false
}

// Prepaid reports whether the method settles at order time. Cash is the
// only method collected later at the counter.
func (m PaymentMethod) Prepaid() bool { return m != PayCash }

type Product struct {
	ID         string
	SKU        string
	Name       string
	Stock      int
	PriceCents int
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Order struct {
	ID            string
	ParentID      string
	StudentID     string
	ClientOrderID string
	ScheduledFor  string // delivery date, YYYY-MM-DD
	Method        PaymentMethod
	Status        Status
	PaymentStatus PaymentStatus
	PaymentDueAt  *time.Time // set only for cash orders
	TotalCents    int
	Notes         string
	StockRestored bool // set once a cancelled order's stock went back
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	MealPeriod string
	Qty        int
	PriceCents int // frozen at order time
}

type Wallet struct {
	ParentID     string
	BalanceCents int
	UpdatedAt    time.Time
}

// Settlement states for ledger entries.
const (
	SettlementPending   = "pending"
	SettlementCompleted = "completed"
	SettlementRefunded  = "refunded"
	SettlementVoided    = "voided"
)

// Transaction is an append-only audit record; only its settlement column
// moves after insert.
type Transaction struct {
	ID          string
	OrderID     string
	ParentID    string
	Method      PaymentMethod
	AmountCents int
	Settlement  string
	CreatedAt   time.Time
}
