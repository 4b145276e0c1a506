package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated    = "OrderCreated"
	EventCashConfirmed   = "CashPaymentConfirmed"
	EventPaymentTimedOut = "PaymentTimedOut"
	EventOrderCancelled  = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	ClientOrderID string        `json:"client_order_id"`
	ParentID      string        `json:"parent_id"`
	StudentID     string        `json:"student_id"`
	ScheduledFor  string        `json:"scheduled_for"`
	Method        PaymentMethod `json:"payment_method"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentDueAt  *time.Time    `json:"payment_due_at,omitempty"`
	TotalCents    int           `json:"total_cents"`
}

type CashConfirmedPayload struct {
	OrderID     string    `json:"order_id"`
	ParentID    string    `json:"parent_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type PaymentTimedOutPayload struct {
	OrderID  string    `json:"order_id"`
	ParentID string    `json:"parent_id"`
	DueAt    time.Time `json:"due_at"`
	Restored []ItemQty `json:"restored,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID       string        `json:"order_id"`
	ParentID      string        `json:"parent_id"`
	CancelledBy   string        `json:"cancelled_by"` // parent_id or "staff"
	PaymentStatus PaymentStatus `json:"payment_status"`
	RefundCents   int           `json:"refund_cents,omitempty"`
	Restored      []ItemQty     `json:"restored,omitempty"`
}
