package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

// Service applies the staff-facing payment transitions: cash confirmation
// and cancellation/refund. Both run through conditional updates so a race
// with the sweeper (or a second staff click) resolves to exactly one
// winner; the loser reads back the state that beat it.
type Service struct {
	Orders   orders.OrderStore
	Products orders.ProductStore
	Wallets  orders.WalletStore
	Ledger   orders.LedgerStore

	EventsConfirmed kafkax.Publisher // order.payment.confirmed; may be nil
	EventsCancelled kafkax.Publisher // order.cancelled; may be nil
	ServiceName     string
	Now             func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ConfirmCash moves a cash order from awaiting_payment to paid. Rejected
// when the order is not cash, already paid, or past its deadline.
func (s *Service) ConfirmCash(ctx context.Context, orderID string) (*orders.Order, error) {
	o, _, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Method != orders.PayCash {
		return nil, orders.ErrInvalidPaymentMethod
	}
	switch o.PaymentStatus {
	case orders.PaymentPaid:
		return nil, orders.ErrAlreadyPaid
	case orders.PaymentTimeout:
		return nil, orders.ErrPaymentTimeout
	}
	// A cancelled order can still carry payment_status awaiting_payment
	// (parent cancelled before paying); its stock is already back.
	if o.Status == orders.StatusCancelled {
		return nil, orders.ErrOrderCancelled
	}
	now := s.now()
	if o.PaymentDueAt != nil && now.After(*o.PaymentDueAt) {
		return nil, orders.ErrPaymentTimeout
	}

	ok, err := s.Orders.MarkCashPaid(ctx, orderID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the conditional update; report whatever landed instead.
		cur, _, rerr := s.Orders.GetOrder(ctx, orderID)
		if rerr == nil {
			switch {
			case cur.PaymentStatus == orders.PaymentPaid:
				return nil, orders.ErrAlreadyPaid
			case cur.Status == orders.StatusCancelled && cur.PaymentStatus == orders.PaymentAwaiting:
				return nil, orders.ErrOrderCancelled
			}
		}
		return nil, orders.ErrPaymentTimeout
	}

	if err := s.Ledger.Settle(ctx, orderID, orders.SettlementCompleted); err != nil {
		return nil, err
	}

	o.Status = orders.StatusPending
	o.PaymentStatus = orders.PaymentPaid
	o.UpdatedAt = now

	s.emit(s.EventsConfirmed, orders.EventCashConfirmed, o.ID,
		orders.CashConfirmedPayload{OrderID: o.ID, ParentID: o.ParentID, ConfirmedAt: now})
	return o, nil
}

func (s *Service) emit(pub kafkax.Publisher, eventType, orderID string, payload any) {
	if pub == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	pub.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
