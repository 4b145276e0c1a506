package payments

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

// Sweeper cancels cash orders whose payment deadline has passed and puts
// their stock back. It is the only time-driven transition in the system;
// the engine itself never branches on the clock at read time.
type Sweeper struct {
	Orders   orders.OrderStore
	Products orders.ProductStore
	Ledger   orders.LedgerStore

	Events      kafkax.Publisher // order.payment.timeout; may be nil
	ServiceName string
	Interval    time.Duration    // zero means one minute
	Now         func() time.Time // zero means time.Now
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Run sweeps on a fixed interval until ctx is done. Errors are transient by
// policy: log and let the next cycle retry.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("sweep: %v", err)
			}
			if n > 0 {
				log.Printf("sweep: cancelled %d expired cash orders", n)
			}
		}
	}
}

// SweepOnce handles one cycle and returns how many orders it cancelled.
// The timeout transition is conditional on the order still awaiting cash,
// so a confirmation or a parent cancel that landed between the scan and the
// write makes this a no-op for that order.
//
// Restoration runs as a second pass over every cancelled order whose stock
// has not gone back yet, so a restore that failed mid-cycle (here or in a
// cancel call) is retried until it lands instead of losing the units.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.Orders.ListExpiredAwaitingCash(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	var lastErr error
	for _, o := range expired {
		ok, err := s.Orders.MarkTimedOut(ctx, o.ID, now)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			continue // staff confirmed or the parent cancelled first
		}

		_, items, err := s.Orders.GetOrder(ctx, o.ID)
		if err != nil {
			lastErr = err
			continue
		}
		restored := make([]orders.ItemQty, 0, len(items))
		for _, it := range items {
			restored = append(restored, orders.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
		}
		if err := s.Ledger.Settle(ctx, o.ID, orders.SettlementVoided); err != nil {
			lastErr = err
		}

		s.publishTimeout(o, restored, now)
		count++
	}

	if err := s.restorePass(ctx); err != nil {
		lastErr = err
	}
	return count, lastErr
}

// restorePass returns stock for cancelled orders still carrying it. The
// restore is one atomic write per order and the restored flag flips only
// after it lands, so retries never double-count.
func (s *Sweeper) restorePass(ctx context.Context) error {
	pending, err := s.Orders.ListCancelledUnrestored(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, o := range pending {
		_, items, err := s.Orders.GetOrder(ctx, o.ID)
		if err != nil {
			lastErr = err
			continue
		}
		restored := make([]orders.ItemQty, 0, len(items))
		for _, it := range items {
			restored = append(restored, orders.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
		}
		if err := s.Products.RestoreStockAll(ctx, restored); err != nil {
			lastErr = err
			continue
		}
		if err := s.Orders.MarkStockRestored(ctx, o.ID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Sweeper) publishTimeout(o orders.Order, restored []orders.ItemQty, now time.Time) {
	if s.Events == nil {
		return
	}
	due := now
	if o.PaymentDueAt != nil {
		due = *o.PaymentDueAt
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentTimedOut,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.PaymentTimedOutPayload{
			OrderID: o.ID, ParentID: o.ParentID, DueAt: due, Restored: restored,
		}),
	}
	s.Events.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentTimedOut)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
