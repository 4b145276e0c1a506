package statuscache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
)

// Service folds order lifecycle events into the Redis status cache so GET
// /orders/{id} stays cheap after the sweeper or staff move an order. The
// database remains the source of truth; a stale or missing cache entry just
// costs one query.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

type cached struct {
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	ParentID      string               `json:"parent_id"`
}

// HandleEvent is installed as the consumer handler for every lifecycle topic.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event_id; redelivery is expected, reprocessing is not
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	var c cached
	var orderID string
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		c = cached{Status: p.Status, PaymentStatus: p.PaymentStatus, ParentID: p.ParentID}
	case orders.EventCashConfirmed:
		p, err := kafkax.UnwrapPayload[orders.CashConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		c = cached{Status: orders.StatusPending, PaymentStatus: orders.PaymentPaid, ParentID: p.ParentID}
	case orders.EventPaymentTimedOut:
		p, err := kafkax.UnwrapPayload[orders.PaymentTimedOutPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		c = cached{Status: orders.StatusCancelled, PaymentStatus: orders.PaymentTimeout, ParentID: p.ParentID}
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		c = cached{Status: orders.StatusCancelled, PaymentStatus: p.PaymentStatus, ParentID: p.ParentID}
	default:
		return nil // ignore
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	return s.Redis.Set(ctx, key, kafkax.MustMarshal(c), redisx.TTLStatusCache).Err()
}
