package payments

import (
	"context"
	"log"

	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

// Cancel cancels an order that has not entered fulfillment, restores its
// stock, and refunds a paid balance order to the wallet. The status guard
// and the cancel are one conditional update, so an order the kitchen just
// moved to preparing cannot slip through between check and write.
func (s *Service) Cancel(ctx context.Context, orderID, callerID string, staff bool) (*orders.Order, error) {
	o, items, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !staff && o.ParentID != callerID {
		return nil, orders.ErrForbidden
	}

	now := s.now()
	ok, err := s.Orders.MarkCancelled(ctx, orderID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, orders.ErrNotCancellable
	}

	// Re-read what the conditional update actually applied: a cash
	// confirmation landing between the snapshot above and MarkCancelled
	// makes this a refund, not a void.
	cur, _, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	wasPaid := cur.PaymentStatus == orders.PaymentRefunded

	refund := 0
	if wasPaid {
		if cur.Method == orders.PayBalance {
			if err := s.Wallets.CreditBalance(ctx, cur.ParentID, cur.TotalCents); err != nil {
				return nil, err
			}
			refund = cur.TotalCents
		}
		// Cash/mobile refunds are handed back over the counter; the ledger
		// still records them.
		if err := s.Ledger.Settle(ctx, orderID, orders.SettlementRefunded); err != nil {
			return nil, err
		}
	} else {
		if err := s.Ledger.Settle(ctx, orderID, orders.SettlementVoided); err != nil {
			return nil, err
		}
	}

	// Restoration mirrors the creation-time decrement: same products, same
	// quantities, in one atomic write. The cancel itself is already
	// durable, so a transient restore failure is left for the sweeper's
	// repair scan rather than failing the caller.
	restored := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		restored = append(restored, orders.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	if err := s.Products.RestoreStockAll(ctx, restored); err != nil {
		log.Printf("cancel %s: stock restore deferred: %v", orderID, err)
	} else if err := s.Orders.MarkStockRestored(ctx, orderID); err != nil {
		log.Printf("cancel %s: mark restored: %v", orderID, err)
	}

	by := callerID
	if staff {
		by = "staff"
	}
	s.emit(s.EventsCancelled, orders.EventOrderCancelled, cur.ID, orders.OrderCancelledPayload{
		OrderID:       cur.ID,
		ParentID:      cur.ParentID,
		CancelledBy:   by,
		PaymentStatus: cur.PaymentStatus,
		RefundCents:   refund,
		Restored:      restored,
	})
	return cur, nil
}
