package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/payments"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
)

type PaymentsHandler struct {
	Svc   *payments.Service
	Redis *redis.Client
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/orders/{id}/confirm-cash-payment", h.confirmCash)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func (h *PaymentsHandler) confirmCash(w http.ResponseWriter, r *http.Request) {
	if !CallerIdentity(r).Staff() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "FORBIDDEN"})
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.ConfirmCash(ctx, orderID)
	if err != nil {
		code, body := errorBody(err)
		writeJSON(w, code, body)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
	})
}

func (h *PaymentsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	caller := CallerIdentity(r)
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Cancel(ctx, orderID, caller.ParentID, caller.Staff())
	if err != nil {
		code, body := errorBody(err)
		writeJSON(w, code, body)
		return
	}
	h.cacheStatus(ctx, o)

	refund := 0
	if o.PaymentStatus == orders.PaymentRefunded && o.Method == orders.PayBalance {
		refund = o.TotalCents
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"refund_cents":   refund,
	})
}

func (h *PaymentsHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(cachedStatus{
		Status: o.Status, PaymentStatus: o.PaymentStatus, ParentID: o.ParentID,
	}), redisx.TTLStatusCache).Err()
}
