package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-canteen-orders.git/internal/checkout"
	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
)

type CheckoutHandler struct {
	Orch    *checkout.Orchestrator
	Redis   *redis.Client
	Service string
}

type CheckoutReq struct {
	CheckoutID string          `json:"checkout_id"` // client-generated per click
	Method     string          `json:"payment_method"`
	Notes      string          `json:"notes,omitempty"`
	Dates      []string        `json:"dates,omitempty"` // partial checkout
	Items      []checkout.Line `json:"items"`
}

type partitionResp struct {
	StudentID     string          `json:"student_id"`
	Date          string          `json:"date"`
	ClientOrderID string          `json:"client_order_id"`
	Order         *orders.Receipt `json:"order,omitempty"`
	Error         map[string]any  `json:"error,omitempty"`
}

type checkoutResp struct {
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []partitionResp `json:"results"`
	Remaining []checkout.Line `json:"remaining,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.doCheckout)
}

func (h *CheckoutHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CheckoutID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	caller := CallerIdentity(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out, err := h.Orch.Checkout(ctx, checkout.Request{
		ParentID:   caller.ParentID,
		CheckoutID: req.CheckoutID,
		Lines:      req.Items,
		Method:     orders.PaymentMethod(req.Method),
		Notes:      req.Notes,
		Dates:      req.Dates,
	})
	if err != nil {
		code, body := errorBody(err)
		writeJSON(w, code, body)
		return
	}

	resp := checkoutResp{
		Succeeded: out.Succeeded,
		Failed:    out.Failed,
		Remaining: out.Remaining,
	}
	for _, pr := range out.Results {
		p := partitionResp{
			StudentID:     pr.StudentID,
			Date:          pr.Date,
			ClientOrderID: pr.ClientOrderID,
		}
		if pr.Err != nil {
			_, p.Error = errorBody(pr.Err)
		} else {
			p.Order = pr.Receipt
			h.cacheReceipt(ctx, caller.ParentID, pr.ClientOrderID, pr.Receipt)
		}
		resp.Results = append(resp.Results, p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) cacheReceipt(ctx context.Context, parentID, clientOrderID string, rc *orders.Receipt) {
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, clientOrderID)
	_ = h.Redis.Set(ctx, idemKey, rc.OrderID, redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, rc.OrderID)
	_ = h.Redis.Set(ctx, statusKey, kafkax.MustMarshal(cachedStatus{
		Status: rc.Status, PaymentStatus: rc.PaymentStatus, ParentID: parentID,
	}), redisx.TTLStatusCache).Err()
}
