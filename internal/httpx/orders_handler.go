package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
)

type OrdersHandler struct {
	Engine   *orders.Engine
	Orders   orders.OrderStore
	Products orders.ProductStore
	Producer kafkax.Publisher // order.created
	Redis    *redis.Client
	Service  string
}

// cachedStatus is the Redis status-cache entry. parent_id rides along so
// the cache fast-path can enforce ownership without a DB read.
type cachedStatus struct {
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	ParentID      string               `json:"parent_id"`
}

func (c cachedStatus) visibleTo(caller Identity) bool {
	if caller.Staff() {
		return true
	}
	return c.ParentID != "" && c.ParentID == caller.ParentID
}

type CreateOrderReq struct {
	StudentID     string             `json:"student_id"`
	ClientOrderID string             `json:"client_order_id"`
	ScheduledFor  string             `json:"scheduled_for"`
	Items         []orders.OrderLine `json:"items"`
	Method        string             `json:"payment_method"`
	Notes         string             `json:"notes,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	caller := CallerIdentity(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	receipt, err := h.Engine.CreateOrder(ctx, orders.CreateOrderRequest{
		ParentID:      caller.ParentID,
		StudentID:     req.StudentID,
		ClientOrderID: req.ClientOrderID,
		ScheduledFor:  req.ScheduledFor,
		Items:         req.Items,
		Method:        orders.PaymentMethod(req.Method),
		Notes:         req.Notes,
	})
	if err != nil {
		code, body := errorBody(err)
		writeJSON(w, code, body)
		return
	}
	if receipt.Replayed {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":             "DUPLICATE_ORDER",
			"existing_order_id": receipt.OrderID,
			"status":            receipt.Status,
			"payment_status":    receipt.PaymentStatus,
			"total_cents":       receipt.TotalCents,
		})
		return
	}

	h.afterCreate(ctx, r.Header.Get("X-Request-Id"), caller.ParentID, req, receipt)
	writeJSON(w, http.StatusOK, receipt)
}

// afterCreate records the Redis shortcuts and publishes OrderCreated. The
// order is already durable; these are best-effort.
func (h *OrdersHandler) afterCreate(ctx context.Context, traceID, parentID string, req CreateOrderReq, rc *orders.Receipt) {
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ClientOrderID)
	_ = h.Redis.Set(ctx, idemKey, rc.OrderID, redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, rc.OrderID)
	_ = h.Redis.Set(ctx, statusKey, kafkax.MustMarshal(cachedStatus{
		Status: rc.Status, PaymentStatus: rc.PaymentStatus, ParentID: parentID,
	}), redisx.TTLStatusCache).Err()

	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: rc.OrderID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:       rc.OrderID,
			ClientOrderID: req.ClientOrderID,
			ParentID:      parentID,
			StudentID:     req.StudentID,
			ScheduledFor:  req.ScheduledFor,
			Method:        orders.PaymentMethod(req.Method),
			Status:        rc.Status,
			PaymentStatus: rc.PaymentStatus,
			PaymentDueAt:  rc.PaymentDueAt,
			TotalCents:    rc.TotalCents,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(rc.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	caller := CallerIdentity(r)

	// cache first, DB as fallback; a cached entry serves only its owner
	// (or staff), anything else falls through to the DB's ownership check
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var c cachedStatus
		if json.Unmarshal([]byte(s), &c) == nil && c.visibleTo(caller) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status": c.Status, "payment_status": c.PaymentStatus,
			})
			return
		}
	}

	o, _, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		code, body := errorBody(err)
		writeJSON(w, code, body)
		return
	}
	if !caller.Staff() && o.ParentID != caller.ParentID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "FORBIDDEN"})
		return
	}

	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(cachedStatus{
		Status: o.Status, PaymentStatus: o.PaymentStatus, ParentID: o.ParentID,
	}), redisx.TTLStatusCache).Err()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": o.Status, "payment_status": o.PaymentStatus,
	})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
