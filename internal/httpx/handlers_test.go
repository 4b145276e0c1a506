package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-canteen-orders.git/internal/checkout"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/payments"
)

const testSecret = "test-secret"

// unreachable redis; handlers treat cache misses and write failures as
// non-fatal, so the DB path is what gets exercised.
func testRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func testServer(t *testing.T) (*orders.MemStore, *httptest.Server) {
	t.Helper()
	s := orders.NewMemStore()
	s.AddProduct(orders.Product{ID: "adobo", SKU: "ADB", Name: "Adobo", Stock: 10, PriceCents: 6500, Available: true})
	s.AddProduct(orders.Product{ID: "juice", SKU: "JUI", Name: "Juice", Stock: 0, PriceCents: 2500, Available: true})
	s.LinkStudent("parent-1", "stu-a")
	s.LinkStudent("parent-1", "stu-b")
	s.AddWallet("parent-1", 50000)

	engine := &orders.Engine{Products: s, Orders: s, Wallets: s, Parents: s, Ledger: s}
	rdb := testRedis()

	router := NewRouter()
	oh := &OrdersHandler{Engine: engine, Orders: s, Products: s, Redis: rdb, Service: "test"}
	ch := &CheckoutHandler{Orch: &checkout.Orchestrator{Engine: engine, Wallets: s}, Redis: rdb, Service: "test"}
	ph := &PaymentsHandler{Svc: &payments.Service{Orders: s, Products: s, Wallets: s, Ledger: s, ServiceName: "test"}, Redis: rdb}
	router.Group(func(pr chi.Router) {
		pr.Use(Auth(testSecret))
		oh.Register(pr)
		ch.Register(pr)
		ph.Register(pr)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return s, srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func parentToken(t *testing.T, parentID string) string {
	t.Helper()
	tok, err := SignToken(testSecret, parentID, "parent", time.Hour)
	require.NoError(t, err)
	return tok
}

func staffToken(t *testing.T) string {
	t.Helper()
	tok, err := SignToken(testSecret, "", RoleStaff, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthRequired(t *testing.T) {
	_, srv := testServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateOrderEndpoint(t *testing.T) {
	_, srv := testServer(t)
	tok := parentToken(t, "parent-1")
	body := map[string]any{
		"student_id":      "stu-a",
		"client_order_id": "web-1:stu-a:2026-09-01",
		"scheduled_for":   "2026-09-01",
		"payment_method":  "cash",
		"items":           []map[string]any{{"product_id": "adobo", "quantity": 1}},
	}

	resp, out := doJSON(t, http.MethodPost, srv.URL+"/orders", tok, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_payment", out["status"])
	assert.Equal(t, "awaiting_payment", out["payment_status"])
	assert.Equal(t, float64(6500), out["total_cents"])
	assert.NotEmpty(t, out["order_id"])
	assert.NotEmpty(t, out["payment_due_at"])

	// same client_order_id resolves to the original order
	resp, out = doJSON(t, http.MethodPost, srv.URL+"/orders", tok, body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_ORDER", out["error"])
	assert.NotEmpty(t, out["existing_order_id"])
}

func TestCreateOrderStockError(t *testing.T) {
	_, srv := testServer(t)
	tok := parentToken(t, "parent-1")
	body := map[string]any{
		"student_id":      "stu-a",
		"client_order_id": "web-2:stu-a:2026-09-01",
		"scheduled_for":   "2026-09-01",
		"payment_method":  "cash",
		"items":           []map[string]any{{"product_id": "juice", "quantity": 1}},
	}

	resp, out := doJSON(t, http.MethodPost, srv.URL+"/orders", tok, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", out["error"])
	assert.Equal(t, float64(0), out["available"])
}

func TestCheckoutEndpointPartialFailure(t *testing.T) {
	_, srv := testServer(t)
	tok := parentToken(t, "parent-1")
	body := map[string]any{
		"checkout_id":    "click-9",
		"payment_method": "cash",
		"items": []map[string]any{
			{"product_id": "adobo", "student_id": "stu-a", "date": "2026-09-01", "quantity": 1, "price_cents": 6500},
			{"product_id": "juice", "student_id": "stu-b", "date": "2026-09-01", "quantity": 1, "price_cents": 2500},
		},
	}

	resp, out := doJSON(t, http.MethodPost, srv.URL+"/checkout", tok, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), out["succeeded"])
	assert.Equal(t, float64(1), out["failed"])
	assert.Len(t, out["remaining"], 1)
}

func TestConfirmCashEndpointRoles(t *testing.T) {
	s, srv := testServer(t)
	engine := &orders.Engine{Products: s, Orders: s, Wallets: s, Parents: s, Ledger: s}
	rc, err := engine.CreateOrder(context.Background(), orders.CreateOrderRequest{
		ParentID: "parent-1", StudentID: "stu-a", ClientOrderID: "confirm-1",
		ScheduledFor: "2026-09-01", Method: orders.PayCash,
		Items: []orders.OrderLine{{ProductID: "adobo", Qty: 1}},
	})
	require.NoError(t, err)

	url := srv.URL + "/orders/" + rc.OrderID + "/confirm-cash-payment"
	resp, _ := doJSON(t, http.MethodPost, url, parentToken(t, "parent-1"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := doJSON(t, http.MethodPost, url, staffToken(t), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, "paid", out["payment_status"])
}

func TestCancelEndpoint(t *testing.T) {
	s, srv := testServer(t)
	engine := &orders.Engine{Products: s, Orders: s, Wallets: s, Parents: s, Ledger: s}
	rc, err := engine.CreateOrder(context.Background(), orders.CreateOrderRequest{
		ParentID: "parent-1", StudentID: "stu-a", ClientOrderID: "cancel-1",
		ScheduledFor: "2026-09-01", Method: orders.PayBalance,
		Items: []orders.OrderLine{{ProductID: "adobo", Qty: 1}},
	})
	require.NoError(t, err)

	url := srv.URL + "/orders/" + rc.OrderID + "/cancel"
	resp, _ := doJSON(t, http.MethodPost, url, parentToken(t, "parent-2"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := doJSON(t, http.MethodPost, url, parentToken(t, "parent-1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", out["status"])
	assert.Equal(t, "refunded", out["payment_status"])
	assert.Equal(t, float64(6500), out["refund_cents"])
}

func TestCachedStatusVisibility(t *testing.T) {
	c := cachedStatus{Status: orders.StatusPending, PaymentStatus: orders.PaymentPaid, ParentID: "parent-1"}
	assert.True(t, c.visibleTo(Identity{ParentID: "parent-1", Role: "parent"}))
	assert.True(t, c.visibleTo(Identity{Role: RoleStaff}))
	assert.False(t, c.visibleTo(Identity{ParentID: "parent-2", Role: "parent"}),
		"a cached entry must never serve another parent")

	// entries without an owner fall through to the DB's ownership check
	legacy := cachedStatus{Status: orders.StatusPending, PaymentStatus: orders.PaymentPaid}
	assert.False(t, legacy.visibleTo(Identity{ParentID: "parent-1", Role: "parent"}))
}

func TestGetOrderEndpoint(t *testing.T) {
	s, srv := testServer(t)
	engine := &orders.Engine{Products: s, Orders: s, Wallets: s, Parents: s, Ledger: s}
	rc, err := engine.CreateOrder(context.Background(), orders.CreateOrderRequest{
		ParentID: "parent-1", StudentID: "stu-a", ClientOrderID: "get-1",
		ScheduledFor: "2026-09-01", Method: orders.PayCash,
		Items: []orders.OrderLine{{ProductID: "adobo", Qty: 1}},
	})
	require.NoError(t, err)

	resp, out := doJSON(t, http.MethodGet, srv.URL+"/orders/"+rc.OrderID, parentToken(t, "parent-1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_payment", out["status"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/orders/"+rc.OrderID, parentToken(t, "parent-2"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = doJSON(t, http.MethodGet, srv.URL+"/orders/missing", staffToken(t), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ORDER_NOT_FOUND", out["error"])
}
