package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody maps domain errors onto the wire taxonomy. Conflicts that are
// safe to retry say so; validation failures carry the specific shortfall.
func errorBody(err error) (int, map[string]any) {
	var se *orders.StockError
	if errors.As(err, &se) {
		return http.StatusBadRequest, map[string]any{
			"error": "INSUFFICIENT_STOCK", "product_id": se.ProductID,
			"requested": se.Requested, "available": se.Available,
		}
	}
	var be *orders.BalanceError
	if errors.As(err, &be) {
		return http.StatusBadRequest, map[string]any{
			"error": "INSUFFICIENT_BALANCE",
			"required_cents": be.RequiredCents, "available_cents": be.AvailableCents,
		}
	}
	var pnf *orders.ProductNotFoundError
	if errors.As(err, &pnf) {
		return http.StatusBadRequest, map[string]any{"error": "PRODUCT_NOT_FOUND", "product_id": pnf.ProductID}
	}
	var pua *orders.ProductUnavailableError
	if errors.As(err, &pua) {
		return http.StatusBadRequest, map[string]any{"error": "PRODUCT_UNAVAILABLE", "product_id": pua.ProductID}
	}

	switch {
	case errors.Is(err, orders.ErrNoWallet):
		return http.StatusBadRequest, map[string]any{"error": "NO_WALLET"}
	case errors.Is(err, orders.ErrNotOwned), errors.Is(err, orders.ErrForbidden):
		log.Printf("authorization rejected: %v", err)
		return http.StatusForbidden, map[string]any{"error": "FORBIDDEN"}
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, map[string]any{"error": "ORDER_NOT_FOUND"}
	case errors.Is(err, orders.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, map[string]any{"error": "INVALID_PAYMENT_METHOD"}
	case errors.Is(err, orders.ErrAlreadyPaid):
		return http.StatusBadRequest, map[string]any{"error": "ALREADY_PAID"}
	case errors.Is(err, orders.ErrPaymentTimeout):
		return http.StatusBadRequest, map[string]any{"error": "PAYMENT_TIMEOUT"}
	case errors.Is(err, orders.ErrNotCancellable):
		return http.StatusBadRequest, map[string]any{"error": "NOT_CANCELLABLE"}
	case errors.Is(err, orders.ErrOrderCancelled):
		return http.StatusBadRequest, map[string]any{"error": "ORDER_CANCELLED"}
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict, map[string]any{"error": "CONFLICT", "retryable": true}
	}
	return http.StatusBadRequest, map[string]any{"error": "BAD_REQUEST", "message": err.Error()}
}
