package checkout

import (
	"fmt"
	"sort"

	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
)

// Line is one cart entry: a product picked for one student on one delivery
// date. The cart itself is client-held convenience state; only the grouping
// below has ordering guarantees.
type Line struct {
	ProductID  string `json:"product_id"`
	StudentID  string `json:"student_id"`
	Date       string `json:"date"` // YYYY-MM-DD
	MealPeriod string `json:"meal_period,omitempty"`
	Qty        int    `json:"quantity"`
	PriceCents int    `json:"price_cents"` // price at time of add
}

type partitionKey struct {
	StudentID string
	Date      string
}

// IdempotencyKey derives the per-partition key from the per-click checkout
// id. Retrying the same click reproduces the same keys; a new click gets
// fresh ones.
func IdempotencyKey(checkoutID, studentID, date string) string {
	return fmt.Sprintf("%s:%s:%s", checkoutID, studentID, date)
}

// Partition groups cart lines by (student, date) and shapes one engine
// request per group. When dates is non-empty, only lines on those dates
// take part; the rest stay in the cart untouched. Pure function: same
// inputs, same requests, in a deterministic order.
func Partition(parentID, checkoutID string, lines []Line, method orders.PaymentMethod, notes string, dates []string) []orders.CreateOrderRequest {
	wanted := map[string]bool{}
	for _, d := range dates {
		wanted[d] = true
	}

	groups := map[partitionKey][]Line{}
	for _, ln := range lines {
		if len(wanted) > 0 && !wanted[ln.Date] {
			continue
		}
		k := partitionKey{StudentID: ln.StudentID, Date: ln.Date}
		groups[k] = append(groups[k], ln)
	}

	keys := make([]partitionKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StudentID != keys[j].StudentID {
			return keys[i].StudentID < keys[j].StudentID
		}
		return keys[i].Date < keys[j].Date
	})

	out := make([]orders.CreateOrderRequest, 0, len(keys))
	for _, k := range keys {
		items := make([]orders.OrderLine, 0, len(groups[k]))
		for _, ln := range groups[k] {
			items = append(items, orders.OrderLine{
				ProductID:  ln.ProductID,
				MealPeriod: ln.MealPeriod,
				Qty:        ln.Qty,
				PriceCents: ln.PriceCents,
			})
		}
		out = append(out, orders.CreateOrderRequest{
			ParentID:      parentID,
			StudentID:     k.StudentID,
			ClientOrderID: IdempotencyKey(checkoutID, k.StudentID, k.Date),
			ScheduledFor:  k.Date,
			Items:         items,
			Method:        method,
			Notes:         notes,
		})
	}
	return out
}

// EstimateTotalCents sums the cart's price-at-add extensions for the lines
// a checkout would submit. Only used for the balance fail-fast; the engine
// re-prices at commit.
func EstimateTotalCents(lines []Line, dates []string) int {
	wanted := map[string]bool{}
	for _, d := range dates {
		wanted[d] = true
	}
	total := 0
	for _, ln := range lines {
		if len(wanted) > 0 && !wanted[ln.Date] {
			continue
		}
		total += ln.PriceCents * ln.Qty
	}
	return total
}
