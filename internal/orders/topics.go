package orders

const (
	TopicOrderCreated   = "order.created"
	TopicCashConfirmed  = "order.payment.confirmed"
	TopicPaymentTimeout = "order.payment.timeout"
	TopicOrderCancelled = "order.cancelled"
)

// Partition key = order_id, so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
