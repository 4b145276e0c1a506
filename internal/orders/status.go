package orders

type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPending         Status = "pending"
	StatusPreparing       Status = "preparing"
	StatusReady           Status = "ready"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentAwaiting PaymentStatus = "awaiting_payment"
	PaymentPaid     PaymentStatus = "paid"
	PaymentTimeout  PaymentStatus = "timeout"
	PaymentRefunded PaymentStatus = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusAwaitingPayment: {StatusPending: true, StatusCancelled: true},
	StatusPending:         {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:       {StatusReady: true},
	StatusReady:           {StatusCompleted: true},
	StatusCompleted:       {},
	StatusCancelled:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Cancellable reports whether a parent or staff cancel may still land.
// Once the kitchen moves an order to preparing it is locked in.
func Cancellable(s Status) bool {
	return s == StatusPending || s == StatusAwaitingPayment
}
