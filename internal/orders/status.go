package orders

type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusFailed   PaymentStatus = "failed"
	StatusCanceled PaymentStatus = "canceled"
)

var validNext = map[PaymentStatus]map[PaymentStatus]bool{
	StatusPending:  {StatusPaid: true, StatusFailed: true, StatusCanceled: true},
	StatusPaid:     {},
	StatusFailed:   {},
	StatusCanceled: {},
}

func CanTransition(from, to PaymentStatus) bool {
	return validNext[from][to]
}

// Terminal statuses are immutable; any further event is a no-op.
func Terminal(s PaymentStatus) bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCanceled
}
