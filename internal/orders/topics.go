package orders

const (
	TopicOrderCreated  = "order.created"
	TopicPaymentEvents = "payment.events"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
