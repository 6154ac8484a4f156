package market

const (
	TopicOrderCreated    = "order.created"
	TopicPaymentFailed   = "payment.failed"
	TopicItemSold        = "item.sold"
	TopicOrderCompleted  = "order.completed"
	TopicOrderCancelled  = "order.cancelled"
	TopicOrderRefunded   = "order.refunded"
	TopicPaymentCallback = "payment.callback"
)

var topicByEvent = map[string]string{
	EventOrderCreated:    TopicOrderCreated,
	EventPaymentFailed:   TopicPaymentFailed,
	EventItemSold:        TopicItemSold,
	EventOrderCompleted:  TopicOrderCompleted,
	EventOrderCancelled:  TopicOrderCancelled,
	EventOrderRefunded:   TopicOrderRefunded,
	EventPaymentCallback: TopicPaymentCallback,
}

func TopicFor(eventType string) (string, bool) {
	t, ok := topicByEvent[eventType]
	return t, ok
}

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
