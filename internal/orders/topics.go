package orders

const TopicOrderLifecycle = "order.lifecycle"

// Partition key = order_id so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
