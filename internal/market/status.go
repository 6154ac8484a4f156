package market

type ItemStatus string

const (
	ItemListed   ItemStatus = "LISTED"
	ItemReserved ItemStatus = "RESERVED"
	ItemSold     ItemStatus = "SOLD"
	ItemRemoved  ItemStatus = "REMOVED"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderShipped        OrderStatus = "SHIPPED"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPendingPayment: {OrderPaid: true, OrderCancelled: true},
	OrderPaid:           {OrderShipped: true, OrderRefunded: true},
	OrderShipped:        {OrderCompleted: true, OrderRefunded: true},
	OrderCompleted:      {},
	OrderCancelled:      {},
	OrderRefunded:       {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is defined for s.
func Terminal(s OrderStatus) bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}
