package market

import "time"

type Item struct {
	ID         string     `json:"id"`
	SellerID   string     `json:"seller_id"`
	Title      string     `json:"title"`
	PriceCents int        `json:"price_cents"`
	Status     ItemStatus `json:"status"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Order struct {
	ID          string      `json:"id"`
	ItemID      string      `json:"item_id"`
	BuyerID     string      `json:"buyer_id"`
	SellerID    string      `json:"seller_id"`
	AmountCents int         `json:"amount_cents"`
	Status      OrderStatus `json:"status"`
	PaymentRef  string      `json:"payment_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Review struct {
	OrderID   string    `json:"order_id"`
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AttemptOutcome string

const (
	AttemptPending   AttemptOutcome = "PENDING"
	AttemptSucceeded AttemptOutcome = "SUCCEEDED"
	AttemptFailed    AttemptOutcome = "FAILED"
)

// PaymentAttempt records one charge attempt against an order.
// (OrderID, AttemptID) is the idempotency key: replays of the same
// attempt must not charge again.
type PaymentAttempt struct {
	OrderID    string         `json:"order_id"`
	AttemptID  string         `json:"attempt_id"`
	Outcome    AttemptOutcome `json:"outcome"`
	PaymentRef string         `json:"payment_ref,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
