package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated    = "OrderCreated"
	EventPaymentFailed   = "PaymentFailed"
	EventItemSold        = "ItemSold"
	EventOrderCompleted  = "OrderCompleted"
	EventOrderCancelled  = "OrderCancelled"
	EventOrderRefunded   = "OrderRefunded"
	EventPaymentCallback = "PaymentCallback"
)

// Envelope is the wire form of every emitted event: a fixed set of event
// kinds with a typed payload per kind, plus an open meta map for fields
// that have no schema (trace baggage, experiment flags).
type Envelope struct {
	EventID       string            `json:"event_id"`   // uuid
	EventType     string            `json:"event_type"` // one of the consts above
	EventVersion  int               `json:"event_version"`
	OccurredAt    time.Time         `json:"occurred_at"` // RFC3339
	Producer      string            `json:"producer"`    // e.g. "market-api"
	TraceID       string            `json:"trace_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage   `json:"payload"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// ---- payload per event kind ----

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	ItemID      string `json:"item_id"`
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	AmountCents int    `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	OrderID   string `json:"order_id"`
	AttemptID string `json:"attempt_id"`
	Reason    string `json:"reason"` // e.g. DECLINED
}

type ItemSoldPayload struct {
	ItemID     string `json:"item_id"`
	OrderID    string `json:"order_id"`
	PriceCents int    `json:"price_cents"`
}

type OrderCompletedPayload struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	ItemID  string `json:"item_id"`
	Reason  string `json:"reason,omitempty"` // e.g. PAYMENT_FAILED | TIMEOUT
}

type OrderRefundedPayload struct {
	OrderID     string `json:"order_id"`
	ItemID      string `json:"item_id"`
	AmountCents int    `json:"amount_cents"`
}

// PaymentCallbackPayload is what the gateway relay publishes on
// payment.callback; the worker turns it into a ConfirmPayment call.
type PaymentCallbackPayload struct {
	OrderID   string `json:"order_id"`
	AttemptID string `json:"attempt_id"`
}
