package market

import "context"

// ChargeResult is what the gateway reports for a charge: the outcome plus
// the gateway-side payment reference when one was assigned.
type ChargeResult struct {
	Outcome AttemptOutcome
	Ref     string
}

// PaymentGateway is the external capture/refund boundary. Calls have
// network semantics: they carry the caller's deadline and may fail
// transiently. A charge that errors out (including deadline expiry) is
// treated by the state machine as a decline, so the item reservation is
// released rather than held open indefinitely.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amountCents int, idemKey string) (ChargeResult, error)
	Refund(ctx context.Context, orderID string, amountCents int) (AttemptOutcome, error)
}
