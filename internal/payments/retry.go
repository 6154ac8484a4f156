package payments

import (
	"context"
	"time"

	"github.com/rizana/marketplace-orders/internal/market"
)

// Retry wraps a gateway and retries transport errors with exponential
// backoff. Only errors are retried: an outcome the gateway actually
// returned (succeeded/failed/pending) is final as far as this wrapper is
// concerned; the state machine decides what to do with it.
type Retry struct {
	Next     market.PaymentGateway
	Attempts int           // default 3
	BaseWait time.Duration // default 100ms, doubled per attempt
}

func (r *Retry) attempts() int {
	if r.Attempts <= 0 {
		return 3
	}
	return r.Attempts
}

func (r *Retry) baseWait() time.Duration {
	if r.BaseWait <= 0 {
		return 100 * time.Millisecond
	}
	return r.BaseWait
}

func (r *Retry) Charge(ctx context.Context, orderID string, amountCents int, idemKey string) (market.ChargeResult, error) {
	var res market.ChargeResult
	err := r.do(ctx, func() error {
		var cerr error
		res, cerr = r.Next.Charge(ctx, orderID, amountCents, idemKey)
		return cerr
	})
	return res, err
}

func (r *Retry) Refund(ctx context.Context, orderID string, amountCents int) (market.AttemptOutcome, error) {
	var out market.AttemptOutcome
	err := r.do(ctx, func() error {
		var rerr error
		out, rerr = r.Next.Refund(ctx, orderID, amountCents)
		return rerr
	})
	return out, err
}

func (r *Retry) do(ctx context.Context, call func() error) error {
	wait := r.baseWait()
	var last error
	for i := 0; i < r.attempts(); i++ {
		last = call()
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			// deadline hit; the caller treats this as a decline
			return last
		}
		if i < r.attempts()-1 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return last
			}
			wait *= 2
		}
	}
	return last
}
