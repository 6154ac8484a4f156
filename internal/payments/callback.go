package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	kafkax "github.com/rizana/marketplace-orders/internal/kafka"
	"github.com/rizana/marketplace-orders/internal/market"
	"github.com/rizana/marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// CallbackService consumes gateway callbacks (at-least-once delivery)
// and drives payment confirmation. ConfirmPayment itself is idempotent;
// the Redis dedup is a fast path that skips already-seen event ids.
type CallbackService struct {
	Machine *market.StateMachine
	Redis   *redis.Client
}

// HandleCallback is mounted as the consumer handler. Returning nil
// commits the offset; settled, duplicate and malformed-but-undeliverable
// messages are committed so they do not loop forever.
func (s *CallbackService) HandleCallback(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("callback: bad envelope dropped: %v", err)
		return nil
	}
	if env.EventType != market.EventPaymentCallback {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "payments", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}

	p, err := kafkax.UnwrapPayload[market.PaymentCallbackPayload](env.Payload)
	if err != nil {
		log.Printf("callback %s: bad payload dropped: %v", env.EventID, err)
		return nil
	}

	_, err = s.Machine.ConfirmPayment(ctx, p.OrderID, p.AttemptID)
	switch {
	case err == nil:
	case errors.Is(err, market.ErrPaymentPending):
		// gateway will call again; do not dedup, so the redelivery is processed
		return nil
	case errors.Is(err, market.ErrPaymentFailed),
		errors.Is(err, market.ErrInvalidTransition):
		// settled; nothing left to do for this attempt
	case errors.Is(err, market.ErrNotFound):
		log.Printf("callback %s: unknown order %s dropped", env.EventID, p.OrderID)
	default:
		return err // store hiccup: leave uncommitted, redeliver
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
