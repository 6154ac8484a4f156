package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// StateMachine drives an order through its lifecycle:
//
//	PENDING_PAYMENT -> PAID -> SHIPPED -> COMPLETED
//	PENDING_PAYMENT -> CANCELLED
//	PAID | SHIPPED  -> REFUNDED
//
// It exclusively owns Order rows and the transitional writes to
// Item.status. Every failure path that aborts mid-transition releases the
// item reservation before returning, so an Item/Order pairing is never
// left inconsistent.
type StateMachine struct {
	Items    ItemStore
	Orders   OrderStore
	Attempts AttemptStore
	Gateway  PaymentGateway
	Sink     NotificationSink
	Service  string
}

// Create reserves the item and opens an order in PENDING_PAYMENT.
// A lost reservation race surfaces as ErrItemUnavailable.
func (m *StateMachine) Create(ctx context.Context, itemID, buyerID string) (Order, error) {
	item, err := m.Items.GetItem(ctx, itemID)
	if err != nil {
		return Order{}, err
	}
	if item.SellerID == buyerID {
		return Order{}, ErrOwnItem
	}

	if err := m.Items.Reserve(ctx, itemID, item.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			return Order{}, ErrItemUnavailable
		}
		return Order{}, err
	}

	now := time.Now().UTC()
	o := Order{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		BuyerID:     buyerID,
		SellerID:    item.SellerID,
		AmountCents: item.PriceCents,
		Status:      OrderPendingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.Orders.CreateOrder(ctx, o); err != nil {
		if rerr := m.Items.Release(ctx, itemID); rerr != nil {
			log.Printf("create order %s: release after failure: %v", o.ID, rerr)
		}
		return Order{}, err
	}

	m.emit(ctx, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, ItemID: itemID, BuyerID: buyerID,
		SellerID: o.SellerID, AmountCents: o.AmountCents,
	})
	return o, nil
}

// ConfirmPayment settles one charge attempt. It is idempotent per
// (orderID, attemptID): a replayed delivery of a settled attempt is a
// no-op returning the current state, and concurrent deliveries are
// serialized by the status check-and-set in OrderStore.
func (m *StateMachine) ConfirmPayment(ctx context.Context, orderID, attemptID string) (Order, error) {
	order, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	att, aerr := m.Attempts.GetAttempt(ctx, orderID, attemptID)
	switch {
	case aerr == nil && att.Outcome == AttemptSucceeded:
		return order, nil
	case aerr == nil && att.Outcome == AttemptFailed:
		return order, ErrPaymentFailed
	case aerr != nil && !errors.Is(aerr, ErrNotFound):
		return Order{}, aerr
	}

	if order.Status != OrderPendingPayment {
		return order, ErrInvalidTransition
	}

	if errors.Is(aerr, ErrNotFound) {
		open, oerr := m.Attempts.HasOpenAttempt(ctx, orderID, attemptID)
		if oerr != nil {
			return Order{}, oerr
		}
		if open {
			// another charge is in flight; do not issue a second one
			return order, ErrPaymentPending
		}
		now := time.Now().UTC()
		cerr := m.Attempts.CreateAttempt(ctx, PaymentAttempt{
			OrderID: orderID, AttemptID: attemptID,
			Outcome: AttemptPending, CreatedAt: now, UpdatedAt: now,
		})
		if cerr != nil && !errors.Is(cerr, ErrConflict) {
			return Order{}, cerr
		}
	}

	res, gerr := m.Gateway.Charge(ctx, orderID, order.AmountCents, attemptKey(orderID, attemptID))
	if gerr != nil {
		// expiry or exhausted retries: favor releasing the item over an
		// indefinitely reserved listing
		log.Printf("charge order %s attempt %s: %v", orderID, attemptID, gerr)
		res = ChargeResult{Outcome: AttemptFailed}
	}

	switch res.Outcome {
	case AttemptPending:
		return order, ErrPaymentPending

	case AttemptFailed:
		if err := m.Attempts.UpdateAttempt(ctx, orderID, attemptID, AttemptFailed, ""); err != nil {
			return Order{}, err
		}
		if err := m.Orders.UpdateStatus(ctx, orderID, OrderPendingPayment, OrderCancelled); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// a concurrent delivery settled the order first
				cur, gerr := m.Orders.GetOrder(ctx, orderID)
				if gerr != nil {
					return Order{}, gerr
				}
				return cur, ErrPaymentFailed
			}
			return Order{}, err
		}
		if err := m.Items.Release(ctx, order.ItemID); err != nil {
			log.Printf("confirm payment order %s: release item %s: %v", orderID, order.ItemID, err)
		}
		m.emit(ctx, EventPaymentFailed, orderID, PaymentFailedPayload{
			OrderID: orderID, AttemptID: attemptID, Reason: "DECLINED",
		})
		order.Status = OrderCancelled
		return order, ErrPaymentFailed

	default: // AttemptSucceeded
		if err := m.Attempts.UpdateAttempt(ctx, orderID, attemptID, AttemptSucceeded, res.Ref); err != nil {
			return Order{}, err
		}
		if err := m.Orders.UpdateStatus(ctx, orderID, OrderPendingPayment, OrderPaid); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return m.Orders.GetOrder(ctx, orderID)
			}
			return Order{}, err
		}
		if res.Ref != "" {
			if err := m.Orders.SetPaymentRef(ctx, orderID, res.Ref); err != nil {
				log.Printf("confirm payment order %s: set ref: %v", orderID, err)
			}
		}
		if err := m.Items.MarkSold(ctx, order.ItemID); err != nil {
			log.Printf("confirm payment order %s: mark sold item %s: %v", orderID, order.ItemID, err)
		}
		m.emit(ctx, EventItemSold, orderID, ItemSoldPayload{
			ItemID: order.ItemID, OrderID: orderID, PriceCents: order.AmountCents,
		})
		order.Status = OrderPaid
		order.PaymentRef = res.Ref
		return order, nil
	}
}

// MarkShipped: PAID -> SHIPPED only.
func (m *StateMachine) MarkShipped(ctx context.Context, orderID string) (Order, error) {
	order, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := m.Orders.UpdateStatus(ctx, orderID, OrderPaid, OrderShipped); err != nil {
		return order, err
	}
	order.Status = OrderShipped
	return order, nil
}

// Complete: SHIPPED -> COMPLETED; from here the review gate opens.
func (m *StateMachine) Complete(ctx context.Context, orderID string) (Order, error) {
	order, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := m.Orders.UpdateStatus(ctx, orderID, OrderShipped, OrderCompleted); err != nil {
		return order, err
	}
	order.Status = OrderCompleted
	m.emit(ctx, EventOrderCompleted, orderID, OrderCompletedPayload{
		OrderID: orderID, ItemID: order.ItemID,
		BuyerID: order.BuyerID, SellerID: order.SellerID,
	})
	return order, nil
}

// Cancel aborts an order. From PENDING_PAYMENT it lands in CANCELLED;
// from PAID it takes the refund path (money was captured) and lands in
// REFUNDED. Both release the item back to LISTED.
func (m *StateMachine) Cancel(ctx context.Context, orderID string) (Order, error) {
	order, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	switch order.Status {
	case OrderPendingPayment:
		if err := m.Orders.UpdateStatus(ctx, orderID, OrderPendingPayment, OrderCancelled); err != nil {
			return order, err
		}
		if err := m.Items.Release(ctx, order.ItemID); err != nil {
			log.Printf("cancel order %s: release item %s: %v", orderID, order.ItemID, err)
		}
		m.emit(ctx, EventOrderCancelled, orderID, OrderCancelledPayload{
			OrderID: orderID, ItemID: order.ItemID, Reason: "CANCELLED",
		})
		order.Status = OrderCancelled
		return order, nil
	case OrderPaid:
		return m.Refund(ctx, orderID)
	default:
		return order, ErrInvalidTransition
	}
}

// Refund: PAID | SHIPPED -> REFUNDED. The gateway refund must succeed
// before the status moves; the item returns to LISTED afterwards.
func (m *StateMachine) Refund(ctx context.Context, orderID string) (Order, error) {
	order, err := m.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != OrderPaid && order.Status != OrderShipped {
		return order, ErrInvalidTransition
	}

	out, err := m.Gateway.Refund(ctx, orderID, order.AmountCents)
	if err != nil {
		return order, fmt.Errorf("refund order %s: %w", orderID, err)
	}
	if out != AttemptSucceeded {
		return order, ErrPaymentFailed
	}

	if err := m.Orders.UpdateStatus(ctx, orderID, order.Status, OrderRefunded); err != nil {
		return order, err
	}
	if err := m.Items.Release(ctx, order.ItemID); err != nil {
		log.Printf("refund order %s: release item %s: %v", orderID, order.ItemID, err)
	}
	m.emit(ctx, EventOrderRefunded, orderID, OrderRefundedPayload{
		OrderID: orderID, ItemID: order.ItemID, AmountCents: order.AmountCents,
	})
	order.Status = OrderRefunded
	return order, nil
}

// CancelExpired cancels orders that sat in PENDING_PAYMENT longer than
// the window. Orders settled between the listing and the cancel are
// skipped. Returns how many were cancelled.
func (m *StateMachine) CancelExpired(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	stale, err := m.Orders.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range stale {
		if _, err := m.Cancel(ctx, o.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			log.Printf("sweep order %s: %v", o.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func attemptKey(orderID, attemptID string) string {
	return orderID + ":" + attemptID
}

func (m *StateMachine) emit(ctx context.Context, eventType, orderID string, payload any) {
	if m.Sink == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("emit %s: marshal: %v", eventType, err)
		return
	}
	m.Sink.Emit(ctx, Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      m.Service,
		CorrelationID: orderID,
		Payload:       b,
	})
}
