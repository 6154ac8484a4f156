package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu            sync.Mutex
	outcome       AttemptOutcome
	ref           string
	chargeErr     error
	refundOutcome AttemptOutcome
	charges       []string // idempotency keys seen
	refunds       int
}

func (g *fakeGateway) Charge(_ context.Context, _ string, _ int, idemKey string) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return ChargeResult{}, g.chargeErr
	}
	g.charges = append(g.charges, idemKey)
	return ChargeResult{Outcome: g.outcome, Ref: g.ref}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, _ int) (AttemptOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	if g.refundOutcome == "" {
		return AttemptSucceeded, nil
	}
	return g.refundOutcome, nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (s *captureSink) Emit(_ context.Context, ev Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev.EventType)
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func newTestMachine(outcome AttemptOutcome) (*StateMachine, *MemStore, *fakeGateway, *captureSink) {
	store := NewMemStore()
	gw := &fakeGateway{outcome: outcome, ref: "ch_test"}
	sink := &captureSink{}
	m := &StateMachine{
		Items:    store,
		Orders:   store,
		Attempts: store,
		Gateway:  gw,
		Sink:     sink,
		Service:  "test",
	}
	return m, store, gw, sink
}

func seedItem(t *testing.T, store *MemStore, sellerID string) Item {
	t.Helper()
	now := time.Now().UTC()
	it := Item{
		ID:         uuid.NewString(),
		SellerID:   sellerID,
		Title:      "vintage kandura",
		PriceCents: 12500,
		Status:     ItemListed,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.CreateItem(context.Background(), it))
	return it
}

func TestCreateReservesItem(t *testing.T) {
	m, store, _, sink := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, OrderPendingPayment, order.Status)
	assert.Equal(t, item.ID, order.ItemID)
	assert.Equal(t, "seller-1", order.SellerID)
	assert.Equal(t, item.PriceCents, order.AmountCents)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, ItemReserved, got.Status)
	assert.Equal(t, item.Version+1, got.Version)

	assert.Equal(t, []string{EventOrderCreated}, sink.types())
}

func TestCreateOwnItem(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")

	_, err := m.Create(context.Background(), item.ID, "seller-1")
	assert.ErrorIs(t, err, ErrOwnItem)
}

func TestCreateItemUnavailable(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	_, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	_, err = m.Create(ctx, item.ID, "buyer-2")
	assert.ErrorIs(t, err, ErrItemUnavailable)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	const buyers = 8
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Create(ctx, item.ID, uuid.NewString())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrItemUnavailable)
		}
	}
	assert.Equal(t, 1, wins, "exactly one buyer must win the reservation")
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	m, store, gw, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	got, err := m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, OrderPaid, got.Status)
	assert.Equal(t, "ch_test", got.PaymentRef)

	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemSold, it.Status)

	// replayed delivery: same end state, no second charge
	again, err := m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, OrderPaid, again.Status)
	assert.Equal(t, 1, gw.chargeCount())
}

func TestConfirmPaymentDeclined(t *testing.T) {
	m, store, _, sink := newTestMachine(AttemptFailed)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	got, err := m.ConfirmPayment(ctx, order.ID, "attempt-1")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, OrderCancelled, got.Status)

	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemListed, it.Status, "declined payment must release the item")
	assert.Contains(t, sink.types(), EventPaymentFailed)

	// replay of the failed attempt keeps the same answer
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	assert.ErrorIs(t, err, ErrPaymentFailed)
}

func TestConfirmPaymentPendingOutcome(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptPending)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	got, err := m.ConfirmPayment(ctx, order.ID, "attempt-1")
	assert.ErrorIs(t, err, ErrPaymentPending)
	assert.Equal(t, OrderPendingPayment, got.Status, "pending must not transition")

	// a differently keyed attempt is blocked while one is in flight
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-2")
	assert.ErrorIs(t, err, ErrPaymentPending)

	_, err = store.GetAttempt(ctx, order.ID, "attempt-2")
	assert.ErrorIs(t, err, ErrNotFound, "blocked attempt must not be recorded")
}

func TestConfirmPaymentChargeErrorReleases(t *testing.T) {
	m, store, gw, _ := newTestMachine(AttemptSucceeded)
	gw.chargeErr = errors.New("connection refused")
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	got, err := m.ConfirmPayment(ctx, order.ID, "attempt-1")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, OrderCancelled, got.Status)

	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemListed, it.Status)
}

func TestConfirmPaymentWrongState(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)

	// new attempt against an already-paid order
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkShippedRequiresPaid(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	_, err = m.MarkShipped(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelPending(t *testing.T) {
	m, store, gw, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)

	got, err := m.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, got.Status)
	assert.Equal(t, 0, gw.refunds)

	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemListed, it.Status)
}

func TestCancelPaidRefunds(t *testing.T) {
	m, store, gw, sink := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)

	got, err := m.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderRefunded, got.Status)
	assert.Equal(t, 1, gw.refunds)

	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemListed, it.Status, "refund must re-list the item")
	assert.Contains(t, sink.types(), EventOrderRefunded)
}

func TestRefundFromShipped(t *testing.T) {
	m, store, gw, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)
	_, err = m.MarkShipped(ctx, order.ID)
	require.NoError(t, err)

	got, err := m.Refund(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderRefunded, got.Status)
	assert.Equal(t, 1, gw.refunds)
}

func TestRefundDeclinedKeepsState(t *testing.T) {
	m, store, gw, _ := newTestMachine(AttemptSucceeded)
	gw.refundOutcome = AttemptFailed
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)

	_, err = m.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, ErrPaymentFailed)

	cur, _ := store.GetOrder(ctx, order.ID)
	assert.Equal(t, OrderPaid, cur.Status)
	it, _ := store.GetItem(ctx, item.ID)
	assert.Equal(t, ItemSold, it.Status)
}

func TestCancelTerminal(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.Cancel(ctx, order.ID)
	require.NoError(t, err)

	_, err = m.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelExpired(t *testing.T) {
	m, store, _, _ := newTestMachine(AttemptSucceeded)
	ctx := context.Background()

	stale := seedItem(t, store, "seller-1")
	paidUp := seedItem(t, store, "seller-2")

	staleOrder, err := m.Create(ctx, stale.ID, "buyer-1")
	require.NoError(t, err)
	paidOrder, err := m.Create(ctx, paidUp.ID, "buyer-2")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, paidOrder.ID, "attempt-1")
	require.NoError(t, err)

	n, err := m.CancelExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, _ := store.GetOrder(ctx, staleOrder.ID)
	assert.Equal(t, OrderCancelled, cur.Status)
	it, _ := store.GetItem(ctx, stale.ID)
	assert.Equal(t, ItemListed, it.Status)

	untouched, _ := store.GetOrder(ctx, paidOrder.ID)
	assert.Equal(t, OrderPaid, untouched.Status)
}

func TestFullLifecycleEmitsEvents(t *testing.T) {
	m, store, _, sink := newTestMachine(AttemptSucceeded)
	item := seedItem(t, store, "seller-1")
	ctx := context.Background()

	order, err := m.Create(ctx, item.ID, "buyer-1")
	require.NoError(t, err)
	_, err = m.ConfirmPayment(ctx, order.ID, "attempt-1")
	require.NoError(t, err)
	_, err = m.MarkShipped(ctx, order.ID)
	require.NoError(t, err)
	got, err := m.Complete(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCompleted, got.Status)

	assert.Equal(t, []string{EventOrderCreated, EventItemSold, EventOrderCompleted}, sink.types())
}
