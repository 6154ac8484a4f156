package market

import (
	"context"
	"time"
)

// ItemStore is the authoritative state of listings. Reserve uses an
// optimistic version check instead of row locks: the caller reads the
// item, then writes with the version it saw.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (Item, error)
	CreateItem(ctx context.Context, it Item) error
	ListItems(ctx context.Context) ([]Item, error)

	// Reserve moves LISTED -> RESERVED iff the version still matches;
	// otherwise ErrConflict. Bumps the version on success.
	Reserve(ctx context.Context, id string, expectedVersion int) error
	// MarkSold moves RESERVED -> SOLD.
	MarkSold(ctx context.Context, id string) error
	// Release returns a RESERVED or SOLD item to LISTED (cancellation,
	// payment failure, refund).
	Release(ctx context.Context, id string) error
	// Remove delists a LISTED item; only its seller may do so.
	Remove(ctx context.Context, id, sellerID string) error
}

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	CreateOrder(ctx context.Context, o Order) error
	// UpdateStatus is a check-and-set: it only applies when the row is
	// still in `from`, and returns ErrInvalidTransition otherwise. This
	// is what serializes concurrent payment deliveries.
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) error
	SetPaymentRef(ctx context.Context, id, ref string) error
	// ListPendingBefore returns orders still in PENDING_PAYMENT created
	// before the cutoff, for the timeout sweeper.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error)
}

type AttemptStore interface {
	GetAttempt(ctx context.Context, orderID, attemptID string) (PaymentAttempt, error)
	// CreateAttempt inserts a new attempt row; ErrConflict if the
	// (order, attempt) key already exists.
	CreateAttempt(ctx context.Context, a PaymentAttempt) error
	UpdateAttempt(ctx context.Context, orderID, attemptID string, outcome AttemptOutcome, ref string) error
	// HasOpenAttempt reports whether another attempt for the order is
	// still PENDING. At most one charge may be in flight per order.
	HasOpenAttempt(ctx context.Context, orderID, excludeAttemptID string) (bool, error)
}

type ReviewStore interface {
	// CreateReview inserts a review; ErrDuplicateReview if the
	// (order, author) pair already exists.
	CreateReview(ctx context.Context, rv Review) error
	ListReviewsForItem(ctx context.Context, itemID string) ([]Review, error)
}
