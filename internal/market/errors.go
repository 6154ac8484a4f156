// Sentinel errors shared by the stores, the state machine and the review
// gate. Handlers translate them into HTTP status codes; everything here is
// local to the triggering request, never fatal to the process.
package market

import "errors"

var (
	// ErrNotFound: the referenced item/order/attempt row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: optimistic version check failed, or a unique key
	// already exists. At the item level it means another buyer got
	// there first.
	ErrConflict = errors.New("conflict")

	// ErrItemUnavailable: the item could not be reserved (lost the
	// reservation race, or the item is no longer listed).
	ErrItemUnavailable = errors.New("item unavailable")

	// ErrInvalidTransition: the order is not in a state the requested
	// operation accepts.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrPaymentFailed: the gateway declined (or the charge timed out,
	// which is treated as a decline).
	ErrPaymentFailed = errors.New("payment failed")

	// ErrPaymentPending: the charge is still settling at the gateway.
	// Not a failure; the caller retries later, no transition happened.
	ErrPaymentPending = errors.New("payment pending")

	// ErrNotEligible: review author is not a party to a completed order.
	ErrNotEligible = errors.New("not eligible to review")

	// ErrDuplicateReview: (order, author) already reviewed.
	ErrDuplicateReview = errors.New("duplicate review")

	// ErrInvalidReview: rating out of range or body too long.
	ErrInvalidReview = errors.New("invalid review")

	// ErrOwnItem: a buyer may not order their own listing.
	ErrOwnItem = errors.New("cannot order own item")

	// ErrNotSeller: only the seller may remove a listing.
	ErrNotSeller = errors.New("not the seller")
)
