package market

import (
	"context"
	"time"
	"unicode/utf8"
)

const maxReviewBody = 1000

// ReviewGate admits reviews only for completed orders, one per
// (order, author), authored by the buyer or the seller.
type ReviewGate struct {
	Orders  OrderStore
	Reviews ReviewStore
}

func (g *ReviewGate) Submit(ctx context.Context, orderID, authorID string, rating int, body string) (Review, error) {
	if rating < 1 || rating > 5 || utf8.RuneCountInString(body) > maxReviewBody {
		return Review{}, ErrInvalidReview
	}

	order, err := g.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Review{}, err
	}
	if order.Status != OrderCompleted {
		return Review{}, ErrNotEligible
	}
	if authorID != order.BuyerID && authorID != order.SellerID {
		return Review{}, ErrNotEligible
	}

	rv := Review{
		OrderID:   orderID,
		AuthorID:  authorID,
		Rating:    rating,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.Reviews.CreateReview(ctx, rv); err != nil {
		return Review{}, err
	}
	return rv, nil
}

func (g *ReviewGate) ListForItem(ctx context.Context, itemID string) ([]Review, error) {
	return g.Reviews.ListReviewsForItem(ctx, itemID)
}
