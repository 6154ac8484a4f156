package market

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements the four store interfaces on Postgres. Item
// reservation is a version check-and-set rather than FOR UPDATE, so two
// concurrent buyers race on the UPDATE and exactly one wins.
type PGStore struct{ DB *pgxpool.Pool }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---- items ----

func (s *PGStore) GetItem(ctx context.Context, id string) (Item, error) {
	var it Item
	err := s.DB.QueryRow(ctx, `
		SELECT id, seller_id, title, price_cents, status, version, created_at, updated_at
		FROM items WHERE id=$1`, id).
		Scan(&it.ID, &it.SellerID, &it.Title, &it.PriceCents, &it.Status, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (s *PGStore) CreateItem(ctx context.Context, it Item) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO items(id, seller_id, title, price_cents, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.ID, it.SellerID, it.Title, it.PriceCents, it.Status, it.Version, it.CreatedAt, it.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, seller_id, title, price_cents, status, version, created_at, updated_at
		FROM items WHERE status <> 'REMOVED' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SellerID, &it.Title, &it.PriceCents, &it.Status, &it.Version, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PGStore) Reserve(ctx context.Context, id string, expectedVersion int) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='RESERVED', version=version+1, updated_at=now()
		WHERE id=$1 AND status='LISTED' AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) MarkSold(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='SOLD', version=version+1, updated_at=now()
		WHERE id=$1 AND status='RESERVED'`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PGStore) Release(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='LISTED', version=version+1, updated_at=now()
		WHERE id=$1 AND status IN ('RESERVED','SOLD')`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PGStore) Remove(ctx context.Context, id, sellerID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE items SET status='REMOVED', version=version+1, updated_at=now()
		WHERE id=$1 AND seller_id=$2 AND status='LISTED'`, id, sellerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// zero rows: work out which precondition failed
	it, gerr := s.GetItem(ctx, id)
	if gerr != nil {
		return gerr
	}
	if it.SellerID != sellerID {
		return ErrNotSeller
	}
	return ErrConflict
}

// ---- orders ----

func (s *PGStore) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	var ref *string
	err := s.DB.QueryRow(ctx, `
		SELECT id, item_id, buyer_id, seller_id, amount_cents, status, payment_ref, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.ItemID, &o.BuyerID, &o.SellerID, &o.AmountCents, &o.Status, &ref, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if ref != nil {
		o.PaymentRef = *ref
	}
	return o, err
}

func (s *PGStore) CreateOrder(ctx context.Context, o Order) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders(id, item_id, buyer_id, seller_id, amount_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.ItemID, o.BuyerID, o.SellerID, o.AmountCents, o.Status, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, from, to OrderStatus) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, gerr := s.GetOrder(ctx, id); gerr != nil {
		return gerr
	}
	return ErrInvalidTransition
}

func (s *PGStore) SetPaymentRef(ctx context.Context, id, ref string) error {
	_, err := s.DB.Exec(ctx, `UPDATE orders SET payment_ref=$2, updated_at=now() WHERE id=$1`, id, ref)
	return err
}

func (s *PGStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, item_id, buyer_id, seller_id, amount_cents, status, payment_ref, created_at, updated_at
		FROM orders WHERE status='PENDING_PAYMENT' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var ref *string
		if err := rows.Scan(&o.ID, &o.ItemID, &o.BuyerID, &o.SellerID, &o.AmountCents, &o.Status, &ref, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if ref != nil {
			o.PaymentRef = *ref
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ---- payment attempts ----

func (s *PGStore) GetAttempt(ctx context.Context, orderID, attemptID string) (PaymentAttempt, error) {
	var a PaymentAttempt
	var ref *string
	err := s.DB.QueryRow(ctx, `
		SELECT order_id, attempt_id, outcome, payment_ref, created_at, updated_at
		FROM payment_attempts WHERE order_id=$1 AND attempt_id=$2`, orderID, attemptID).
		Scan(&a.OrderID, &a.AttemptID, &a.Outcome, &ref, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentAttempt{}, ErrNotFound
	}
	if ref != nil {
		a.PaymentRef = *ref
	}
	return a, err
}

func (s *PGStore) CreateAttempt(ctx context.Context, a PaymentAttempt) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payment_attempts(order_id, attempt_id, outcome, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)`,
		a.OrderID, a.AttemptID, a.Outcome, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) UpdateAttempt(ctx context.Context, orderID, attemptID string, outcome AttemptOutcome, ref string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payment_attempts SET outcome=$3, payment_ref=NULLIF($4,''), updated_at=now()
		WHERE order_id=$1 AND attempt_id=$2`, orderID, attemptID, outcome, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) HasOpenAttempt(ctx context.Context, orderID, excludeAttemptID string) (bool, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM payment_attempts
		WHERE order_id=$1 AND outcome='PENDING' AND attempt_id<>$2`, orderID, excludeAttemptID).Scan(&n)
	return n > 0, err
}

// ---- reviews ----

func (s *PGStore) CreateReview(ctx context.Context, rv Review) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reviews(order_id, author_id, rating, body, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rv.OrderID, rv.AuthorID, rv.Rating, rv.Body, rv.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateReview
	}
	return err
}

func (s *PGStore) ListReviewsForItem(ctx context.Context, itemID string) ([]Review, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT r.order_id, r.author_id, r.rating, r.body, r.created_at
		FROM reviews r JOIN orders o ON o.id = r.order_id
		WHERE o.item_id=$1 ORDER BY r.created_at`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.OrderID, &rv.AuthorID, &rv.Rating, &rv.Body, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
