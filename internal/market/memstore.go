package market

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of the store interfaces with
// the same version and check-and-set semantics as PGStore. It backs the
// test suites and local runs without Postgres.
type MemStore struct {
	mu       sync.Mutex
	items    map[string]Item
	orders   map[string]Order
	attempts map[string]PaymentAttempt // orderID+"/"+attemptID
	reviews  map[string]Review         // orderID+"/"+authorID
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:    make(map[string]Item),
		orders:   make(map[string]Order),
		attempts: make(map[string]PaymentAttempt),
		reviews:  make(map[string]Review),
	}
}

// ---- items ----

func (s *MemStore) GetItem(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (s *MemStore) CreateItem(_ context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; ok {
		return ErrConflict
	}
	s.items[it.ID] = it
	return nil
}

func (s *MemStore) ListItems(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if it.Status != ItemRemoved {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Reserve(_ context.Context, id string, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Status != ItemListed || it.Version != expectedVersion {
		return ErrConflict
	}
	it.Status = ItemReserved
	it.Version++
	it.UpdatedAt = time.Now().UTC()
	s.items[id] = it
	return nil
}

func (s *MemStore) MarkSold(_ context.Context, id string) error {
	return s.moveItem(id, ItemSold, ItemReserved)
}

func (s *MemStore) Release(_ context.Context, id string) error {
	return s.moveItem(id, ItemListed, ItemReserved, ItemSold)
}

func (s *MemStore) moveItem(id string, to ItemStatus, from ...ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if it.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition
	}
	it.Status = to
	it.Version++
	it.UpdatedAt = time.Now().UTC()
	s.items[id] = it
	return nil
}

func (s *MemStore) Remove(_ context.Context, id, sellerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if it.SellerID != sellerID {
		return ErrNotSeller
	}
	if it.Status != ItemListed {
		return ErrConflict
	}
	it.Status = ItemRemoved
	it.Version++
	it.UpdatedAt = time.Now().UTC()
	s.items[id] = it
	return nil
}

// ---- orders ----

func (s *MemStore) GetOrder(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemStore) CreateOrder(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	s.orders[o.ID] = o
	return nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id string, from, to OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *MemStore) SetPaymentRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentRef = ref
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *MemStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == OrderPendingPayment && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ---- payment attempts ----

func (s *MemStore) GetAttempt(_ context.Context, orderID, attemptID string) (PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[orderID+"/"+attemptID]
	if !ok {
		return PaymentAttempt{}, ErrNotFound
	}
	return a, nil
}

func (s *MemStore) CreateAttempt(_ context.Context, a PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.OrderID + "/" + a.AttemptID
	if _, ok := s.attempts[key]; ok {
		return ErrConflict
	}
	s.attempts[key] = a
	return nil
}

func (s *MemStore) UpdateAttempt(_ context.Context, orderID, attemptID string, outcome AttemptOutcome, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderID + "/" + attemptID
	a, ok := s.attempts[key]
	if !ok {
		return ErrNotFound
	}
	a.Outcome = outcome
	a.PaymentRef = ref
	a.UpdatedAt = time.Now().UTC()
	s.attempts[key] = a
	return nil
}

func (s *MemStore) HasOpenAttempt(_ context.Context, orderID, excludeAttemptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.OrderID == orderID && a.AttemptID != excludeAttemptID && a.Outcome == AttemptPending {
			return true, nil
		}
	}
	return false, nil
}

// ---- reviews ----

func (s *MemStore) CreateReview(_ context.Context, rv Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rv.OrderID + "/" + rv.AuthorID
	if _, ok := s.reviews[key]; ok {
		return ErrDuplicateReview
	}
	s.reviews[key] = rv
	return nil
}

func (s *MemStore) ListReviewsForItem(_ context.Context, itemID string) ([]Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Review
	for _, rv := range s.reviews {
		o, ok := s.orders[rv.OrderID]
		if ok && o.ItemID == itemID {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
