package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rizana/marketplace-orders/internal/market"
	"github.com/rizana/marketplace-orders/internal/redisx"
)

// MarketHandler exposes the order core over HTTP. Auth and request
// validation beyond field presence live in the surrounding stack; buyer
// and seller ids arrive in the request body.
type MarketHandler struct {
	Items   market.ItemStore
	Orders  market.OrderStore
	Machine *market.StateMachine
	Gate    *market.ReviewGate
	Cache   *redis.Client // optional status cache
}

func (h *MarketHandler) Register(r *chi.Mux) {
	r.Post("/items", h.createItem)
	r.Get("/items", h.listItems)
	r.Delete("/items/{id}", h.removeItem)
	r.Get("/items/{id}/reviews", h.listReviews)

	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/payment", h.confirmPayment)
	r.Post("/orders/{id}/ship", h.markShipped)
	r.Post("/orders/{id}/complete", h.complete)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/reviews", h.submitReview)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, market.ErrItemUnavailable),
		errors.Is(err, market.ErrInvalidTransition),
		errors.Is(err, market.ErrDuplicateReview),
		errors.Is(err, market.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, market.ErrPaymentFailed):
		code = http.StatusPaymentRequired
	case errors.Is(err, market.ErrNotEligible),
		errors.Is(err, market.ErrOwnItem),
		errors.Is(err, market.ErrNotSeller):
		code = http.StatusForbidden
	case errors.Is(err, market.ErrInvalidReview):
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ---- items ----

type createItemReq struct {
	SellerID   string `json:"seller_id"`
	Title      string `json:"title"`
	PriceCents int    `json:"price_cents"`
}

func (h *MarketHandler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SellerID == "" || req.Title == "" || len(req.Title) > 100 || req.PriceCents < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	now := time.Now().UTC()
	it := market.Item{
		ID:         uuid.NewString(),
		SellerID:   req.SellerID,
		Title:      req.Title,
		PriceCents: req.PriceCents,
		Status:     market.ItemListed,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Items.CreateItem(ctx, it); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *MarketHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Items.ListItems(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *MarketHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	sellerID := r.URL.Query().Get("seller_id")
	if itemID == "" || sellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id or seller_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Items.Remove(ctx, itemID, sellerID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- orders ----

type createOrderReq struct {
	ItemID  string `json:"item_id"`
	BuyerID string `json:"buyer_id"`
}

func (h *MarketHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ItemID == "" || req.BuyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Machine.Create(ctx, req.ItemID, req.BuyerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *MarketHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first
	if h.Cache != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Cache.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, order)
}

type confirmPaymentReq struct {
	AttemptID string `json:"attempt_id"`
}

func (h *MarketHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req confirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if orderID == "" || req.AttemptID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Machine.ConfirmPayment(ctx, orderID, req.AttemptID)
	if errors.Is(err, market.ErrPaymentPending) {
		// not an error for the caller: the charge is settling, retry later
		writeJSON(w, http.StatusAccepted, order)
		return
	}
	if err != nil {
		h.cacheStatus(ctx, order)
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, order)
}

func (h *MarketHandler) markShipped(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.MarkShipped)
}

func (h *MarketHandler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.Complete)
}

func (h *MarketHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Machine.Cancel)
}

func (h *MarketHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (market.Order, error)) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := op(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, order)
}

// ---- reviews ----

type submitReviewReq struct {
	AuthorID string `json:"author_id"`
	Rating   int    `json:"rating"`
	Body     string `json:"body"`
}

func (h *MarketHandler) submitReview(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req submitReviewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if orderID == "" || req.AuthorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rv, err := h.Gate.Submit(ctx, orderID, req.AuthorID, req.Rating, req.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *MarketHandler) listReviews(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rvs, err := h.Gate.ListForItem(ctx, itemID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rvs)
}

func (h *MarketHandler) cacheStatus(ctx context.Context, order market.Order) {
	if h.Cache == nil || order.ID == "" {
		return
	}
	b, err := json.Marshal(order)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, order.ID)
	_ = h.Cache.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
