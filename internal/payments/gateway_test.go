package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizana/marketplace-orders/internal/market"
)

func TestHTTPGatewayCharge(t *testing.T) {
	var gotReq chargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charges", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(chargeResponse{Outcome: "succeeded", Ref: "ch_42"})
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL, Client: srv.Client()}
	res, err := g.Charge(context.Background(), "o1", 12500, "o1:a1")
	require.NoError(t, err)
	assert.Equal(t, market.AttemptSucceeded, res.Outcome)
	assert.Equal(t, "ch_42", res.Ref)
	assert.Equal(t, chargeRequest{OrderID: "o1", AmountCents: 12500, IdempotencyKey: "o1:a1"}, gotReq)
}

func TestHTTPGatewayRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		_ = json.NewEncoder(w).Encode(chargeResponse{Outcome: "succeeded"})
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL, Client: srv.Client()}
	out, err := g.Refund(context.Background(), "o1", 12500)
	require.NoError(t, err)
	assert.Equal(t, market.AttemptSucceeded, out)
}

func TestHTTPGatewayBadOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chargeResponse{Outcome: "maybe"})
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL, Client: srv.Client()}
	_, err := g.Charge(context.Background(), "o1", 1, "k")
	assert.Error(t, err)
}

func TestHTTPGatewayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := &HTTPGateway{BaseURL: srv.URL, Client: srv.Client()}
	_, err := g.Charge(context.Background(), "o1", 1, "k")
	assert.Error(t, err)
}
