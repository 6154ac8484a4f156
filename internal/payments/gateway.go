// Package payments holds the gateway adapter: the HTTP client for the
// external capture/refund service, a retry wrapper for transport errors,
// and the Kafka callback consumer that settles attempts asynchronously.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rizana/marketplace-orders/internal/market"
)

// HTTPGateway implements market.PaymentGateway against a JSON-over-HTTP
// payment service. The client's timeout (or the request context's
// deadline) bounds every call.
type HTTPGateway struct {
	BaseURL string
	Client  *http.Client
}

type chargeRequest struct {
	OrderID        string `json:"order_id"`
	AmountCents    int    `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key"`
}

type chargeResponse struct {
	Outcome string `json:"outcome"` // succeeded | failed | pending
	Ref     string `json:"ref,omitempty"`
}

type refundRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int    `json:"amount_cents"`
}

func (g *HTTPGateway) Charge(ctx context.Context, orderID string, amountCents int, idemKey string) (market.ChargeResult, error) {
	var resp chargeResponse
	err := g.post(ctx, "/charges", chargeRequest{
		OrderID: orderID, AmountCents: amountCents, IdempotencyKey: idemKey,
	}, &resp)
	if err != nil {
		return market.ChargeResult{}, err
	}
	out, err := parseOutcome(resp.Outcome)
	if err != nil {
		return market.ChargeResult{}, err
	}
	return market.ChargeResult{Outcome: out, Ref: resp.Ref}, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, orderID string, amountCents int) (market.AttemptOutcome, error) {
	var resp chargeResponse
	err := g.post(ctx, "/refunds", refundRequest{OrderID: orderID, AmountCents: amountCents}, &resp)
	if err != nil {
		return "", err
	}
	return parseOutcome(resp.Outcome)
}

func (g *HTTPGateway) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("gateway %s: status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func parseOutcome(s string) (market.AttemptOutcome, error) {
	switch s {
	case "succeeded":
		return market.AttemptSucceeded, nil
	case "failed":
		return market.AttemptFailed, nil
	case "pending":
		return market.AttemptPending, nil
	default:
		return "", fmt.Errorf("gateway: unknown outcome %q", s)
	}
}
