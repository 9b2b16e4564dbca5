package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const cardProvider = "card"

// CardGateway talks to a card-network style provider: intents carry a
// client secret the browser uses to collect card details, and webhooks are
// signed with a hex HMAC-SHA256 over the raw body.
type CardGateway struct {
	baseURL       string
	secretKey     string
	webhookSecret []byte
	client        *http.Client
}

func NewCardGateway(baseURL, secretKey, webhookSecret string) *CardGateway {
	return &CardGateway{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: []byte(webhookSecret),
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *CardGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Intent, error) {
	req := map[string]any{
		"amount":   MinorUnits(amount),
		"currency": currency,
		"metadata": metadata,
	}
	var resp struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/payment_intents", req, &resp); err != nil {
		return Intent{}, err
	}
	return Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

func (g *CardGateway) Confirm(ctx context.Context, reference string) (bool, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+reference, nil, &resp); err != nil {
		return false, err
	}
	return resp.Status == "succeeded", nil
}

func (g *CardGateway) Refund(ctx context.Context, reference string, amount *decimal.Decimal) (RefundResult, error) {
	req := map[string]any{"payment_intent": reference}
	if amount != nil {
		req["amount"] = MinorUnits(*amount)
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/refunds", req, &resp); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ID: resp.ID, Status: resp.Status, Amount: FromMinorUnits(resp.Amount)}, nil
}

// VerifyWebhook compares the hex HMAC-SHA256 of the raw body in constant
// time before the body is parsed. An attacker without the secret cannot
// reach the parser at all.
func (g *CardGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	given, err := hex.DecodeString(signature)
	if err != nil {
		return Event{}, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, g.webhookSecret)
	mac.Write(payload)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return Event{}, ErrInvalidSignature
	}

	var wire struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Reference   string `json:"reference"`
			OrderNumber string `json:"order_number"`
			Amount      int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Event{}, ErrInvalidPayload
	}

	ev := Event{
		ID:          wire.ID,
		Reference:   wire.Data.Reference,
		OrderNumber: wire.Data.OrderNumber,
		AmountMinor: wire.Data.Amount,
	}
	switch wire.Type {
	case "payment_intent.succeeded":
		ev.Type = EventPaymentSucceeded
	case "payment_intent.payment_failed":
		ev.Type = EventPaymentFailed
	default:
		ev.Type = EventType(wire.Type)
	}
	return ev, nil
}

func (g *CardGateway) do(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return processorError(cardProvider, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// the raw body may reference card data; only the status survives
		return processorError(cardProvider, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return processorError(cardProvider, "malformed provider response")
	}
	return nil
}
