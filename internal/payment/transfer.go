package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const transferProvider = "transfer"

// TransferGateway talks to a redirect/bank-transfer style provider: the
// intent carries a URL the customer is sent to, and webhooks are signed
// with a base64 HMAC-SHA256 over the raw body.
type TransferGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret []byte
	client        *http.Client
}

func NewTransferGateway(baseURL, apiKey, webhookSecret string) *TransferGateway {
	return &TransferGateway{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: []byte(webhookSecret),
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *TransferGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Intent, error) {
	req := map[string]any{
		"amount":   MinorUnits(amount),
		"currency": currency,
		"metadata": metadata,
	}
	var resp struct {
		ID          string `json:"id"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := g.do(ctx, http.MethodPost, "/api/transfers", req, &resp); err != nil {
		return Intent{}, err
	}
	return Intent{ID: resp.ID, RedirectURL: resp.RedirectURL}, nil
}

func (g *TransferGateway) Confirm(ctx context.Context, reference string) (bool, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/transfers/"+reference, nil, &resp); err != nil {
		return false, err
	}
	return resp.Status == "succeeded", nil
}

func (g *TransferGateway) Refund(ctx context.Context, reference string, amount *decimal.Decimal) (RefundResult, error) {
	req := map[string]any{"transfer": reference}
	if amount != nil {
		req["amount"] = MinorUnits(*amount)
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	if err := g.do(ctx, http.MethodPost, "/api/refunds", req, &resp); err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ID: resp.ID, Status: resp.Status, Amount: FromMinorUnits(resp.Amount)}, nil
}

func (g *TransferGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	given, err := base64.StdEncoding.DecodeString(signature)
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
	case "transfer.completed":
		ev.Type = EventPaymentSucceeded
	case "transfer.failed":
		ev.Type = EventPaymentFailed
	default:
		ev.Type = EventType(wire.Type)
	}
	return ev, nil
}

func (g *TransferGateway) do(ctx context.Context, method, path string, body any, out any) error {
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
	req.Header.Set("X-Api-Key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return processorError(transferProvider, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return processorError(transferProvider, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return processorError(transferProvider, "malformed provider response")
	}
	return nil
}
