package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCardVerifyWebhook(t *testing.T) {
	g := NewCardGateway("http://unused", "sk_test", "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"reference":"pi_1","order_number":"ORD-2026-000001","amount":85250}}`)

	ev, err := g.VerifyWebhook(payload, signHex("whsec_test", payload))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ev.Type != EventPaymentSucceeded {
		t.Errorf("expected succeeded event, got %s", ev.Type)
	}
	if ev.OrderNumber != "ORD-2026-000001" || ev.Reference != "pi_1" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if ev.AmountMinor != 85250 {
		t.Errorf("expected amount 85250, got %d", ev.AmountMinor)
	}
}

func TestCardVerifyWebhookRejectsBadSignature(t *testing.T) {
	g := NewCardGateway("http://unused", "sk_test", "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{}}`)

	// signature computed over a different body
	sig := signHex("whsec_test", []byte(`{"id":"evt_2"}`))
	if _, err := g.VerifyWebhook(payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered body: expected ErrInvalidSignature, got %v", err)
	}
	// signature computed with the wrong secret
	sig = signHex("whsec_other", payload)
	if _, err := g.VerifyWebhook(payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong secret: expected ErrInvalidSignature, got %v", err)
	}
	// not hex at all
	if _, err := g.VerifyWebhook(payload, "zz-not-hex"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("malformed signature: expected ErrInvalidSignature, got %v", err)
	}
}

func TestCardVerifyWebhookRejectsBadPayload(t *testing.T) {
	g := NewCardGateway("http://unused", "sk_test", "whsec_test")
	payload := []byte(`this is not json`)

	if _, err := g.VerifyWebhook(payload, signHex("whsec_test", payload)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestCardCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 85250 || req.Currency != "thb" {
			t.Errorf("expected amount 85250 thb, got %d %s", req.Amount, req.Currency)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "pi_1", "client_secret": "cs_1"})
	}))
	defer srv.Close()

	g := NewCardGateway(srv.URL, "sk_test", "whsec_test")
	intent, err := g.CreateIntent(context.Background(), decimal.RequireFromString("852.50"), "thb",
		map[string]string{"order_number": "ORD-2026-000001"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ID != "pi_1" || intent.ClientSecret != "cs_1" {
		t.Errorf("unexpected intent: %+v", intent)
	}
}

func TestCardConfirm(t *testing.T) {
	status := "succeeded"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	g := NewCardGateway(srv.URL, "sk_test", "whsec_test")
	ok, err := g.Confirm(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Error("expected confirmation for succeeded status")
	}

	status = "requires_payment_method"
	ok, err = g.Confirm(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok {
		t.Error("pending status must not confirm")
	}
}

func TestCardErrorHidesProviderBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"card_declined","card":"4242424242424242"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	g := NewCardGateway(srv.URL, "sk_test", "whsec_test")
	_, err := g.Confirm(context.Background(), "pi_1")
	var procErr *ProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if procErr.Detail != "unexpected status 402" {
		t.Errorf("provider body leaked into error: %q", procErr.Detail)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		minor  int64
	}{
		{"852.50", 85250},
		{"0.01", 1},
		{"100", 10000},
		{"19.999", 2000},
	}
	for _, c := range cases {
		if got := MinorUnits(decimal.RequireFromString(c.amount)); got != c.minor {
			t.Errorf("MinorUnits(%s) = %d, want %d", c.amount, got, c.minor)
		}
	}
	if got := FromMinorUnits(85250); !got.Equal(decimal.RequireFromString("852.50")) {
		t.Errorf("FromMinorUnits(85250) = %s, want 852.50", got)
	}
}
