package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// maxErrorDetail caps how much provider text a ProcessorError may carry.
const maxErrorDetail = 160

// ProcessorError wraps any provider-side failure. The message is capped and
// stripped to a single line so raw provider responses, which may contain
// card data, never reach logs or callers verbatim.
type ProcessorError struct {
	Provider string
	Detail   string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payment processor %s: %s", e.Provider, e.Detail)
}

func processorError(provider, detail string) *ProcessorError {
	if i := strings.IndexAny(detail, "\r\n"); i >= 0 {
		detail = detail[:i]
	}
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	return &ProcessorError{Provider: provider, Detail: detail}
}

type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
)

// Event is a verified, parsed webhook notification.
type Event struct {
	ID          string
	Type        EventType
	Reference   string
	OrderNumber string
	AmountMinor int64
}

// Intent is the provider-side payment to hand to the client. Card-style
// providers return a client secret, redirect-style providers a URL.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

type RefundResult struct {
	ID     string          `json:"refundId"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// Gateway is the payment capability the order workflow consumes. Two
// concrete backends implement it against different provider APIs.
type Gateway interface {
	// CreateIntent registers a payment of amount (major units) with the
	// provider and returns what the client needs to complete it.
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Intent, error)

	// Confirm retrieves the provider-side status. Only an explicit
	// "succeeded" yields true; pending or unknown statuses are false, not
	// errors.
	Confirm(ctx context.Context, reference string) (bool, error)

	// Refund refunds the payment, fully when amount is nil.
	Refund(ctx context.Context, reference string, amount *decimal.Decimal) (RefundResult, error)

	// VerifyWebhook authenticates the raw body against the signature
	// header before any parsing. ErrInvalidSignature on mismatch;
	// ErrInvalidPayload when the authenticated body is not valid JSON.
	VerifyWebhook(payload []byte, signature string) (Event, error)
}

// MinorUnits converts a decimal amount to the provider's integer
// representation (hundredths).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}
