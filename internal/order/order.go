package order

import (
	"errors"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                  = errors.New("order not found")
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrInvalidShipping           = errors.New("shipping information is incomplete")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrAlreadyCancelled          = errors.New("order is already cancelled")
	ErrAlreadyShippedOrDelivered = errors.New("order has already shipped")
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
)

// CancellationWindow is how long after creation an order may still be
// cancelled by the customer.
const CancellationWindow = 24 * time.Hour

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Delivered and cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Address is the shipping snapshot stored with the order.
type Address struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"addressLine1"`
	Line2      string `json:"addressLine2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Validate checks the required shipping fields; Line2 is optional.
func (a Address) Validate() error {
	if a.FullName == "" || a.Phone == "" || a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrInvalidShipping
	}
	return nil
}

// Line is an immutable snapshot of a cart line at the moment of purchase.
// Name and price are copied, never re-read from the live product, so order
// history survives later catalog edits and deletions.
type Line struct {
	ID          int             `json:"lineID"`
	OrderID     int             `json:"orderID"`
	ProductID   int             `json:"productID"`
	VariantID   int             `json:"variantID,omitempty"`
	ProductName string          `json:"productName"`
	VariantName string          `json:"variantName,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

func (l Line) SKU() stock.SKURef {
	if l.VariantID != 0 {
		return stock.ForVariant(l.ProductID, l.VariantID)
	}
	return stock.ForProduct(l.ProductID)
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is immutable once created except for status, tracking number and
// paid_at. Totals always satisfy Total = Subtotal + ShippingCost + Tax.
type Order struct {
	ID             int             `json:"orderID"`
	Number         string          `json:"orderNumber"`
	UserID         int             `json:"userID"`
	Status         Status          `json:"status"`
	Shipping       Address         `json:"shipping"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentRef     string          `json:"paymentRef,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Lines          []Line          `json:"lines"`
}
