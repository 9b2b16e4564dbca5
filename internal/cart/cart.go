package cart

import (
	"errors"

	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("cart not found")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrUnavailable        = errors.New("product or variant is unavailable")
	ErrQuantityOutOfRange = errors.New("quantity must be between 1 and 100")
	ErrNoIdentity         = errors.New("cart identity missing")
)

// MaxLineQuantity is the per-order ceiling for a single line. It applies to
// adds, updates and the result of a login merge.
const MaxLineQuantity = 100

// Identity names the owner of a cart: an authenticated user or an anonymous
// session, never both.
type Identity struct {
	UserID     int
	SessionKey string
}

func ForUser(userID int) Identity {
	return Identity{UserID: userID}
}

func ForSession(key string) Identity {
	return Identity{SessionKey: key}
}

func (id Identity) Valid() bool {
	return (id.UserID > 0) != (id.SessionKey != "")
}

// Line is one (product, variant) entry in a cart. A cart holds at most one
// line per (product, variant) pair; repeated adds increment the quantity.
type Line struct {
	ID        int `json:"lineID"`
	CartID    int `json:"cartID"`
	ProductID int `json:"productID"`
	VariantID int `json:"variantID,omitempty"`
	Quantity  int `json:"quantity"`
}

// SKU returns the stock reference for this line.
func (l Line) SKU() stock.SKURef {
	if l.VariantID != 0 {
		return stock.ForVariant(l.ProductID, l.VariantID)
	}
	return stock.ForProduct(l.ProductID)
}

// Cart is the mutable pre-purchase basket. It is created lazily on first
// add and cleared when an order is created from it.
type Cart struct {
	ID         int    `json:"cartID"`
	UserID     int    `json:"userID,omitempty"`
	SessionKey string `json:"-"`
	Lines      []Line `json:"lines"`
}

// LineTotal computes quantity times unit price for a line.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
