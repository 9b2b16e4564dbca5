package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

// Product is the read-side view the checkout core consumes. Catalog
// administration lives elsewhere; this package only reads.
type Product struct {
	ID       int             `json:"productID"`
	Name     string          `json:"productName"`
	Price    decimal.Decimal `json:"productPrice"`
	IsActive bool            `json:"isActive"`
}

// Variant is a concrete sellable variation of a product. Its unit price is
// the product price plus the variant's adjustment.
type Variant struct {
	ID              int             `json:"variantID"`
	ProductID       int             `json:"productID"`
	Name            string          `json:"variantName"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
	IsAvailable     bool            `json:"isAvailable"`
}

// UnitPrice returns the effective price for a product, with the variant
// adjustment applied when a variant is selected.
func UnitPrice(p Product, v *Variant) decimal.Decimal {
	if v == nil {
		return p.Price
	}
	return p.Price.Add(v.PriceAdjustment)
}
