package stock

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("stock unit not found")
)

// SKURef identifies a stock unit: either a base product or one of its
// variants. Exactly one of the two carries the stock counter; VariantID
// is zero when the product itself is the sellable unit.
type SKURef struct {
	ProductID int
	VariantID int
}

func ForProduct(productID int) SKURef {
	return SKURef{ProductID: productID}
}

func ForVariant(productID, variantID int) SKURef {
	return SKURef{ProductID: productID, VariantID: variantID}
}

// Key returns a stable string form used for lock ordering and cache keys.
func (r SKURef) Key() string {
	if r.VariantID != 0 {
		return fmt.Sprintf("v:%d", r.VariantID)
	}
	return fmt.Sprintf("p:%d", r.ProductID)
}

// InsufficientStockError reports a reservation or cart request that asked
// for more units than the ledger currently holds.
type InsufficientStockError struct {
	SKU       SKURef
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.SKU.Key(), e.Available, e.Requested)
}

// Ledger is the single source of truth for sellable quantity. Every stock
// mutation in the system goes through Reserve or Restore; no caller is
// allowed to read-then-write quantities on its own.
type Ledger interface {
	// Available returns the current on-hand quantity without locking.
	Available(ctx context.Context, ref SKURef) (int, error)

	// CheckAvailability reports whether the on-hand quantity covers the
	// requested amount. Non-locking; callers that need the answer to stay
	// true must use Reserve.
	CheckAvailability(ctx context.Context, ref SKURef, quantity int) (bool, error)

	// Reserve atomically decrements the on-hand quantity. It fails with
	// *InsufficientStockError when the counter cannot cover the request,
	// leaving the counter untouched.
	Reserve(ctx context.Context, ref SKURef, quantity int) error

	// Restore atomically increments the on-hand quantity. Returned stock
	// is trusted, so there is no upper bound.
	Restore(ctx context.Context, ref SKURef, quantity int) error
}
