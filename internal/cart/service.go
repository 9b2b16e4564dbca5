package cart

import (
	"context"

	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service owns the cart business rules: quantity bounds, availability and
// stock checks, login merges and total computation. Stock is only read here,
// never decremented; reservations happen at order creation.
type Service struct {
	repo    Repository
	catalog catalog.Store
	ledger  stock.Ledger
	totals  TotalCache
	log     *zap.Logger
}

func NewService(repo Repository, store catalog.Store, ledger stock.Ledger, totals TotalCache, log *zap.Logger) *Service {
	if totals == nil {
		totals = NopTotalCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, catalog: store, ledger: ledger, totals: totals, log: log}
}

func (s *Service) GetOrCreate(ctx context.Context, id Identity) (Cart, error) {
	return s.repo.GetOrCreate(ctx, id)
}

// AddLine merges the requested quantity into the existing line for the same
// (product, variant) if one exists. The stock check covers the quantity
// already in the cart, not just the delta.
func (s *Service) AddLine(ctx context.Context, id Identity, productID, variantID, quantity int) (Line, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return Line{}, ErrQuantityOutOfRange
	}
	ref, err := s.checkSellable(ctx, productID, variantID)
	if err != nil {
		return Line{}, err
	}

	c, err := s.repo.GetOrCreate(ctx, id)
	if err != nil {
		return Line{}, err
	}

	requested := quantity
	existing, err := s.repo.FindLine(ctx, c.ID, productID, variantID)
	switch err {
	case nil:
		requested += existing.Quantity
	case ErrLineNotFound:
	default:
		return Line{}, err
	}

	if err := s.checkStock(ctx, ref, requested); err != nil {
		return Line{}, err
	}

	defer s.totals.Invalidate(ctx, c.ID)

	if existing.ID != 0 {
		if err := s.repo.UpdateLineQuantity(ctx, existing.ID, requested); err != nil {
			return Line{}, err
		}
		existing.Quantity = requested
		return existing, nil
	}
	return s.repo.InsertLine(ctx, Line{CartID: c.ID, ProductID: productID, VariantID: variantID, Quantity: quantity})
}

// UpdateQuantity replaces a line's quantity, applying the same bounds and
// stock check as AddLine.
func (s *Service) UpdateQuantity(ctx context.Context, lineID, quantity int) (Line, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return Line{}, ErrQuantityOutOfRange
	}
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return Line{}, err
	}
	ref, err := s.checkSellable(ctx, line.ProductID, line.VariantID)
	if err != nil {
		return Line{}, err
	}
	if err := s.checkStock(ctx, ref, quantity); err != nil {
		return Line{}, err
	}
	if err := s.repo.UpdateLineQuantity(ctx, lineID, quantity); err != nil {
		return Line{}, err
	}
	s.totals.Invalidate(ctx, line.CartID)
	line.Quantity = quantity
	return line, nil
}

func (s *Service) RemoveLine(ctx context.Context, lineID int) error {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLine(ctx, lineID); err != nil {
		return err
	}
	s.totals.Invalidate(ctx, line.CartID)
	return nil
}

func (s *Service) Clear(ctx context.Context, cartID int) error {
	if err := s.repo.Clear(ctx, cartID); err != nil {
		return err
	}
	s.totals.Invalidate(ctx, cartID)
	return nil
}

func (s *Service) Get(ctx context.Context, id Identity) (Cart, error) {
	return s.repo.Find(ctx, id)
}

// MergeOnLogin folds the guest cart for sessionKey into the user's cart.
// Matching lines are summed and clamped to min(sum, available stock,
// MaxLineQuantity); unmatched guest lines move over as they are. The guest
// cart is deleted afterward.
func (s *Service) MergeOnLogin(ctx context.Context, sessionKey string, userID int) (Cart, error) {
	userCart, err := s.repo.GetOrCreate(ctx, ForUser(userID))
	if err != nil {
		return Cart{}, err
	}

	guest, err := s.repo.Find(ctx, ForSession(sessionKey))
	if err == ErrNotFound {
		return userCart, nil
	}
	if err != nil {
		return Cart{}, err
	}

	for _, gl := range guest.Lines {
		match, err := s.repo.FindLine(ctx, userCart.ID, gl.ProductID, gl.VariantID)
		switch err {
		case nil:
			avail, err := s.ledger.Available(ctx, gl.SKU())
			if err != nil {
				return Cart{}, err
			}
			merged := min(match.Quantity+gl.Quantity, avail, MaxLineQuantity)
			if merged < 1 {
				if err := s.repo.DeleteLine(ctx, match.ID); err != nil {
					return Cart{}, err
				}
			} else if err := s.repo.UpdateLineQuantity(ctx, match.ID, merged); err != nil {
				return Cart{}, err
			}
		case ErrLineNotFound:
			if err := s.repo.ReassignLine(ctx, gl.ID, userCart.ID); err != nil {
				return Cart{}, err
			}
		default:
			return Cart{}, err
		}
	}

	if err := s.repo.Delete(ctx, guest.ID); err != nil {
		return Cart{}, err
	}
	s.totals.Invalidate(ctx, guest.ID)
	s.totals.Invalidate(ctx, userCart.ID)
	s.log.Info("merged guest cart", zap.Int("guest_cart", guest.ID), zap.Int("user_cart", userCart.ID))

	return s.repo.Get(ctx, userCart.ID)
}

// Total sums line totals at current catalog prices, caching the result per
// cart until the next mutation or TTL expiry.
func (s *Service) Total(ctx context.Context, cartID int) (decimal.Decimal, error) {
	if cached, ok := s.totals.Get(ctx, cartID); ok {
		return cached, nil
	}

	c, err := s.repo.Get(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, l := range c.Lines {
		unit, err := s.unitPrice(ctx, l.ProductID, l.VariantID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(LineTotal(unit, l.Quantity))
	}
	s.totals.Set(ctx, cartID, total)
	return total, nil
}

// UnitPrice exposes the effective catalog price for a line's SKU.
func (s *Service) UnitPrice(ctx context.Context, productID, variantID int) (decimal.Decimal, error) {
	return s.unitPrice(ctx, productID, variantID)
}

func (s *Service) unitPrice(ctx context.Context, productID, variantID int) (decimal.Decimal, error) {
	p, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if variantID == 0 {
		return catalog.UnitPrice(p, nil), nil
	}
	v, err := s.catalog.Variant(ctx, variantID)
	if err != nil {
		return decimal.Zero, err
	}
	return catalog.UnitPrice(p, &v), nil
}

// checkSellable verifies the product is active and the variant, when given,
// is available. It returns the stock reference for the sellable unit.
func (s *Service) checkSellable(ctx context.Context, productID, variantID int) (stock.SKURef, error) {
	p, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return stock.SKURef{}, err
	}
	if !p.IsActive {
		return stock.SKURef{}, ErrUnavailable
	}
	if variantID == 0 {
		return stock.ForProduct(productID), nil
	}
	v, err := s.catalog.Variant(ctx, variantID)
	if err != nil {
		return stock.SKURef{}, err
	}
	if !v.IsAvailable {
		return stock.SKURef{}, ErrUnavailable
	}
	return stock.ForVariant(productID, variantID), nil
}

func (s *Service) checkStock(ctx context.Context, ref stock.SKURef, requested int) error {
	avail, err := s.ledger.Available(ctx, ref)
	if err != nil {
		return err
	}
	if avail < requested {
		return &stock.InsufficientStockError{SKU: ref, Available: avail, Requested: requested}
	}
	return nil
}
