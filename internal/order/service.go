package order

import (
	"context"
	"sort"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/cart"
	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/shipping"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxNumberRetries bounds how many sequence bumps Create attempts when
// concurrent orders collide on the same order number.
const maxNumberRetries = 10

// Notifier is the external notification sender invoked after successful
// status transitions. Calls are fire-and-forget: a failure is logged and
// never rolls back the transition.
type Notifier interface {
	ConfirmationSent(ctx context.Context, orderNumber string) error
	ShippingNotificationSent(ctx context.Context, orderNumber, trackingNumber string) error
	DeliveryConfirmationSent(ctx context.Context, orderNumber string) error
}

// Config carries the pricing and policy knobs for the workflow.
type Config struct {
	NumberPrefix string
	TaxRate      decimal.Decimal
	CancelWindow time.Duration
}

// Service orchestrates order creation, status transitions and cancellation.
type Service struct {
	repo     Repository
	carts    cart.Repository
	catalog  catalog.Store
	ledger   stock.Ledger
	rates    *shipping.RateTable
	totals   cart.TotalCache
	notifier Notifier
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, carts cart.Repository, store catalog.Store, ledger stock.Ledger,
	rates *shipping.RateTable, totals cart.TotalCache, notifier Notifier, cfg Config, log *zap.Logger) *Service {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = DefaultNumberPrefix
	}
	if cfg.CancelWindow == 0 {
		cfg.CancelWindow = CancellationWindow
	}
	if totals == nil {
		totals = cart.NopTotalCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo: repo, carts: carts, catalog: store, ledger: ledger,
		rates: rates, totals: totals, notifier: notifier, cfg: cfg,
		log: log, now: time.Now,
	}
}

// CreateInput is everything checkout collects before the order is placed.
type CreateInput struct {
	UserID        int
	CartID        int
	Shipping      Address
	PaymentMethod string
	PaymentRef    string
}

// Create converts the cart into an immutable order. Reservations, the order
// row, its line snapshots and the cart clear all commit in one repository
// transaction; any failure leaves stock, cart and order store untouched.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	crt, err := s.carts.Get(ctx, in.CartID)
	if err != nil {
		return Order{}, err
	}
	if len(crt.Lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	if err := in.Shipping.Validate(); err != nil {
		return Order{}, err
	}

	// stable SKU order keeps competing orders from acquiring row locks in
	// opposite directions
	lines := append([]cart.Line(nil), crt.Lines...)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].SKU().Key() < lines[j].SKU().Key()
	})

	snapshots := make([]Line, 0, len(lines))
	reservations := make([]Reservation, 0, len(lines))
	subtotal := decimal.Zero
	for _, cl := range lines {
		snap, err := s.snapshotLine(ctx, cl)
		if err != nil {
			return Order{}, err
		}
		ok, err := s.ledger.CheckAvailability(ctx, cl.SKU(), cl.Quantity)
		if err != nil {
			return Order{}, err
		}
		if !ok {
			avail, _ := s.ledger.Available(ctx, cl.SKU())
			return Order{}, &stock.InsufficientStockError{SKU: cl.SKU(), Available: avail, Requested: cl.Quantity}
		}
		snapshots = append(snapshots, snap)
		reservations = append(reservations, Reservation{SKU: cl.SKU(), Quantity: cl.Quantity})
		subtotal = subtotal.Add(snap.Total())
	}

	shippingCost := s.rates.Cost(in.Shipping.Country)
	tax := subtotal.Mul(s.cfg.TaxRate).Round(2)
	total := subtotal.Add(shippingCost).Add(tax)

	now := s.now()
	ord := Order{
		UserID:        in.UserID,
		Status:        StatusPending,
		Shipping:      in.Shipping,
		Subtotal:      subtotal,
		ShippingCost:  shippingCost,
		Tax:           tax,
		Total:         total,
		PaymentMethod: in.PaymentMethod,
		PaymentRef:    in.PaymentRef,
		CreatedAt:     now,
		Lines:         snapshots,
	}

	year := now.Year()
	count, err := s.repo.CountForYear(ctx, year)
	if err != nil {
		return Order{}, err
	}
	seq := count + 1

	var created Order
	for attempt := 0; ; attempt++ {
		ord.Number = FormatNumber(s.cfg.NumberPrefix, year, seq)
		created, err = s.repo.Create(ctx, ord, reservations, in.CartID)
		if err == nil {
			break
		}
		if err == ErrDuplicateNumber && attempt < maxNumberRetries {
			seq++
			continue
		}
		return Order{}, err
	}

	s.totals.Invalidate(ctx, in.CartID)
	s.log.Info("order created",
		zap.String("order_number", created.Number),
		zap.Int("user_id", created.UserID),
		zap.String("total", created.Total.String()))
	return created, nil
}

// UpdateStatus applies a state-machine transition. The tracking number is
// persisted only when moving into shipped. Notifications fire after the
// transition commits and never undo it.
func (s *Service) UpdateStatus(ctx context.Context, orderID int, next Status, trackingNumber string) (Order, error) {
	if !next.Valid() {
		return Order{}, ErrInvalidTransition
	}
	ord, err := s.repo.UpdateStatus(ctx, orderID, next, trackingNumber)
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, ord)
	return ord, nil
}

// Cancel flips a pending or processing order to cancelled within the
// cancellation window and restores the reserved stock in the same atomic
// step as the status flip.
func (s *Service) Cancel(ctx context.Context, orderID int) (Order, error) {
	ord, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	switch ord.Status {
	case StatusCancelled:
		return Order{}, ErrAlreadyCancelled
	case StatusShipped, StatusDelivered:
		return Order{}, ErrAlreadyShippedOrDelivered
	}
	if s.now().Sub(ord.CreatedAt) > s.cfg.CancelWindow {
		return Order{}, ErrCancellationWindowExpired
	}
	cancelled, err := s.repo.CancelAndRestore(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.log.Info("order cancelled", zap.String("order_number", cancelled.Number))
	return cancelled, nil
}

// MarkPaid records the payment timestamp reported by a verified webhook and
// moves a pending order into processing.
func (s *Service) MarkPaid(ctx context.Context, orderNumber string, at time.Time) (Order, error) {
	ord, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, err
	}
	if _, err := s.repo.MarkPaid(ctx, ord.ID, at); err != nil {
		return Order{}, err
	}
	if ord.Status == StatusPending {
		return s.UpdateStatus(ctx, ord.ID, StatusProcessing, "")
	}
	return s.repo.Get(ctx, ord.ID)
}

// PaymentFailed records a failed payment attempt. The order stays pending;
// the customer can retry.
func (s *Service) PaymentFailed(ctx context.Context, orderNumber, reason string) {
	s.log.Warn("payment failed",
		zap.String("order_number", orderNumber),
		zap.String("reason", reason))
}

func (s *Service) Get(ctx context.Context, orderID int) (Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) GetForUser(ctx context.Context, userID int) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) notify(ctx context.Context, ord Order) {
	if s.notifier == nil {
		return
	}
	var err error
	switch ord.Status {
	case StatusProcessing:
		err = s.notifier.ConfirmationSent(ctx, ord.Number)
	case StatusShipped:
		err = s.notifier.ShippingNotificationSent(ctx, ord.Number, ord.TrackingNumber)
	case StatusDelivered:
		err = s.notifier.DeliveryConfirmationSent(ctx, ord.Number)
	default:
		return
	}
	if err != nil {
		s.log.Warn("notification failed",
			zap.String("order_number", ord.Number),
			zap.String("status", string(ord.Status)),
			zap.Error(err))
	}
}

// snapshotLine copies name and price out of the live catalog record. The
// copy is what the order keeps; later product edits never reach it.
func (s *Service) snapshotLine(ctx context.Context, cl cart.Line) (Line, error) {
	p, err := s.catalog.Product(ctx, cl.ProductID)
	if err != nil {
		return Line{}, err
	}
	if !p.IsActive {
		return Line{}, cart.ErrUnavailable
	}
	snap := Line{
		ProductID:   cl.ProductID,
		VariantID:   cl.VariantID,
		ProductName: p.Name,
		UnitPrice:   catalog.UnitPrice(p, nil),
		Quantity:    cl.Quantity,
	}
	if cl.VariantID != 0 {
		v, err := s.catalog.Variant(ctx, cl.VariantID)
		if err != nil {
			return Line{}, err
		}
		if !v.IsAvailable {
			return Line{}, cart.ErrUnavailable
		}
		snap.VariantName = v.Name
		snap.UnitPrice = catalog.UnitPrice(p, &v)
	}
	return snap, nil
}
