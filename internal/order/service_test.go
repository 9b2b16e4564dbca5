package order

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/cart"
	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/notify"
	"github.com/devopsinitiate/storefront-backend/internal/shipping"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/shopspring/decimal"
)

type fixture struct {
	service  *Service
	cartSvc  *cart.Service
	cartRepo *cart.InMemoryRepository
	repo     *InMemoryRepository
	ledger   *stock.InMemoryLedger
	rec      *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := catalog.NewInMemoryStore()
	store.PutProduct(catalog.Product{ID: 1, Name: "Dog Food 3kg", Price: decimal.RequireFromString("250.00"), IsActive: true})
	store.PutProduct(catalog.Product{ID: 2, Name: "Cat Tower", Price: decimal.RequireFromString("1200.00"), IsActive: true})
	store.PutVariant(catalog.Variant{ID: 11, ProductID: 1, Name: "Salmon", PriceAdjustment: decimal.RequireFromString("50.00"), IsAvailable: true})

	ledger := stock.NewInMemoryLedger()
	ledger.Set(stock.ForProduct(1), 5)
	ledger.Set(stock.ForVariant(1, 11), 20)
	ledger.Set(stock.ForProduct(2), 0)

	cartRepo := cart.NewInMemoryRepository()
	repo := NewInMemoryRepository(ledger, cartRepo)
	rec := &notify.Recorder{}

	return &fixture{
		service: NewService(repo, cartRepo, store, ledger, shipping.DefaultTable(), nil, rec,
			Config{NumberPrefix: "ORD", TaxRate: decimal.RequireFromString("0.07")}, nil),
		cartSvc:  cart.NewService(cartRepo, store, ledger, nil, nil),
		cartRepo: cartRepo,
		repo:     repo,
		ledger:   ledger,
		rec:      rec,
	}
}

func testAddress() Address {
	return Address{
		FullName:   "Somsak Chaiyasan",
		Phone:      "0812345678",
		Line1:      "99/1 Sukhumvit Rd",
		City:       "Bangkok",
		PostalCode: "10110",
		Country:    "TH",
	}
}

func TestCreateTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 3)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !ord.Subtotal.Equal(decimal.RequireFromString("750.00")) {
		t.Errorf("expected subtotal 750.00, got %s", ord.Subtotal)
	}
	// TH is the home country, domestic rate
	if !ord.ShippingCost.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected shipping 50, got %s", ord.ShippingCost)
	}
	if !ord.Tax.Equal(decimal.RequireFromString("52.50")) {
		t.Errorf("expected tax 52.50, got %s", ord.Tax)
	}
	if !ord.Total.Equal(ord.Subtotal.Add(ord.ShippingCost).Add(ord.Tax)) {
		t.Errorf("total %s does not equal subtotal+shipping+tax", ord.Total)
	}
	if ord.Status != StatusPending {
		t.Errorf("expected pending, got %s", ord.Status)
	}
	if !ValidNumber(ord.Number) {
		t.Errorf("order number %q does not match the expected format", ord.Number)
	}
	if ord.Lines[0].ProductName != "Dog Food 3kg" || !ord.Lines[0].UnitPrice.Equal(decimal.RequireFromString("250.00")) {
		t.Errorf("expected snapshot of name and price, got %+v", ord.Lines[0])
	}

	avail, _ := f.ledger.Available(ctx, stock.ForProduct(1))
	if avail != 2 {
		t.Errorf("expected 2 units left after reservation, got %d", avail)
	}
	crt, err := f.cartSvc.Get(ctx, cart.ForUser(7))
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(crt.Lines) != 0 {
		t.Errorf("expected cart cleared after order, got %d lines", len(crt.Lines))
	}
}

func TestCreateRollsBackOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 2)
	if err != nil {
		t.Fatalf("seed line A: %v", err)
	}
	// product 2 has zero stock; insert straight through the repository the
	// way a competing order drains stock between browse and checkout
	if _, err := f.cartRepo.InsertLine(ctx, cart.Line{CartID: line.CartID, ProductID: 2, Quantity: 1}); err != nil {
		t.Fatalf("seed line B: %v", err)
	}

	_, err = f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	var insErr *stock.InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// nothing may have changed: stock intact, cart intact, no order stored
	if avail, _ := f.ledger.Available(ctx, stock.ForProduct(1)); avail != 5 {
		t.Errorf("expected product 1 stock untouched at 5, got %d", avail)
	}
	crt, err := f.cartSvc.Get(ctx, cart.ForUser(7))
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(crt.Lines) != 2 {
		t.Errorf("expected cart to keep its 2 lines, got %d", len(crt.Lines))
	}
	if orders, _ := f.repo.ListByUser(ctx, 7); len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}

func TestCreateEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	crt, err := f.cartSvc.GetOrCreate(ctx, cart.ForUser(7))
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	if _, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: crt.ID, Shipping: testAddress(), PaymentMethod: "card"}); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCreateInvalidShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 1)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	addr := testAddress()
	addr.PostalCode = ""
	if _, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: addr, PaymentMethod: "card"}); !errors.Is(err, ErrInvalidShipping) {
		t.Errorf("expected ErrInvalidShipping, got %v", err)
	}
}

func TestCreateConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	cartIDs := make([]int, n)
	for i := 0; i < n; i++ {
		line, err := f.cartSvc.AddLine(ctx, cart.ForUser(100+i), 1, 11, 1)
		if err != nil {
			t.Fatalf("seed cart %d: %v", i, err)
		}
		cartIDs[i] = line.CartID
	}

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ord, err := f.service.Create(ctx, CreateInput{UserID: 100 + i, CartID: cartIDs[i], Shipping: testAddress(), PaymentMethod: "card"})
			if err != nil {
				errs <- err
				return
			}
			numbers <- ord.Number
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create: %v", err)
	}
	seen := make(map[string]bool)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("duplicate order number %s", num)
		}
		if !ValidNumber(num) {
			t.Errorf("malformed order number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct numbers, got %d", n, len(seen))
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 1)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending cannot skip straight to shipped
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusShipped, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending->shipped: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusProcessing, ""); err != nil {
		t.Fatalf("pending->processing: %v", err)
	}
	shipped, err := f.service.UpdateStatus(ctx, ord.ID, StatusShipped, "TRACK-123")
	if err != nil {
		t.Fatalf("processing->shipped: %v", err)
	}
	if shipped.TrackingNumber != "TRACK-123" {
		t.Errorf("expected tracking number persisted, got %q", shipped.TrackingNumber)
	}
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusDelivered, ""); err != nil {
		t.Fatalf("shipped->delivered: %v", err)
	}
	// delivered is terminal
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusProcessing, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("delivered->processing: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, ord.ID, Status("unknown"), ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown status: expected ErrInvalidTransition, got %v", err)
	}

	want := []string{
		"confirmation:" + ord.Number,
		"shipping:" + ord.Number,
		"delivery:" + ord.Number,
	}
	if !reflect.DeepEqual(f.rec.Sent, want) {
		t.Errorf("expected notifications %v, got %v", want, f.rec.Sent)
	}
}

func TestCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 3)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if avail, _ := f.ledger.Available(ctx, stock.ForProduct(1)); avail != 2 {
		t.Fatalf("expected 2 after reservation, got %d", avail)
	}

	cancelled, err := f.service.Cancel(ctx, ord.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if avail, _ := f.ledger.Available(ctx, stock.ForProduct(1)); avail != 5 {
		t.Errorf("expected stock restored to 5, got %d", avail)
	}

	if _, err := f.service.Cancel(ctx, ord.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("second cancel: expected ErrAlreadyCancelled, got %v", err)
	}
	if avail, _ := f.ledger.Available(ctx, stock.ForProduct(1)); avail != 5 {
		t.Errorf("stock restored twice, got %d", avail)
	}
}

func TestCancelAfterShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 1)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusProcessing, ""); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, ord.ID, StatusShipped, "T1"); err != nil {
		t.Fatalf("to shipped: %v", err)
	}
	if _, err := f.service.Cancel(ctx, ord.ID); !errors.Is(err, ErrAlreadyShippedOrDelivered) {
		t.Errorf("expected ErrAlreadyShippedOrDelivered, got %v", err)
	}
}

func TestCancelWindowExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 1)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.service.now = func() time.Time { return ord.CreatedAt.Add(CancellationWindow + time.Minute) }
	if _, err := f.service.Cancel(ctx, ord.ID); !errors.Is(err, ErrCancellationWindowExpired) {
		t.Errorf("expected ErrCancellationWindowExpired, got %v", err)
	}
}

func TestMarkPaidMovesPendingToProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.cartSvc.AddLine(ctx, cart.ForUser(7), 1, 0, 1)
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	ord, err := f.service.Create(ctx, CreateInput{UserID: 7, CartID: line.CartID, Shipping: testAddress(), PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	paid, err := f.service.MarkPaid(ctx, ord.Number, paidAt)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != StatusProcessing {
		t.Errorf("expected processing after payment, got %s", paid.Status)
	}
	if paid.PaidAt == nil || !paid.PaidAt.Equal(paidAt) {
		t.Errorf("expected paidAt %v, got %v", paidAt, paid.PaidAt)
	}

	if _, err := f.service.MarkPaid(ctx, "ORD-2099-000001", paidAt); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown number: expected ErrNotFound, got %v", err)
	}
}
