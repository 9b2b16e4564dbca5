package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/cart"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
)

// ErrDuplicateNumber reports an order-number collision on insert; the
// workflow retries with the next sequence.
var ErrDuplicateNumber = errors.New("order number already taken")

// Reservation is one stock decrement to perform while creating an order.
type Reservation struct {
	SKU      stock.SKURef
	Quantity int
}

// Repository persists orders. Create and CancelAndRestore are the two
// atomicity boundaries of the system: everything inside them commits or
// rolls back as a unit.
type Repository interface {
	// Create reserves stock for every reservation, persists the order and
	// its line snapshots and clears the source cart, all in one atomic
	// step. Any reservation failure aborts the whole operation with no
	// durable effect.
	Create(ctx context.Context, ord Order, reservations []Reservation, cartID int) (Order, error)

	Get(ctx context.Context, id int) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	ListByUser(ctx context.Context, userID int) ([]Order, error)
	CountForYear(ctx context.Context, year int) (int, error)

	// UpdateStatus applies a state-machine transition atomically,
	// persisting the tracking number only when moving into shipped.
	UpdateStatus(ctx context.Context, id int, next Status, trackingNumber string) (Order, error)

	// MarkPaid records the payment timestamp.
	MarkPaid(ctx context.Context, id int, at time.Time) (Order, error)

	// CancelAndRestore flips the order to cancelled and restores stock for
	// every line in the same atomic step, re-checking the current status
	// under lock so a second cancel cannot double-restore.
	CancelAndRestore(ctx context.Context, id int) (Order, error)
}

// InMemoryRepository is used for tests and local scenarios. It shares the
// in-memory ledger and cart repository so creation and cancellation touch
// the same counters the rest of the system sees.
type InMemoryRepository struct {
	mu         sync.Mutex
	orders     map[int]Order
	numbers    map[string]bool
	nextID     int
	nextLineID int
	ledger     *stock.InMemoryLedger
	carts      *cart.InMemoryRepository
}

func NewInMemoryRepository(ledger *stock.InMemoryLedger, carts *cart.InMemoryRepository) *InMemoryRepository {
	return &InMemoryRepository{
		orders:  make(map[int]Order),
		numbers: make(map[string]bool),
		nextID:  1,
		ledger:  ledger,
		carts:   carts,
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, ord Order, reservations []Reservation, cartID int) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.numbers[ord.Number] {
		return Order{}, ErrDuplicateNumber
	}

	// reserve in order; compensate already-taken reservations on failure so
	// a partial attempt leaves no trace, mirroring a transaction rollback
	for i, res := range reservations {
		if err := r.ledger.Reserve(ctx, res.SKU, res.Quantity); err != nil {
			for j := 0; j < i; j++ {
				_ = r.ledger.Restore(ctx, reservations[j].SKU, reservations[j].Quantity)
			}
			return Order{}, err
		}
	}

	ord.ID = r.nextID
	r.nextID++
	for i := range ord.Lines {
		ord.Lines[i].ID = r.nextLineID
		ord.Lines[i].OrderID = ord.ID
		r.nextLineID++
	}
	r.orders[ord.ID] = ord
	r.numbers[ord.Number] = true

	if err := r.carts.Clear(ctx, cartID); err != nil && err != cart.ErrNotFound {
		// undo everything; the order must not become visible
		for _, res := range reservations {
			_ = r.ledger.Restore(ctx, res.SKU, res.Quantity)
		}
		delete(r.orders, ord.ID)
		delete(r.numbers, ord.Number)
		return Order{}, err
	}
	return ord, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id int) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ord, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func (r *InMemoryRepository) GetByNumber(ctx context.Context, number string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ord := range r.orders {
		if ord.Number == number {
			return ord, nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Order, 0)
	for _, ord := range r.orders {
		if ord.UserID == userID {
			out = append(out, ord)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) CountForYear(ctx context.Context, year int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ord := range r.orders {
		if ord.CreatedAt.Year() == year {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id int, next Status, trackingNumber string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ord, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !ord.Status.CanTransitionTo(next) {
		return Order{}, ErrInvalidTransition
	}
	ord.Status = next
	if next == StatusShipped {
		ord.TrackingNumber = trackingNumber
	}
	r.orders[id] = ord
	return ord, nil
}

func (r *InMemoryRepository) MarkPaid(ctx context.Context, id int, at time.Time) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ord, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	ord.PaidAt = &at
	r.orders[id] = ord
	return ord, nil
}

func (r *InMemoryRepository) CancelAndRestore(ctx context.Context, id int) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ord, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	switch ord.Status {
	case StatusCancelled:
		return Order{}, ErrAlreadyCancelled
	case StatusShipped, StatusDelivered:
		return Order{}, ErrAlreadyShippedOrDelivered
	}
	ord.Status = StatusCancelled
	r.orders[id] = ord
	for _, l := range ord.Lines {
		_ = r.ledger.Restore(ctx, l.SKU(), l.Quantity)
	}
	return ord, nil
}
