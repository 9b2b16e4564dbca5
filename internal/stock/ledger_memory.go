package stock

import (
	"context"
	"sync"
)

// InMemoryLedger is used for tests and local scenarios. A single mutex
// serializes reservations the way row locks do in Postgres.
type InMemoryLedger struct {
	mu    sync.Mutex
	units map[SKURef]int
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{units: make(map[SKURef]int)}
}

// Set seeds the counter for a SKU.
func (l *InMemoryLedger) Set(ref SKURef, quantity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.units[ref] = quantity
}

func (l *InMemoryLedger) Available(ctx context.Context, ref SKURef) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.units[ref], nil
}

func (l *InMemoryLedger) CheckAvailability(ctx context.Context, ref SKURef, quantity int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.units[ref] >= quantity, nil
}

func (l *InMemoryLedger) Reserve(ctx context.Context, ref SKURef, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	avail := l.units[ref]
	if avail < quantity {
		return &InsufficientStockError{SKU: ref, Available: avail, Requested: quantity}
	}
	l.units[ref] = avail - quantity
	return nil
}

func (l *InMemoryLedger) Restore(ctx context.Context, ref SKURef, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.units[ref] += quantity
	return nil
}
