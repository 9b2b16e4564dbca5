package catalog

import (
	"context"
	"sync"
)

// Store provides read access to the catalog. The checkout core never writes
// product records.
type Store interface {
	Product(ctx context.Context, id int) (Product, error)
	Variant(ctx context.Context, id int) (Variant, error)
	List(ctx context.Context) ([]Product, error)
}

// InMemoryStore is used for tests and local scenarios.
type InMemoryStore struct {
	mu       sync.RWMutex
	products map[int]Product
	variants map[int]Variant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		products: make(map[int]Product),
		variants: make(map[int]Variant),
	}
}

func (s *InMemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *InMemoryStore) PutVariant(v Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

func (s *InMemoryStore) Product(ctx context.Context, id int) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) Variant(ctx context.Context, id int) (Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[id]
	if !ok {
		return Variant{}, ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}
