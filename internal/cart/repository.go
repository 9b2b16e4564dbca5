package cart

import (
	"context"
	"sync"
)

// Repository provides storage for carts and their lines. Business rules
// (quantity bounds, availability, stock) live in the Service; repositories
// only persist.
type Repository interface {
	GetOrCreate(ctx context.Context, id Identity) (Cart, error)
	// Find returns the cart for an identity or ErrNotFound without creating.
	Find(ctx context.Context, id Identity) (Cart, error)
	Get(ctx context.Context, cartID int) (Cart, error)

	GetLine(ctx context.Context, lineID int) (Line, error)
	// FindLine locates the unique line for (cart, product, variant) or
	// returns ErrLineNotFound.
	FindLine(ctx context.Context, cartID, productID, variantID int) (Line, error)
	InsertLine(ctx context.Context, line Line) (Line, error)
	UpdateLineQuantity(ctx context.Context, lineID, quantity int) error
	ReassignLine(ctx context.Context, lineID, toCartID int) error
	DeleteLine(ctx context.Context, lineID int) error

	Clear(ctx context.Context, cartID int) error
	Delete(ctx context.Context, cartID int) error
}

// InMemoryRepository is used for tests and local scenarios.
type InMemoryRepository struct {
	mu         sync.Mutex
	carts      map[int]Cart
	lines      map[int]Line
	nextCartID int
	nextLineID int
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		carts:      make(map[int]Cart),
		lines:      make(map[int]Line),
		nextCartID: 1,
		nextLineID: 1,
	}
}

func (r *InMemoryRepository) GetOrCreate(ctx context.Context, id Identity) (Cart, error) {
	if !id.Valid() {
		return Cart{}, ErrNoIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.findLocked(id); ok {
		return r.withLinesLocked(c), nil
	}
	c := Cart{ID: r.nextCartID, UserID: id.UserID, SessionKey: id.SessionKey, Lines: []Line{}}
	r.nextCartID++
	r.carts[c.ID] = c
	return c, nil
}

func (r *InMemoryRepository) Find(ctx context.Context, id Identity) (Cart, error) {
	if !id.Valid() {
		return Cart{}, ErrNoIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.findLocked(id); ok {
		return r.withLinesLocked(c), nil
	}
	return Cart{}, ErrNotFound
}

func (r *InMemoryRepository) Get(ctx context.Context, cartID int) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return Cart{}, ErrNotFound
	}
	return r.withLinesLocked(c), nil
}

func (r *InMemoryRepository) GetLine(ctx context.Context, lineID int) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[lineID]
	if !ok {
		return Line{}, ErrLineNotFound
	}
	return l, nil
}

func (r *InMemoryRepository) FindLine(ctx context.Context, cartID, productID, variantID int) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l.CartID == cartID && l.ProductID == productID && l.VariantID == variantID {
			return l, nil
		}
	}
	return Line{}, ErrLineNotFound
}

func (r *InMemoryRepository) InsertLine(ctx context.Context, line Line) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[line.CartID]; !ok {
		return Line{}, ErrNotFound
	}
	line.ID = r.nextLineID
	r.nextLineID++
	r.lines[line.ID] = line
	return line, nil
}

func (r *InMemoryRepository) UpdateLineQuantity(ctx context.Context, lineID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	l.Quantity = quantity
	r.lines[lineID] = l
	return nil
}

func (r *InMemoryRepository) ReassignLine(ctx context.Context, lineID, toCartID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	if _, ok := r.carts[toCartID]; !ok {
		return ErrNotFound
	}
	l.CartID = toCartID
	r.lines[lineID] = l
	return nil
}

func (r *InMemoryRepository) DeleteLine(ctx context.Context, lineID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[lineID]; !ok {
		return ErrLineNotFound
	}
	delete(r.lines, lineID)
	return nil
}

func (r *InMemoryRepository) Clear(ctx context.Context, cartID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[cartID]; !ok {
		return ErrNotFound
	}
	r.deleteLinesLocked(cartID)
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, cartID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[cartID]; !ok {
		return ErrNotFound
	}
	r.deleteLinesLocked(cartID)
	delete(r.carts, cartID)
	return nil
}

func (r *InMemoryRepository) deleteLinesLocked(cartID int) {
	for id, l := range r.lines {
		if l.CartID == cartID {
			delete(r.lines, id)
		}
	}
}

func (r *InMemoryRepository) findLocked(id Identity) (Cart, bool) {
	for _, c := range r.carts {
		if id.UserID > 0 && c.UserID == id.UserID {
			return c, true
		}
		if id.SessionKey != "" && c.SessionKey == id.SessionKey {
			return c, true
		}
	}
	return Cart{}, false
}

func (r *InMemoryRepository) withLinesLocked(c Cart) Cart {
	c.Lines = []Line{}
	for _, l := range r.lines {
		if l.CartID == c.ID {
			c.Lines = append(c.Lines, l)
		}
	}
	return c
}
