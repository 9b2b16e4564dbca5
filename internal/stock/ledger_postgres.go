package stock

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the ledger can run
// standalone or inside a caller's transaction. Order creation passes its
// transaction here so reservations roll back with everything else.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresLedger struct {
	db DBTX
}

func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Available(ctx context.Context, ref SKURef) (int, error) {
	var qty int
	err := l.db.QueryRowContext(ctx,
		`SELECT quantity FROM stock_units WHERE product_id = $1 AND variant_id = $2`,
		ref.ProductID, ref.VariantID).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (l *PostgresLedger) CheckAvailability(ctx context.Context, ref SKURef, quantity int) (bool, error) {
	avail, err := l.Available(ctx, ref)
	if err != nil {
		return false, err
	}
	return avail >= quantity, nil
}

// Reserve locks the stock row, checks the counter and decrements it in one
// round trip sequence. Two concurrent reservations on the same SKU serialize
// on the row lock, which is what prevents overselling.
func (l *PostgresLedger) Reserve(ctx context.Context, ref SKURef, quantity int) error {
	var avail int
	err := l.db.QueryRowContext(ctx,
		`SELECT quantity FROM stock_units WHERE product_id = $1 AND variant_id = $2 FOR UPDATE`,
		ref.ProductID, ref.VariantID).Scan(&avail)
	if err == sql.ErrNoRows {
		return &InsufficientStockError{SKU: ref, Available: 0, Requested: quantity}
	}
	if err != nil {
		return err
	}
	if avail < quantity {
		return &InsufficientStockError{SKU: ref, Available: avail, Requested: quantity}
	}
	_, err = l.db.ExecContext(ctx,
		`UPDATE stock_units SET quantity = quantity - $3 WHERE product_id = $1 AND variant_id = $2`,
		ref.ProductID, ref.VariantID, quantity)
	return err
}

func (l *PostgresLedger) Restore(ctx context.Context, ref SKURef, quantity int) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stock_units (product_id, variant_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, variant_id) DO UPDATE SET quantity = stock_units.quantity + EXCLUDED.quantity`,
		ref.ProductID, ref.VariantID, quantity)
	return err
}
