package catalog

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Product(ctx context.Context, id int) (Product, error) {
	var p Product
	var price string
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, product_name, product_price, is_active FROM products WHERE product_id = $1`,
		id).Scan(&p.ID, &p.Name, &price, &p.IsActive)
	if err == sql.ErrNoRows {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) Variant(ctx context.Context, id int) (Variant, error) {
	var v Variant
	var adj string
	err := s.db.QueryRowContext(ctx,
		`SELECT variant_id, product_id, variant_name, price_adjustment, is_available
		 FROM product_variants WHERE variant_id = $1`,
		id).Scan(&v.ID, &v.ProductID, &v.Name, &adj, &v.IsAvailable)
	if err == sql.ErrNoRows {
		return Variant{}, ErrNotFound
	}
	if err != nil {
		return Variant{}, err
	}
	v.PriceAdjustment, err = decimal.NewFromString(adj)
	if err != nil {
		return Variant{}, err
	}
	return v, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, product_name, product_price, is_active FROM products ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		var p Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.IsActive); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
