package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `order_id, order_number, user_id, status,
	full_name, phone, address_line1, COALESCE(address_line2, ''), city, postal_code, country,
	subtotal, shipping_cost, tax, total,
	payment_method, COALESCE(payment_ref, ''), COALESCE(tracking_number, ''), paid_at, created_at`

// Create runs the whole order-creation sequence in one transaction:
// reservations first (row locks serialize competing orders), then the order
// row, the line snapshots and the cart clear. A failed reservation or a
// duplicate order number rolls everything back.
func (r *PostgresRepository) Create(ctx context.Context, ord Order, reservations []Reservation, cartID int) (Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	ledger := stock.NewPostgresLedger(tx)
	for _, res := range reservations {
		if err := ledger.Reserve(ctx, res.SKU, res.Quantity); err != nil {
			return Order{}, err
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, user_id, status,
			full_name, phone, address_line1, address_line2, city, postal_code, country,
			subtotal, shipping_cost, tax, total, payment_method, payment_ref, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING order_id, created_at`,
		ord.Number, ord.UserID, ord.Status,
		ord.Shipping.FullName, ord.Shipping.Phone, ord.Shipping.Line1, ord.Shipping.Line2,
		ord.Shipping.City, ord.Shipping.PostalCode, ord.Shipping.Country,
		ord.Subtotal, ord.ShippingCost, ord.Tax, ord.Total,
		ord.PaymentMethod, ord.PaymentRef, ord.CreatedAt,
	).Scan(&ord.ID, &ord.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Order{}, ErrDuplicateNumber
		}
		return Order{}, err
	}

	for i := range ord.Lines {
		ord.Lines[i].OrderID = ord.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, variant_id, product_name, variant_name, unit_price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING line_id`,
			ord.ID, ord.Lines[i].ProductID, ord.Lines[i].VariantID,
			ord.Lines[i].ProductName, ord.Lines[i].VariantName,
			ord.Lines[i].UnitPrice, ord.Lines[i].Quantity,
		).Scan(&ord.Lines[i].ID)
		if err != nil {
			return Order{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(); err != nil {
		return Order{}, err
	}
	return ord, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id)
	return r.scanWithLines(ctx, row)
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return r.scanWithLines(ctx, row)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	ids := make([]int, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, ord)
		ids = append(ids, ord.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT line_id, order_id, product_id, variant_id, product_name, COALESCE(variant_name, ''), unit_price, quantity
		FROM order_lines WHERE order_id = ANY($1::int[]) ORDER BY line_id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	byOrder := make(map[int][]Line)
	for lineRows.Next() {
		var l Line
		if err := lineRows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID, &l.ProductName, &l.VariantName, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, err
		}
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = byOrder[orders[i].ID]
	}
	return orders, nil
}

func (r *PostgresRepository) CountForYear(ctx context.Context, year int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE EXTRACT(YEAR FROM created_at) = $1`, year).Scan(&n)
	return n, err
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int, next Status, trackingNumber string) (Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	if !current.CanTransitionTo(next) {
		return Order{}, ErrInvalidTransition
	}

	if next == StatusShipped {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, tracking_number = $3 WHERE order_id = $1`,
			id, next, trackingNumber)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE order_id = $1`, id, next)
	}
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, id int, at time.Time) (Order, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET paid_at = $2 WHERE order_id = $1`, id, at)
	if err != nil {
		return Order{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Order{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// CancelAndRestore re-checks the status under lock so concurrent cancels
// serialize; the status flip and every stock restore commit together.
func (r *PostgresRepository) CancelAndRestore(ctx context.Context, id int) (Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	switch current {
	case StatusCancelled:
		return Order{}, ErrAlreadyCancelled
	case StatusShipped, StatusDelivered:
		return Order{}, ErrAlreadyShippedOrDelivered
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2 WHERE order_id = $1`, id, StatusCancelled); err != nil {
		return Order{}, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, variant_id, quantity FROM order_lines WHERE order_id = $1`, id)
	if err != nil {
		return Order{}, err
	}
	type restore struct {
		productID, variantID, qty int
	}
	var restores []restore
	for rows.Next() {
		var x restore
		if err := rows.Scan(&x.productID, &x.variantID, &x.qty); err != nil {
			rows.Close()
			return Order{}, err
		}
		restores = append(restores, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	ledger := stock.NewPostgresLedger(tx)
	for _, x := range restores {
		ref := stock.ForProduct(x.productID)
		if x.variantID != 0 {
			ref = stock.ForVariant(x.productID, x.variantID)
		}
		if err := ledger.Restore(ctx, ref, x.qty); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var ord Order
	var paidAt sql.NullTime
	err := row.Scan(&ord.ID, &ord.Number, &ord.UserID, &ord.Status,
		&ord.Shipping.FullName, &ord.Shipping.Phone, &ord.Shipping.Line1, &ord.Shipping.Line2,
		&ord.Shipping.City, &ord.Shipping.PostalCode, &ord.Shipping.Country,
		&ord.Subtotal, &ord.ShippingCost, &ord.Tax, &ord.Total,
		&ord.PaymentMethod, &ord.PaymentRef, &ord.TrackingNumber, &paidAt, &ord.CreatedAt)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		ord.PaidAt = &t
	}
	return ord, nil
}

func (r *PostgresRepository) scanWithLines(ctx context.Context, row rowScanner) (Order, error) {
	ord, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT line_id, order_id, product_id, variant_id, product_name, COALESCE(variant_name, ''), unit_price, quantity
		FROM order_lines WHERE order_id = $1 ORDER BY line_id`, ord.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID, &l.ProductName, &l.VariantName, &l.UnitPrice, &l.Quantity); err != nil {
			return Order{}, err
		}
		ord.Lines = append(ord.Lines, l)
	}
	return ord, rows.Err()
}

func lockStatus(ctx context.Context, tx *sql.Tx, id int) (Status, error) {
	var s Status
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE order_id = $1 FOR UPDATE`, id).Scan(&s)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
