package cart

import (
	"context"
	"database/sql"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cartColumns = `cart_id, COALESCE(user_id, 0), COALESCE(session_key, '')`

func (r *PostgresRepository) GetOrCreate(ctx context.Context, id Identity) (Cart, error) {
	if !id.Valid() {
		return Cart{}, ErrNoIdentity
	}
	c, err := r.Find(ctx, id)
	if err == nil {
		return c, nil
	}
	if err != ErrNotFound {
		return Cart{}, err
	}

	var userID sql.NullInt64
	var sessionKey sql.NullString
	if id.UserID > 0 {
		userID = sql.NullInt64{Int64: int64(id.UserID), Valid: true}
	} else {
		sessionKey = sql.NullString{String: id.SessionKey, Valid: true}
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO carts (user_id, session_key) VALUES ($1, $2) RETURNING `+cartColumns,
		userID, sessionKey).Scan(&c.ID, &c.UserID, &c.SessionKey)
	if err != nil {
		return Cart{}, err
	}
	c.Lines = []Line{}
	return c, nil
}

func (r *PostgresRepository) Find(ctx context.Context, id Identity) (Cart, error) {
	if !id.Valid() {
		return Cart{}, ErrNoIdentity
	}
	var c Cart
	var err error
	if id.UserID > 0 {
		err = r.db.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, id.UserID).
			Scan(&c.ID, &c.UserID, &c.SessionKey)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts WHERE session_key = $1`, id.SessionKey).
			Scan(&c.ID, &c.UserID, &c.SessionKey)
	}
	if err == sql.ErrNoRows {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, err
	}
	if c.Lines, err = r.linesFor(ctx, c.ID); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, cartID int) (Cart, error) {
	var c Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE cart_id = $1`, cartID).
		Scan(&c.ID, &c.UserID, &c.SessionKey)
	if err == sql.ErrNoRows {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, err
	}
	if c.Lines, err = r.linesFor(ctx, cartID); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func (r *PostgresRepository) GetLine(ctx context.Context, lineID int) (Line, error) {
	var l Line
	err := r.db.QueryRowContext(ctx,
		`SELECT line_id, cart_id, product_id, variant_id, quantity FROM cart_lines WHERE line_id = $1`,
		lineID).Scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.Quantity)
	if err == sql.ErrNoRows {
		return Line{}, ErrLineNotFound
	}
	if err != nil {
		return Line{}, err
	}
	return l, nil
}

func (r *PostgresRepository) FindLine(ctx context.Context, cartID, productID, variantID int) (Line, error) {
	var l Line
	err := r.db.QueryRowContext(ctx,
		`SELECT line_id, cart_id, product_id, variant_id, quantity FROM cart_lines
		 WHERE cart_id = $1 AND product_id = $2 AND variant_id = $3`,
		cartID, productID, variantID).Scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.Quantity)
	if err == sql.ErrNoRows {
		return Line{}, ErrLineNotFound
	}
	if err != nil {
		return Line{}, err
	}
	return l, nil
}

func (r *PostgresRepository) InsertLine(ctx context.Context, line Line) (Line, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cart_lines (cart_id, product_id, variant_id, quantity)
		 VALUES ($1, $2, $3, $4) RETURNING line_id`,
		line.CartID, line.ProductID, line.VariantID, line.Quantity).Scan(&line.ID)
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

func (r *PostgresRepository) UpdateLineQuantity(ctx context.Context, lineID, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = $2 WHERE line_id = $1`, lineID, quantity)
	if err != nil {
		return err
	}
	return lineAffected(res)
}

func (r *PostgresRepository) ReassignLine(ctx context.Context, lineID, toCartID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_lines SET cart_id = $2 WHERE line_id = $1`, lineID, toCartID)
	if err != nil {
		return err
	}
	return lineAffected(res)
}

func (r *PostgresRepository) DeleteLine(ctx context.Context, lineID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE line_id = $1`, lineID)
	if err != nil {
		return err
	}
	return lineAffected(res)
}

func (r *PostgresRepository) Clear(ctx context.Context, cartID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	return err
}

func (r *PostgresRepository) Delete(ctx context.Context, cartID int) error {
	if err := r.Clear(ctx, cartID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE cart_id = $1`, cartID)
	return err
}

func (r *PostgresRepository) linesFor(ctx context.Context, cartID int) ([]Line, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT line_id, cart_id, product_id, variant_id, quantity FROM cart_lines
		 WHERE cart_id = $1 ORDER BY line_id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func lineAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}
