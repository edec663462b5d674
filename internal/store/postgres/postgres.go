// Package postgres implements store.Store on top of a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/estoque-service/internal/model"
	"github.com/fairyhunter13/estoque-service/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (price >= 0),
	quantity    BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_name_idx ON products (name);
`

const selectColumns = `id, name, description, price::text, quantity`

// querier is the subset of pgxpool.Pool used by Store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists products in the products table.
type Store struct {
	db querier
}

var _ store.Store = (*Store)(nil)

func New(db querier) *Store {
	return &Store{db: db}
}

// Connect opens a pool and verifies it with a ping bounded by timeout.
func Connect(ctx context.Context, url string, timeout time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate products: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (model.Product, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return model.Product{}, fmt.Errorf("find product id %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) FindByName(ctx context.Context, name string) (model.Product, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM products WHERE name=$1 ORDER BY id LIMIT 1`, name)
	p, err := scanProduct(row)
	if err != nil {
		return model.Product{}, fmt.Errorf("find product name %q: %w", name, err)
	}
	return p, nil
}

func (s *Store) Save(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == 0 {
		err := s.db.QueryRow(ctx,
			`INSERT INTO products(name, description, price, quantity) VALUES($1, $2, $3::text::numeric, $4) RETURNING id`,
			p.Name, p.Description, p.Price.String(), p.Quantity,
		).Scan(&p.ID)
		if err != nil {
			return model.Product{}, fmt.Errorf("insert product %q: %w", p.Name, classify(err))
		}
		return p, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE products SET name=$2, description=$3, price=$4::text::numeric, quantity=$5, updated_at=now() WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Quantity,
	)
	if err != nil {
		return model.Product{}, fmt.Errorf("update product id %d: %w", p.ID, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return model.Product{}, fmt.Errorf("update product id %d: %w", p.ID, model.ErrNotFound)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p     model.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, model.ErrNotFound
		}
		return model.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}

// classify joins CHECK constraint failures (negative quantity or price) with
// model.ErrInvalidQuantity so callers can tell them from outages.
func classify(err error) error {
	if isCheckViolation(err) {
		return errors.Join(model.ErrInvalidQuantity, err)
	}
	return err
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
