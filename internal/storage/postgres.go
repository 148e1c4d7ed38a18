package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracked_products (
    id            TEXT PRIMARY KEY,
    url           TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    recipient     TEXT NOT NULL DEFAULT '',
    last_checked  TIMESTAMPTZ,
    current_price NUMERIC(12,2),
    currency      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS price_observations (
    seq         BIGSERIAL PRIMARY KEY,
    product_id  TEXT NOT NULL REFERENCES tracked_products(id) ON DELETE CASCADE,
    price       NUMERIC(12,2) NOT NULL,
    currency    TEXT NOT NULL DEFAULT '',
    observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS price_observations_product_observed
    ON price_observations (product_id, observed_at);
`

const productColumns = `id, url, name, recipient, last_checked, current_price::text, currency`

// PostgresStore implements tracking.Store on a pgx connection pool
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to dsn and verifies the connection
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Seed upserts products, leaving their check state untouched
func (s *PostgresStore) Seed(ctx context.Context, products ...tracking.TrackedProduct) error {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
INSERT INTO tracked_products (id, url, name, recipient, currency)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET url = EXCLUDED.url, name = EXCLUDED.name, recipient = EXCLUDED.recipient`,
			p.ID, p.URL, p.Name, p.Recipient, p.Currency)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStaleProducts(ctx context.Context, cutoff time.Time) ([]tracking.TrackedProduct, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+productColumns+`
FROM tracked_products
WHERE last_checked IS NULL OR last_checked < $1
ORDER BY last_checked ASC NULLS FIRST, id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale products: %w", err)
	}
	return collectProducts(rows)
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]tracking.TrackedProduct, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM tracked_products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return collectProducts(rows)
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (tracking.TrackedProduct, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM tracked_products WHERE id = $1`, productID)
	if err != nil {
		return tracking.TrackedProduct{}, fmt.Errorf("failed to get product: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return tracking.TrackedProduct{}, err
	}
	if len(products) == 0 {
		return tracking.TrackedProduct{}, fmt.Errorf("get %s: %w", productID, tracking.ErrNotFound)
	}
	return products[0], nil
}

func (s *PostgresStore) AppendObservation(ctx context.Context, productID string, price decimal.Decimal, currency string, observedAt time.Time) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO price_observations (product_id, price, currency, observed_at)
VALUES ($1, $2::numeric, $3, $4)`,
			productID, price.StringFixed(2), currency, observedAt); err != nil {
			return err
		}
		if currency == "" {
			return nil
		}
		_, err := tx.Exec(ctx, `UPDATE tracked_products SET currency = $2 WHERE id = $1`, productID, currency)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("append observation for %s: %w", productID, tracking.ErrNotFound)
		}
		return fmt.Errorf("failed to append observation for %s: %w", productID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateProductCheck(ctx context.Context, productID string, newPrice *decimal.Decimal, checkedAt time.Time) error {
	var price *string
	if newPrice != nil {
		v := newPrice.StringFixed(2)
		price = &v
	}

	tag, err := s.db.Exec(ctx, `
UPDATE tracked_products
SET last_checked = $2, current_price = COALESCE($3::numeric, current_price)
WHERE id = $1`, productID, checkedAt, price)
	if err != nil {
		return fmt.Errorf("failed to update check for %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update check for %s: %w", productID, tracking.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateProductName(ctx context.Context, productID, name string) error {
	tag, err := s.db.Exec(ctx, `UPDATE tracked_products SET name = $2 WHERE id = $1`, productID, name)
	if err != nil {
		return fmt.Errorf("failed to update name for %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update name for %s: %w", productID, tracking.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, productID string, since time.Time) ([]tracking.PriceObservation, error) {
	rows, err := s.db.Query(ctx, `
SELECT seq, product_id, price::text, currency, observed_at
FROM price_observations
WHERE product_id = $1 AND observed_at >= $2
ORDER BY observed_at, seq`, productID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations for %s: %w", productID, err)
	}
	defer rows.Close()

	var out []tracking.PriceObservation
	for rows.Next() {
		var obs tracking.PriceObservation
		var price string
		if err := rows.Scan(&obs.Seq, &obs.ProductID, &price, &obs.Currency, &obs.ObservedAt); err != nil {
			return nil, err
		}
		if obs.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func collectProducts(rows pgx.Rows) ([]tracking.TrackedProduct, error) {
	defer rows.Close()

	var out []tracking.TrackedProduct
	for rows.Next() {
		var p tracking.TrackedProduct
		var lastChecked *time.Time
		var price *string
		if err := rows.Scan(&p.ID, &p.URL, &p.Name, &p.Recipient, &lastChecked, &price, &p.Currency); err != nil {
			return nil, err
		}
		if lastChecked != nil {
			p.LastChecked = *lastChecked
		}
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("invalid stored price %q: %w", *price, err)
			}
			p.CurrentPrice = &d
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
