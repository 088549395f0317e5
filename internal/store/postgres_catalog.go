package store

import (
	"context"
	"fmt"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresCatalog gives the logical catalog schema from section 6 a literal
// SQL expression, for environments that set DATABASE_URL; it satisfies the
// same Catalog interface as the Redis-backed implementation.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

const createCatalogTableSQL = `
CREATE TABLE IF NOT EXISTS subscription_catalog (
	merchant_name  TEXT NOT NULL,
	product_name   TEXT NOT NULL,
	amount_minor   BIGINT NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'GBP',
	recurrence     TEXT NOT NULL DEFAULT 'Monthly',
	category       TEXT,
	verified       BOOLEAN NOT NULL DEFAULT false,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS subscription_catalog_key
	ON subscription_catalog (lower(merchant_name), lower(product_name), amount_minor)`

// NewPostgresCatalog connects to databaseURL and ensures the catalog table
// exists.
func NewPostgresCatalog(ctx context.Context, databaseURL string) (*PostgresCatalog, error) {
	pool, err := pgxpool.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createCatalogTableSQL); err != nil {
		return nil, fmt.Errorf("ensure catalog table: %w", err)
	}
	return &PostgresCatalog{pool: pool}, nil
}

func (p *PostgresCatalog) Lookup(ctx context.Context, merchantSubstring string, amountMinor int64, tolerance int64) ([]models.SubscriptionCatalogEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT merchant_name, product_name, amount_minor, currency, recurrence, category, verified, confidence, created_at, updated_at
		FROM subscription_catalog
		WHERE lower(merchant_name) LIKE '%' || lower($1) || '%'
		  AND abs(amount_minor - $2) <= $3
		ORDER BY verified DESC, abs(amount_minor - $2) ASC
	`, merchantSubstring, amountMinor, tolerance)
	if err != nil {
		return nil, fmt.Errorf("lookup catalog: %w", err)
	}
	defer rows.Close()

	var out []models.SubscriptionCatalogEntry
	for rows.Next() {
		var e models.SubscriptionCatalogEntry
		if err := rows.Scan(&e.Merchant, &e.Product, &e.AmountMinor, &e.Currency, &e.Recurrence, &e.Category, &e.Verified, &e.Confidence, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresCatalog) Upsert(ctx context.Context, entry models.SubscriptionCatalogEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO subscription_catalog
			(merchant_name, product_name, amount_minor, currency, recurrence, category, verified, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lower(merchant_name), lower(product_name), amount_minor) DO UPDATE SET
			currency = EXCLUDED.currency,
			recurrence = EXCLUDED.recurrence,
			category = EXCLUDED.category,
			verified = EXCLUDED.verified,
			confidence = EXCLUDED.confidence,
			updated_at = now()
	`, entry.Merchant, entry.Product, entry.AmountMinor, entry.Currency, entry.Recurrence, entry.Category, entry.Verified, entry.Confidence)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

func (p *PostgresCatalog) Close() {
	p.pool.Close()
}
