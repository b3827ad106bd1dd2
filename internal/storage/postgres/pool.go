// Package postgres implements the domain repositories on PostgreSQL.
//
// Catalog reads only ever see rows whose lifecycle is active, and every
// timestamp written is checked to be UTC.
package postgres

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery-orders/db"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
	"github.com/xenking/food-delivery-orders/internal/domain/lifecycle"
)

// NewPool creates a pgxpool.Pool with shopspring/decimal support for
// NUMERIC columns and a session time zone of UTC.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// active is the predicate shared by every catalog read.
func active(table string) string {
	return table + ".lifecycle = '" + string(lifecycle.Active) + "'"
}

// requireLifecycle rejects states the lifecycle CHECK constraints would.
func requireLifecycle(entity string, s lifecycle.State) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %s has unknown lifecycle %q", fault.ErrValidation, entity, s)
	}
	return nil
}

// requireUTC rejects timestamps that are not expressed in UTC.
func requireUTC(field string, t time.Time) error {
	if t.IsZero() || t.Location() != time.UTC {
		return fmt.Errorf("%s must be a UTC timestamp, got %s", field, t)
	}
	return nil
}
