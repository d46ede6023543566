// Package pgstore implements the checkout stores on PostgreSQL.
//
// Every table uses a unique key as its concurrency guard: the lock and
// ledger tables are written with INSERT ... ON CONFLICT so only one writer
// wins, and orders carry a version column for optimistic updates.
package pgstore

import (
	"context"
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the checkout schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

// Store implements every checkout store interface.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pool. The schema must be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Stores returns s wired into every slot.
func (s *Store) Stores() checkout.Stores {
	return checkout.Stores{Orders: s, Ledger: s, Payments: s, Locks: s, Events: s}
}

var (
	_ checkout.OrderStore           = (*Store)(nil)
	_ checkout.IdempotencyLedger    = (*Store)(nil)
	_ checkout.ActivePaymentTracker = (*Store)(nil)
	_ checkout.LockManager          = (*Store)(nil)
	_ checkout.LockPurger           = (*Store)(nil)
	_ checkout.EventLedger          = (*Store)(nil)
)
