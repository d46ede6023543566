// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool with retry, Migrate applies goose
// migrations from an embedded filesystem, Healthcheck adapts the pool to a
// readiness probe and WithTx wraps a function in a transaction.
//
// Error helpers such as IsDuplicateKeyError and IsNotFoundError classify
// errors returned by pgx so callers can branch on them without importing
// pgconn.
package pg
