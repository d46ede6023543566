package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

const orderColumns = `id, user_id, status, plan, product_id, amount, currency, customer_email, checkout_url,
	COALESCE(provider_session_id, ''), COALESCE(provider_subscription_id, ''), COALESCE(provider_customer_id, ''),
	version, created_at, updated_at, expires_at`

func scanOrder(row pgx.Row) (*checkout.Order, error) {
	var o checkout.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Plan, &o.ProductID, &o.Amount, &o.Currency, &o.CustomerEmail, &o.CheckoutURL,
		&o.ProviderSessionID, &o.ProviderSubscriptionID, &o.ProviderCustomerID,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOrder(ctx context.Context, db execer, o *checkout.Order) error {
	_, err := db.Exec(ctx, `
		INSERT INTO checkout_orders (id, user_id, status, plan, product_id, amount, currency, customer_email,
			checkout_url, provider_session_id, provider_subscription_id, provider_customer_id,
			version, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), 1, $13, $14, $15)`,
		o.ID, o.UserID, o.Status, o.Plan, o.ProductID, o.Amount, o.Currency, o.CustomerEmail,
		o.CheckoutURL, o.ProviderSessionID, o.ProviderSubscriptionID, o.ProviderCustomerID,
		o.CreatedAt, o.UpdatedAt, o.ExpiresAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return checkout.ErrOrderConflict
		}
		return fmt.Errorf("pgstore: create order: %w", err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *checkout.Order) error {
	if err := insertOrder(ctx, s.pool, o); err != nil {
		return err
	}
	o.Version = 1
	return nil
}

// createTxAttempts bounds retries of a serializable transaction that lost a
// conflict with a concurrent writer.
const createTxAttempts = 3

// CreateOrderWithKey inserts the order and its idempotency row in one
// serializable transaction, so an order never exists without its key.
func (s *Store) CreateOrderWithKey(ctx context.Context, o *checkout.Order, rec checkout.IdempotencyRecord) error {
	var err error
	for range createTxAttempts {
		err = pg.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if err := insertOrder(ctx, tx, o); err != nil {
				return err
			}
			recorded, err := recordIdempotency(ctx, tx, rec)
			if err != nil {
				return err
			}
			if !recorded {
				return checkout.ErrKeyTaken
			}
			return nil
		})
		if !pg.IsSerializationError(err) {
			break
		}
	}
	if err != nil {
		return err
	}
	o.Version = 1
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*checkout.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM checkout_orders WHERE id = $1`, id))
}

func (s *Store) FindOrderBySubscription(ctx context.Context, subscriptionID string) (*checkout.Order, error) {
	if subscriptionID == "" {
		return nil, checkout.ErrOrderNotFound
	}
	return scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM checkout_orders
		WHERE provider_subscription_id = $1
		ORDER BY created_at DESC LIMIT 1`, subscriptionID))
}

func (s *Store) FindOrderBySession(ctx context.Context, sessionID string) (*checkout.Order, error) {
	if sessionID == "" {
		return nil, checkout.ErrOrderNotFound
	}
	return scanOrder(s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM checkout_orders
		WHERE provider_session_id = $1
		ORDER BY created_at DESC LIMIT 1`, sessionID))
}

func (s *Store) AttachSession(ctx context.Context, orderID, sessionID, checkoutURL string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE checkout_orders
		SET provider_session_id = $2, checkout_url = $3, updated_at = $4, version = version + 1
		WHERE id = $1`, orderID, sessionID, checkoutURL, at)
	if err != nil {
		return fmt.Errorf("pgstore: attach session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *checkout.Order) error {
	var version int64
	err := s.pool.QueryRow(ctx, `
		UPDATE checkout_orders
		SET status = $3,
			provider_subscription_id = NULLIF($4, ''),
			provider_customer_id = NULLIF($5, ''),
			expires_at = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`,
		o.ID, o.Version, o.Status, o.ProviderSubscriptionID, o.ProviderCustomerID, o.ExpiresAt, o.UpdatedAt,
	).Scan(&version)
	if err == nil {
		o.Version = version
		return nil
	}
	if !pg.IsNotFoundError(err) {
		return fmt.Errorf("pgstore: update order: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM checkout_orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("pgstore: update order: %w", err)
	}
	if !exists {
		return checkout.ErrOrderNotFound
	}
	return checkout.ErrOrderConflict
}

func (s *Store) ListLapsedOrders(ctx context.Context, now time.Time, limit int) ([]*checkout.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM checkout_orders
		WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list lapsed orders: %w", err)
	}
	defer rows.Close()

	var out []*checkout.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: list lapsed orders: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
