package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/paywall/pkg/checkout"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

func (s *Store) CheckIdempotency(ctx context.Context, key, userID string, now time.Time) (string, bool, error) {
	var orderID string
	err := s.pool.QueryRow(ctx, `
		SELECT order_id FROM checkout_idempotency_keys
		WHERE key = $1 AND user_id = $2 AND expires_at > $3`, key, userID, now).Scan(&orderID)
	if pg.IsNotFoundError(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pgstore: check idempotency: %w", err)
	}
	return orderID, true, nil
}

// RecordIdempotency only replaces a row that has already expired.
func (s *Store) RecordIdempotency(ctx context.Context, rec checkout.IdempotencyRecord) error {
	_, err := recordIdempotency(ctx, s.pool, rec)
	return err
}

// recordIdempotency reports whether rec was written. It is false when a
// live row already holds the key.
func recordIdempotency(ctx context.Context, db execer, rec checkout.IdempotencyRecord) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO checkout_idempotency_keys (key, user_id, order_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET user_id = EXCLUDED.user_id, order_id = EXCLUDED.order_id,
			created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE checkout_idempotency_keys.expires_at <= EXCLUDED.created_at`,
		rec.Key, rec.UserID, rec.OrderID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("pgstore: record idempotency: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkout_idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pgstore: purge idempotency: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) FindActivePayment(ctx context.Context, userID, productID string, now time.Time) (*checkout.ActivePayment, error) {
	p := checkout.ActivePayment{UserID: userID, ProductID: productID}
	err := s.pool.QueryRow(ctx, `
		SELECT idempotency_key, session_url, created_at, expires_at
		FROM checkout_active_payments
		WHERE user_id = $1 AND product_id = $2 AND expires_at > $3`, userID, productID, now,
	).Scan(&p.IdempotencyKey, &p.SessionURL, &p.CreatedAt, &p.ExpiresAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: find active payment: %w", err)
	}
	return &p, nil
}

func (s *Store) PutActivePayment(ctx context.Context, p checkout.ActivePayment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_active_payments (user_id, product_id, idempotency_key, session_url, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET idempotency_key = EXCLUDED.idempotency_key, session_url = EXCLUDED.session_url,
			created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		p.UserID, p.ProductID, p.IdempotencyKey, p.SessionURL, p.CreatedAt, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pgstore: put active payment: %w", err)
	}
	return nil
}

func (s *Store) RemoveActivePayment(ctx context.Context, userID, productID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkout_active_payments WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("pgstore: remove active payment: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredActivePayments(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkout_active_payments WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pgstore: purge active payments: %w", err)
	}
	return tag.RowsAffected(), nil
}
