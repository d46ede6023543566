package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

// TryAcquire inserts the lock row or takes over an expired one. The unique
// key on (user_id, product_id) makes the insert the mutex.
func (s *Store) TryAcquire(ctx context.Context, l checkout.Lock) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_locks (user_id, product_id, request_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET request_id = EXCLUDED.request_id, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE checkout_locks.expires_at <= EXCLUDED.created_at`,
		l.UserID, l.ProductID, l.RequestID, l.CreatedAt, l.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("pgstore: acquire lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Release(ctx context.Context, userID, productID, requestID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM checkout_locks
		WHERE user_id = $1 AND product_id = $2 AND request_id = $3`, userID, productID, requestID)
	if err != nil {
		return fmt.Errorf("pgstore: release lock: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkout_locks WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pgstore: purge locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
