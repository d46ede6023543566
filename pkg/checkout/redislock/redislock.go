// Package redislock implements checkout.LockManager on Redis.
//
// A lock is a single key set with SET NX PX holding the request id.
// Release deletes the key only when it still holds the caller's request id,
// so a request whose lock expired cannot free a lock taken over by another.
// Redis expires keys on its own, so the janitor has nothing to purge.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a Redis backed lock manager.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

var _ checkout.LockManager = (*Locker)(nil)

// New creates a Locker. prefix namespaces keys, e.g. "paywall:".
func New(client redis.UniversalClient, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// key hashes the pair so ids containing key separators cannot alias.
func (l *Locker) key(userID, productID string) string {
	return l.prefix + "checkout:lock:" + checkout.PairKey(userID, productID)
}

// TryAcquire sets the lock key if absent with the lock's TTL.
func (l *Locker) TryAcquire(ctx context.Context, lock checkout.Lock) (bool, error) {
	ttl := lock.ExpiresAt.Sub(lock.CreatedAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := l.client.SetNX(ctx, l.key(lock.UserID, lock.ProductID), lock.RequestID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redislock: acquire: %w", err)
	}
	return ok, nil
}

// Release deletes the lock when requestID still holds it.
func (l *Locker) Release(ctx context.Context, userID, productID, requestID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(userID, productID)}, requestID).Err(); err != nil {
		return fmt.Errorf("redislock: release: %w", err)
	}
	return nil
}
