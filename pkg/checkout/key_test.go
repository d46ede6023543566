package checkout_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

func TestBucketWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{0, time.Minute},
		{time.Second, time.Minute},
		{60 * time.Second, time.Minute},
		{61 * time.Second, 2 * time.Minute},
		{5 * time.Minute, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, checkout.BucketWidth(tt.timeout), "timeout %s", tt.timeout)
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()
	bucket := time.Minute
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("same bucket yields same key", func(t *testing.T) {
		t.Parallel()
		a := checkout.DeriveKey("u1", "pro", base.Add(5*time.Second), bucket)
		b := checkout.DeriveKey("u1", "pro", base.Add(59*time.Second), bucket)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("next bucket yields new key", func(t *testing.T) {
		t.Parallel()
		a := checkout.DeriveKey("u1", "pro", base.Add(59*time.Second), bucket)
		b := checkout.DeriveKey("u1", "pro", base.Add(61*time.Second), bucket)
		assert.NotEqual(t, a, b)
	})

	t.Run("user and product are part of the key", func(t *testing.T) {
		t.Parallel()
		k := checkout.DeriveKey("u1", "pro", base, bucket)
		assert.NotEqual(t, k, checkout.DeriveKey("u2", "pro", base, bucket))
		assert.NotEqual(t, k, checkout.DeriveKey("u1", "team", base, bucket))
	})

	t.Run("separator prevents concatenation collisions", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t,
			checkout.DeriveKey("ab", "c", base, bucket),
			checkout.DeriveKey("a", "bc", base, bucket),
		)
		assert.NotEqual(t,
			checkout.DeriveKey("a|b", "c", base, bucket),
			checkout.DeriveKey("a", "b|c", base, bucket),
		)
	})
}

func TestClientKey(t *testing.T) {
	t.Parallel()
	k := checkout.ClientKey("u1", "retry-1")
	assert.Len(t, k, 64)
	assert.Equal(t, k, checkout.ClientKey("u1", "retry-1"))
	assert.NotEqual(t, k, checkout.ClientKey("u2", "retry-1"))
	assert.NotEqual(t, checkout.ClientKey("u1|a", "b"), checkout.ClientKey("u1", "a|b"))
}

func TestPairKey(t *testing.T) {
	t.Parallel()
	k := checkout.PairKey("u1", "pro")
	assert.Len(t, k, 64)
	assert.Equal(t, k, checkout.PairKey("u1", "pro"))
	assert.NotEqual(t, k, checkout.PairKey("u1", "team"))

	// Ids containing separator characters must not alias another pair.
	assert.NotEqual(t, checkout.PairKey("u}:x", "pro"), checkout.PairKey("u", "x}:pro"))
	assert.NotEqual(t, checkout.PairKey("a|b", "c"), checkout.PairKey("a", "b|c"))
	assert.NotEqual(t, checkout.PairKey("ab", "c"), checkout.PairKey("a", "bc"))
}
