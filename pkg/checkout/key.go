package checkout

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"
)

// BucketWidth returns the idempotency time bucket for an active-payment
// timeout: the timeout rounded up to whole minutes, at least one minute.
func BucketWidth(timeout time.Duration) time.Duration {
	minutes := (timeout + time.Minute - 1) / time.Minute
	if minutes < 1 {
		minutes = 1
	}
	return minutes * time.Minute
}

// DeriveKey maps (user, product, time bucket) to a hex sha256 key.
// Calls in the same bucket return the same key. A call just after a bucket
// boundary derives a new key even if the previous checkout is still open.
func DeriveKey(userID, productID string, now time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	slot := now.UnixNano() / int64(bucket)
	return digest(userID, productID, strconv.FormatInt(slot, 10))
}

// ClientKey scopes a caller supplied Idempotency-Key to the user and
// normalizes it to a fixed length.
func ClientKey(userID, key string) string {
	return digest(userID, key)
}

// PairKey identifies a (user, product) pair as a fixed length hex string
// safe to embed in storage keys whatever the ids contain.
func PairKey(userID, productID string) string {
	return digest("pair", userID, productID)
}

// digest hashes length-prefixed fields, so no two field lists share an
// encoding.
func digest(fields ...string) string {
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, f := range fields {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(f)))])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
