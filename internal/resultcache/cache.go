package resultcache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist or its entry
// has expired. Expired entries are not guaranteed to be evicted
// immediately (spec.md allows lazy eviction on next write), so Get is
// the only place freshness is judged.
var ErrMiss = errors.New("resultcache: miss")

// ErrCapacityExceeded is returned by Put when writing the entry would
// exceed the region's configured capacity. The existing image is left
// untouched: spec.md §4.1 requires a rejected Put to never corrupt a
// previously-valid entry.
var ErrCapacityExceeded = errors.New("resultcache: capacity exceeded")

// CacheRecord is the logical shape of one stored entry, independent of
// the backing substrate (Redis key or in-process map value).
type CacheRecord struct {
	Payload    []byte
	InsertedAt time.Time
	TTL        time.Duration // zero means "no expiry"
}

// Fresh reports whether the record should still be served given now.
func (r CacheRecord) Fresh(now time.Time) bool {
	if r.TTL == 0 {
		return true
	}
	return now.Sub(r.InsertedAt) <= r.TTL
}

// Cache is the ResultCache contract from spec.md §4.1. All four
// operations are mutually exclusive at the implementation level; the
// duration a lock is held must be bounded by the cost of serializing
// the current call's payload, never by an external RPC.
type Cache interface {
	// Get returns the payload for key iff it exists and is fresh,
	// otherwise ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites any existing entry for key. ttl == 0 means no
	// expiry. Returns ErrCapacityExceeded if the region is full and
	// key is not already present.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// Remove drops the entry for key, if any.
	Remove(ctx context.Context, key string) error
	// Clear drops every entry in the region.
	Clear(ctx context.Context) error
}
