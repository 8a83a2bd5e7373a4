// Package resultcache implements the TTL-bounded, keyed store of
// serialized QueryResults described in spec.md §4.1. The Cache
// interface has two implementations behind an identical API: a
// Redis-backed implementation that plays the role of the "named
// memory region shared across co-located nodes", and an in-process
// map used both as the fallback when Redis is unavailable (spec.md's
// "degrades to an equivalent in-process-only map") and directly in
// tests. Freshness is judged from time.Time's monotonic clock reading,
// so wall-clock adjustments never invalidate an entry early or late.
package resultcache
