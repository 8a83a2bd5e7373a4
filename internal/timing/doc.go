// Package timing implements the per-query, per-node phase stopwatch
// described in spec.md §4.3. Every End call measures elapsed time
// since the query's Start anchor, not since a matching prior call —
// phases are elapsed-since-query-began, not non-overlapping intervals.
// This is intentional (spec.md §9) and must not be "fixed".
package timing
