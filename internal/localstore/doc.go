// Package localstore owns a node's subset of crash records and
// evaluates the closed set of query verbs defined in spec.md §4.2.
// LocalStore.Evaluate is pure: it never forwards, and the special
// borough-ownership routing rule lives in internal/engine, not here —
// this package only implements "does this record match the verb's
// filter", the same separation the teacher keeps between its storage
// interface and the shard/coordinator layers that decide routing.
package localstore
