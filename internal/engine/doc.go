// Package engine implements NodeEngine, the per-node request-handling
// state machine from spec.md §4.5: cache lookup, local evaluation,
// fan-out, merge, cache store, response assembly. This is the core of
// crashmesh; every other package is a collaborator NodeEngine wires
// together.
package engine
