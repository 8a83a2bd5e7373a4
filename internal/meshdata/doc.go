// Package meshdata defines the wire-level data model shared by every node
// in the crashmesh overlay: crash records, the tagged DataValue union,
// queries, and query results. The closed verb set each LocalStore
// evaluates is the verbTable in internal/localstore/verbs.go.
package meshdata
