// Package rpc implements RpcAdapter (spec.md §4.4): a thin wrapper
// over the external transport the rest of crashmesh is written
// against. The concrete transport is HTTP+JSON, matching the wire
// shapes in spec.md §6 (QueryRequest/QueryResponse, DataMessage,
// DataChunk); everything upstream of this package only depends on the
// Stub/Server interfaces, never on net/http directly, so the
// transport stays swappable in spirit with the "opaque channel"
// framing in spec.md §1.
package rpc
