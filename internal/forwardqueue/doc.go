// Package forwardqueue implements ForwardingQueue (spec.md §4.6): a
// bounded FIFO of non-query data messages, drained by a single worker
// so the portal's inbound RPC goroutines are never blocked on a slow
// downstream send.
package forwardqueue
