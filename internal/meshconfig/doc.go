// Package meshconfig loads and validates the overlay topology config
// described in spec.md §6: a JSON document naming each process's
// listen address, data subset, and outbound forwarding edges. Loading
// is fatal on failure (spec.md §7): the caller's main is expected to
// log and exit(1), not retry.
package meshconfig
