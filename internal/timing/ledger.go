package timing

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// entry is the per-query bookkeeping record: the hosting node id, the
// stopwatch anchor, phase durations in the order they were first
// recorded, and opaque downstream blobs attached on merge.
type entry struct {
	nodeID     string
	anchor     time.Time
	phaseOrder []string
	phases     map[string]float64
	downstream []string
}

// Ledger is a single mutex-guarded map of query id -> entry. One
// Ledger instance is scoped to a single node, matching spec.md's
// "per-node-scoped" requirement.
type Ledger struct {
	mu    sync.Mutex
	byID  map[string]*entry
	clock func() time.Time
}

// New builds an empty ledger.
func New() *Ledger {
	return &Ledger{byID: make(map[string]*entry), clock: time.Now}
}

// Start anchors the stopwatch for queryID to now and records the
// hosting node id. Calling Start again for the same id overwrites the
// anchor and node id, discarding any phases already recorded.
func (l *Ledger) Start(queryID, nodeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[queryID] = &entry{
		nodeID: nodeID,
		anchor: l.clock(),
		phases: make(map[string]float64),
	}
}

// End records seconds elapsed since Start's anchor for phase. If
// Start was never called for queryID, End is a no-op: there is
// nothing to anchor against.
func (l *Ledger) End(queryID, phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[queryID]
	if !ok {
		return
	}
	elapsed := l.clock().Sub(e.anchor).Seconds()
	if _, seen := e.phases[phase]; !seen {
		e.phaseOrder = append(e.phaseOrder, phase)
	}
	e.phases[phase] = elapsed
}

// AttachDownstream appends an opaque serialized ledger blob received
// from a peer's response, to be rendered verbatim by Serialize.
func (l *Ledger) AttachDownstream(queryID, blob string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[queryID]
	if !ok {
		return
	}
	e.downstream = append(e.downstream, blob)
}

// Serialize renders the human-readable timing block for queryID:
//
//	  [Process <node_id>]
//	    <phase>: <seconds> seconds
//	  ...
//	<downstream blobs, verbatim>
//
// An unknown queryID renders as an empty string.
func (l *Ledger) Serialize(queryID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[queryID]
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [Process %s]\n", e.nodeID)
	for _, phase := range e.phaseOrder {
		fmt.Fprintf(&b, "    %-20s: %.6f seconds\n", phase, e.phases[phase])
	}
	for _, blob := range e.downstream {
		b.WriteString(blob)
	}
	return b.String()
}

// Clear drops all bookkeeping for queryID.
func (l *Ledger) Clear(queryID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, queryID)
}
