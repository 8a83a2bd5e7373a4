package localstore

import (
	"errors"
	"sync"
	"time"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

// ErrKeyNotFound mirrors the teacher's storage.ErrKeyNotFound sentinel
// for the single-entry Get path.
var ErrKeyNotFound = errors.New("localstore: key not found")

// LocalStore is the in-memory, read-mostly row store a single node
// owns. Its key->DataEntry mapping is single-owner: one mutex guards
// both reads and writes, held only long enough to copy in or out,
// never across an RPC (spec.md §5).
type LocalStore struct {
	mu      sync.RWMutex
	entries map[string]meshdata.DataEntry
	clock   func() time.Time
}

// New builds an empty store.
func New() *LocalStore {
	return &LocalStore{
		entries: make(map[string]meshdata.DataEntry),
		clock:   time.Now,
	}
}

// Store upserts entry by key, stamping Timestamp if the caller left it
// zero. Last writer wins, per spec.md §3's CrashRecord/DataEntry
// lifecycle.
func (s *LocalStore) Store(entry meshdata.DataEntry) {
	if entry.Timestamp == 0 {
		entry.Timestamp = s.clock().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
}

// Get returns the entry for key, or ErrKeyNotFound.
func (s *LocalStore) Get(key string) (meshdata.DataEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return meshdata.DataEntry{}, ErrKeyNotFound
	}
	return entry, nil
}

// Remove deletes key, reporting whether it was present.
func (s *LocalStore) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Len reports the number of entries currently stored.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// snapshot returns a shallow copy of all entries, taken under the read
// lock, so verb evaluators never run while holding the store's lock.
func (s *LocalStore) snapshot() []meshdata.DataEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]meshdata.DataEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Evaluate answers a query over the current state. It is pure: it
// never forwards to peers and never mutates the store.
func (s *LocalStore) Evaluate(q meshdata.Query) meshdata.QueryResult {
	all := s.snapshot()

	eval, ok := verbTable[q.Verb]
	if !ok {
		return meshdata.Failure(q.ID, "Unknown query: "+q.Verb)
	}
	return eval(q, all)
}
