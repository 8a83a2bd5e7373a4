package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/crashmesh/internal/forwardqueue"
	"github.com/dreamware/crashmesh/internal/localstore"
	"github.com/dreamware/crashmesh/internal/meshconfig"
	"github.com/dreamware/crashmesh/internal/meshdata"
	"github.com/dreamware/crashmesh/internal/resultcache"
	"github.com/dreamware/crashmesh/internal/rpc"
	"github.com/dreamware/crashmesh/internal/timing"
)

// forwardableVerbs is F from spec.md §4.5's ForwardDecision phase.
// get_by_borough is deliberately absent: it is never forwarded,
// decided earlier in LocalEval via borough ownership.
var forwardableVerbs = map[string]bool{
	"get_by_street":               true,
	"get_by_key":                  true,
	"get_by_prefix":               true,
	"get_by_date_range":           true,
	"get_crashes_with_injuries":   true,
	"get_crashes_with_fatalities": true,
	"get_by_time":                 true,
}

// PeerStub is the subset of rpc.Stub the engine depends on, so tests
// can supply lightweight fakes without standing up real HTTP servers.
type PeerStub interface {
	Query(ctx context.Context, q meshdata.Query) (meshdata.QueryResult, error)
	Send(ctx context.Context, src, dst string, data []byte) error
	IsConnected() bool
}

// Engine is NodeEngine (spec.md §4.5): the per-node request state
// machine tying together LocalStore, ResultCache, TimingLedger, and
// the peer stubs reached over RpcAdapter.
type Engine struct {
	nodeID   string
	config   meshconfig.NodeConfig
	store    *localstore.LocalStore
	cache    resultcache.Cache
	ledger   *timing.Ledger
	log      *zap.SugaredLogger
	metrics  *Metrics
	cacheTTL time.Duration
	isPortal bool

	peersMu sync.RWMutex
	peers   map[string]PeerStub

	queue *forwardqueue.Queue
}

// New builds an engine for a single node. cacheTTL is the CacheStore
// phase's ttl_ms, 5 seconds per spec.md §4.5 unless overridden.
func New(cfg meshconfig.NodeConfig, store *localstore.LocalStore, cache resultcache.Cache,
	ledger *timing.Ledger, metrics *Metrics, log *zap.SugaredLogger, cacheTTL time.Duration) *Engine {

	e := &Engine{
		nodeID:   cfg.NodeID,
		config:   cfg,
		store:    store,
		cache:    cache,
		ledger:   ledger,
		log:      log,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		isPortal: cfg.IsPortal(),
		peers:    make(map[string]PeerStub),
	}

	if e.isPortal {
		e.queue = forwardqueue.New(256, e.resolvePeerSend, log)
	}
	return e
}

// NodeStatuses reports the current connectivity of every configured
// peer, backing the portal's /mesh/nodes introspection route.
func (e *Engine) NodeStatuses() []rpc.NodeStatus {
	e.peersMu.RLock()
	defer e.peersMu.RUnlock()

	out := make([]rpc.NodeStatus, 0, len(e.config.Outbound))
	for _, id := range e.config.Outbound {
		s, ok := e.peers[id]
		out = append(out, rpc.NodeStatus{NodeID: id, Connected: ok && s.IsConnected()})
	}
	return out
}

// AddPeer registers a stub for an outbound edge. Safe to call
// concurrently with query handling.
func (e *Engine) AddPeer(id string, stub PeerStub) {
	e.peersMu.Lock()
	defer e.peersMu.Unlock()
	e.peers[id] = stub
}

func (e *Engine) peer(id string) (PeerStub, bool) {
	e.peersMu.RLock()
	defer e.peersMu.RUnlock()
	s, ok := e.peers[id]
	return s, ok
}

// connectedPeers snapshots the currently-connected peer set, so the
// fan-out loop never holds peersMu across an RPC.
func (e *Engine) connectedPeers() map[string]PeerStub {
	e.peersMu.RLock()
	defer e.peersMu.RUnlock()
	out := make(map[string]PeerStub, len(e.peers))
	for id, s := range e.peers {
		if s.IsConnected() {
			out[id] = s
		}
	}
	return out
}

// DialPeers probes each outbound edge in the background, making up to
// 5 attempts with exponential backoff. Failed dials are logged, never
// fatal (spec.md §4.5/§7). A peer is registered only once a dial
// succeeds; a peer whose 5 attempts all fail is never registered and
// is not dialed again, so it takes no part in fan-out for the rest of
// the process's life.
func (e *Engine) DialPeers(ctx context.Context, dial func(ctx context.Context, peerID string) (PeerStub, string, error)) {
	for _, peerID := range e.config.Outbound {
		peerID := peerID
		go func() {
			op := func() (PeerStub, error) {
				stub, addr, err := dial(ctx, peerID)
				if err != nil {
					e.log.Warnw("dial peer failed, will retry", "peer", peerID, "error", err)
					return nil, err
				}
				e.log.Infow("dialed peer", "peer", peerID, "addr", addr)
				return stub, nil
			}

			stub, err := backoff.Retry(ctx, op,
				backoff.WithBackOff(backoff.NewExponentialBackOff()),
				backoff.WithMaxTries(5))
			if err != nil {
				e.log.Warnw("giving up on peer dial; peer stays unregistered", "peer", peerID, "error", err)
				return
			}
			e.AddPeer(peerID, stub)
		}()
	}
}

// resolvePeerSend adapts the peer map into the resolver shape
// forwardqueue.Queue expects.
func (e *Engine) resolvePeerSend(dst string) (func(context.Context, string, string, []byte) error, bool, bool) {
	stub, ok := e.peer(dst)
	if !ok {
		return nil, false, false
	}
	return stub.Send, stub.IsConnected(), true
}

// cacheKey builds the cross-node-identical cache key for (verb,
// params), per spec.md §4.5's CacheKey phase.
func cacheKey(q meshdata.Query) string {
	var b strings.Builder
	b.WriteString("query_")
	b.WriteString(q.Verb)
	for _, p := range q.Params {
		b.WriteString("_")
		b.WriteString(p)
	}
	return b.String()
}

// HandleQuery is the full per-query state machine described in
// spec.md §4.5.
func (e *Engine) HandleQuery(ctx context.Context, q meshdata.Query) meshdata.QueryResult {
	e.ledger.Start(q.ID, e.nodeID)
	defer e.ledger.Clear(q.ID)

	if e.metrics != nil {
		e.metrics.QueriesTotal.WithLabelValues(q.Verb).Inc()
	}

	key := cacheKey(q)

	if hit, ok := e.lookupCache(ctx, q, key); ok {
		return hit
	}

	local := e.localEval(q)
	e.ledger.End(q.ID, "Local_Processing")

	if !local.Success {
		local.TimingBlob = e.ledger.Serialize(q.ID)
		return local
	}

	merged := local
	peerCount := 0

	if e.shouldForward(q.Verb) {
		if e.metrics != nil {
			e.metrics.ForwardedTotal.Inc()
		}
		peerResults := e.fanOut(ctx, q)
		e.ledger.End(q.ID, "Downstream_Queries")

		for _, pr := range peerResults {
			merged.Entries = append(merged.Entries, pr.Entries...)
			if pr.TimingBlob != "" {
				e.ledger.AttachDownstream(q.ID, pr.TimingBlob)
			}
		}
		peerCount = len(peerResults)
	}

	merged.Message = fmt.Sprintf("Combined results from Process %s and %d downstream processes", e.nodeID, peerCount)
	merged.Success = true

	if ctx.Err() != nil {
		return meshdata.Failure(q.ID, "request cancelled")
	}

	e.storeCache(ctx, q, key, merged)

	e.ledger.End(q.ID, "Total_Processing")
	merged.TimingBlob = e.ledger.Serialize(q.ID)
	return merged
}

// lookupCache implements CacheLookup. The bool return distinguishes
// "this is a full response, return it" from "continue to LocalEval".
func (e *Engine) lookupCache(ctx context.Context, q meshdata.Query, key string) (meshdata.QueryResult, bool) {
	payload, err := e.cache.Get(ctx, key)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CacheMisses.Inc()
		}
		return meshdata.QueryResult{}, false
	}

	if e.metrics != nil {
		e.metrics.CacheHits.Inc()
	}

	var entries []meshdata.DataEntry
	if e.isPortal {
		decoded, decErr := resultcache.DeserializePortal(payload)
		if decErr != nil {
			e.log.Warnw("cache payload corrupt, treating as miss", "key", key, "error", decErr)
			return meshdata.QueryResult{}, false
		}
		entries = decoded.Entries
	} else {
		entries = resultcache.DeserializeEntries(payload)
	}

	e.ledger.End(q.ID, "Cache_Access")
	e.ledger.End(q.ID, "Total_Processing")

	result := meshdata.QueryResult{
		QueryID: q.ID,
		Success: true,
		Message: "From cache",
		Entries: entries,
	}
	result.TimingBlob = e.ledger.Serialize(q.ID)
	return result, true
}

// localEval implements LocalEval, including the get_by_borough
// ownership special-case from spec.md §4.5: when this node is not
// authoritative for the requested borough, it contributes nothing and
// is never forwarded for that verb.
func (e *Engine) localEval(q meshdata.Query) meshdata.QueryResult {
	if q.Verb == "get_by_borough" {
		requested := ""
		if len(q.Params) > 0 {
			requested = q.Params[0]
		}
		if !e.config.OwnsBorough(requested) {
			return meshdata.QueryResult{QueryID: q.ID, Success: true}
		}
	}
	return e.store.Evaluate(q)
}

// shouldForward implements ForwardDecision.
func (e *Engine) shouldForward(verb string) bool {
	if verb == "get_all" {
		return true
	}
	return forwardableVerbs[verb]
}

// fanOut implements FanOut: concurrent queries to every connected
// peer, merged in completion order (non-deterministic, per spec.md
// §5). Peer failures are swallowed; a cancelled ctx best-effort
// cancels in-flight peer calls.
func (e *Engine) fanOut(ctx context.Context, q meshdata.Query) []meshdata.QueryResult {
	peers := e.connectedPeers()
	if len(peers) == 0 {
		return nil
	}

	type arrival struct {
		result meshdata.QueryResult
		ok     bool
	}
	out := make(chan arrival, len(peers))

	group, gctx := errgroup.WithContext(ctx)
	for peerID, stub := range peers {
		peerID, stub := peerID, stub
		group.Go(func() error {
			result, err := stub.Query(gctx, q)
			if err != nil {
				e.log.Warnw("peer query failed, contributing nothing", "peer", peerID, "error", err)
				out <- arrival{ok: false}
				return nil // swallowed: partial success still yields an overall success
			}
			e.ledger.End(q.ID, "Query_To_"+peerID)
			out <- arrival{result: result, ok: true}
			return nil
		})
	}
	_ = group.Wait()
	close(out)

	results := make([]meshdata.QueryResult, 0, len(peers))
	for a := range out {
		if a.ok {
			results = append(results, a.result)
		}
	}
	return results
}

// storeCache implements CacheStore.
func (e *Engine) storeCache(ctx context.Context, q meshdata.Query, key string, result meshdata.QueryResult) {
	var payload []byte
	if e.isPortal {
		payload = resultcache.SerializePortal(result)
	} else {
		payload = resultcache.SerializeEntries(result.Entries)
	}

	if err := e.cache.Put(ctx, key, payload, e.cacheTTL); err != nil {
		e.log.Warnw("cache put failed, serving response uncached", "key", key, "error", err)
	}
}

// HandleData implements the inbound data(src, dst, bytes) dispatch
// from spec.md §4.5, including the portal's detour through
// ForwardingQueue.
func (e *Engine) HandleData(ctx context.Context, src, dst string, data []byte) {
	if dst == e.nodeID {
		preview := data
		if len(preview) > 16 {
			preview = preview[:16]
		}
		e.log.Infow("received data message", "src", src, "preview_hex", hex.EncodeToString(preview))
		return
	}

	if e.isPortal {
		e.queue.Enqueue(src, dst, data)
		return
	}

	stub, ok := e.peer(dst)
	if !ok || !stub.IsConnected() {
		e.log.Warnw("cannot forward data message, unknown or disconnected peer", "dst", dst)
		return
	}
	if err := stub.Send(ctx, src, dst, data); err != nil {
		e.log.Warnw("forwarding data message failed", "dst", dst, "error", err)
	}
}

// StartForwarding starts the portal's ForwardingQueue worker. No-op on
// non-portal nodes.
func (e *Engine) StartForwarding() {
	if e.queue != nil {
		go e.queue.Run()
	}
}

// StopForwarding stops the portal's ForwardingQueue worker. No-op on
// non-portal nodes.
func (e *Engine) StopForwarding() {
	if e.queue != nil {
		e.queue.Stop()
	}
}

// DefaultHTTPDialer probes a peer's /health endpoint and, on success,
// returns an rpc.HTTPStub wrapping it. It satisfies the dial func
// signature DialPeers expects.
func DefaultHTTPDialer(cfg meshconfig.NodeConfig) func(ctx context.Context, peerID string) (PeerStub, string, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(ctx context.Context, peerID string) (PeerStub, string, error) {
		addr, err := cfg.PeerAddr(peerID)
		if err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, "", fmt.Errorf("peer %s unhealthy: http %d", peerID, resp.StatusCode)
		}

		return rpc.NewHTTPStub(peerID, addr), addr, nil
	}
}
