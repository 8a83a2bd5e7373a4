package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/crashmesh/internal/meshdata"
)

// QueryHandler answers one inbound query. net/http already dispatches
// each request on its own goroutine, which is what satisfies spec.md
// §4.4's "each inbound unary call on its own logical task" requirement
// without any extra bookkeeping here.
type QueryHandler func(ctx context.Context, q meshdata.Query) meshdata.QueryResult

// DataHandler processes one inbound fire-and-forget data message.
type DataHandler func(ctx context.Context, src, dst string, data []byte)

// NodeStatus is one row of the /mesh/nodes introspection response: a
// configured overlay edge and its last-observed connectivity.
type NodeStatus struct {
	NodeID      string `json:"node_id"`
	Connected   bool   `json:"connected"`
}

// NodesHandler reports the current connectivity of every configured
// peer. Registered only on the portal, mirroring the teacher's
// coordinator-only /nodes admin endpoint.
type NodesHandler func() []NodeStatus

// Server is the inbound half of RpcAdapter: an HTTP server routed
// through chi, exposing the unary query/data endpoints and the
// server-streamed query endpoint from spec.md §6, plus liveness and
// metrics for operational visibility (supplemented features, §4 of
// SPEC_FULL.md).
type Server struct {
	httpSrv  *http.Server
	router   *chi.Mux
	onQuery  QueryHandler
	onData   DataHandler
	onNodes  NodesHandler
	running  atomic.Bool
	log      *zap.SugaredLogger
}

// NewServer builds a server bound to addr. Handlers must be
// registered with OnQuery/OnData before Start.
func NewServer(addr string, log *zap.SugaredLogger) *Server {
	s := &Server{log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc/query", s.handleQuery)
	r.Post("/rpc/data", s.handleData)
	r.Post("/rpc/stream", s.handleStream)
	r.Get("/mesh/nodes", s.handleNodes)

	s.router = r
	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// OnQuery registers the handler used for every inbound unary query.
func (s *Server) OnQuery(h QueryHandler) { s.onQuery = h }

// OnData registers the handler used for every inbound data message.
func (s *Server) OnData(h DataHandler) { s.onData = h }

// OnNodes registers the handler backing /mesh/nodes. Leave unset on
// non-portal nodes: the route then answers 404.
func (s *Server) OnNodes(h NodesHandler) { s.onNodes = h }

// Start binds the listen address and begins serving in the
// background. A bind failure is returned to the caller. Call Stop for
// graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", s.httpSrv.Addr, err)
	}
	s.running.Store(true)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("rpc server stopped unexpectedly", "addr", ln.Addr().String(), "error", err)
		}
		s.running.Store(false)
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)
	return s.httpSrv.Shutdown(ctx)
}

// IsRunning reports whether the server is currently accepting
// connections.
func (s *Server) IsRunning() bool { return s.running.Load() }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	if s.onNodes == nil {
		http.Error(w, "not a portal node", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.onNodes())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	q := meshdata.Query{ID: req.QueryID, Verb: req.QueryString, Params: req.Parameters}
	result := s.onQuery(r.Context(), q)

	resp := queryResponse{
		QueryID:    result.QueryID,
		Success:    result.Success,
		Message:    result.Message,
		Results:    toWireEntries(result.Entries),
		TimingData: result.TimingBlob,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	var msg dataMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if s.onData != nil {
		s.onData(r.Context(), msg.Source, msg.Destination, msg.Data)
	}
	w.WriteHeader(http.StatusOK)
}

// handleStream answers a query and streams its entries back one chunk
// per entry, newline-delimited JSON, terminated by an is_last chunk.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	q := meshdata.Query{ID: req.QueryID, Verb: req.QueryString, Params: req.Parameters}
	result := s.onQuery(r.Context(), q)

	flusher, _ := w.(http.Flusher)
	entries := toWireEntries(result.Entries)

	if len(entries) == 0 {
		writeChunk(w, dataChunk{ChunkID: 0, IsLast: true})
		return
	}

	for i, e := range entries {
		payload, _ := json.Marshal(e)
		writeChunk(w, dataChunk{ChunkID: i, Data: payload, IsLast: i == len(entries)-1})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeChunk(w http.ResponseWriter, c dataChunk) {
	b := marshal(c)
	w.Write(b)
	w.Write([]byte("\n"))
}
