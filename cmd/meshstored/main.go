// Command meshstored hosts one meshstore replica: an LWW-Map of
// Documents, its Merkle anti-entropy trie, the index/query/live-query/
// adaptive-indexing layers, and the HTTP+gRPC surface a peer or client
// talks to.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/swarmguard/meshstore/internal/adaptive"
	"github.com/swarmguard/meshstore/internal/clock"
	"github.com/swarmguard/meshstore/internal/config"
	"github.com/swarmguard/meshstore/internal/crdt/lww"
	"github.com/swarmguard/meshstore/internal/index"
	"github.com/swarmguard/meshstore/internal/livequery"
	"github.com/swarmguard/meshstore/internal/merkle"
	"github.com/swarmguard/meshstore/internal/obs/hostlog"
	"github.com/swarmguard/meshstore/internal/obs/logging"
	"github.com/swarmguard/meshstore/internal/obs/otelinit"
	"github.com/swarmguard/meshstore/internal/obs/resilience"
	"github.com/swarmguard/meshstore/internal/query"
)

const serviceName = "meshstored"

// indexOpFor maps a predicate operator onto the index-capability
// vocabulary the adaptive tracker and autoindex manager key their stats
// on, mirroring query.leafToIndexQuery's mapping. Operators with no
// index-capability equivalent (neq, like, regex, match*) report ok=false
// since they're served by scan-and-filter rather than an index lookup.
func indexOpFor(op query.Op) (index.Op, bool) {
	switch op {
	case query.OpEq:
		return index.OpEqual, true
	case query.OpIn:
		return index.OpIn, true
	case query.OpGT:
		return index.OpGT, true
	case query.OpGTE:
		return index.OpGTE, true
	case query.OpLT:
		return index.OpLT, true
	case query.OpLTE:
		return index.OpLTE, true
	case query.OpBetween:
		return index.OpBetween, true
	case query.OpContains:
		return index.OpContains, true
	case query.OpContainsAll:
		return index.OpContainsAll, true
	case query.OpContainsAny:
		return index.OpContainsAny, true
	default:
		return "", false
	}
}

// Node bundles one replica's full CRDT/index/query/live-query/adaptive
// stack along with the host-level peer table and transport clients.
type Node struct {
	cfg    config.Config
	logger *slog.Logger

	clock *clock.Clock
	store *lww.Map[string, Document]
	trie  *merkle.Trie[string]

	registry *index.Registry[string, Document]
	planner  *query.Planner[string, Document]
	liveMgr  *livequery.Manager[string, Document]

	tracker *adaptive.QueryPatternTracker
	autoIdx *adaptive.AutoIndexManager[string, Document]

	peers      *PeerTable
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker

	instruments otelinit.CoreInstruments
}

func newNode(cfg config.Config, logger *slog.Logger, instruments otelinit.CoreInstruments) *Node {
	hlc := clock.New(cfg.NodeID)
	store := lww.New[string, Document](hlc)
	trie := merkle.AttachToLWWMap(store, documentKeyString, documentValueString)

	registry := index.NewRegistry[string, Document]()
	extractors := query.Extractors[Document](documentExtractors())
	universe := func() []string {
		entries := store.Entries()
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		return keys
	}
	planner := query.NewPlanner[string, Document](registry, store.Get, universe, extractors)
	liveMgr := livequery.NewManager[string, Document](planner, extractors, logger, func(a, b Document) bool { return a == b })

	tracker := adaptive.NewQueryPatternTracker(
		adaptive.WithMaxTrackedPatterns(cfg.MaxTrackedPatterns),
		adaptive.WithStatsTTL(cfg.StatsTTL),
	)
	registeredAttrs := make([]adaptive.RegisteredAttribute[string, Document], 0, len(extractors))
	for name, ex := range extractors {
		registeredAttrs = append(registeredAttrs, adaptive.RegisteredAttribute[string, Document]{Name: name, Extractor: ex})
	}
	autoIdx := adaptive.NewAutoIndexManager[string, Document](tracker, registry, registeredAttrs,
		func(attr, kind string) { logger.Info("auto-created index", "attribute", attr, "kind", kind) },
		adaptive.WithThreshold(cfg.AutoIndexThreshold),
		adaptive.WithMaxIndexes(cfg.MaxIndexes),
	)

	n := &Node{
		cfg:      cfg,
		logger:   logger,
		clock:    hlc,
		store:    store,
		trie:     trie,
		registry: registry,
		planner:  planner,
		liveMgr:  liveMgr,
		tracker:  tracker,
		autoIdx:  autoIdx,
		peers:    NewPeerTable(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewCircuitBreaker(30*time.Second, 6, 4, 0.5, 15*time.Second, 2),
		instruments: instruments,
	}

	store.AddListener(n.onStoreChange)
	return n
}

// onStoreChange fans a raw LWW-Map mutation out to the index registry
// and the live-query manager, classifying it as an add, an update, or a
// removal from the before/after tombstone state.
func (n *Node) onStoreChange(key string, old *lww.Record[Document], new lww.Record[Document]) {
	switch {
	case new.IsTombstone():
		if old != nil && !old.IsTombstone() {
			n.registry.OnRemove(key, *old.Value)
			n.liveMgr.OnRecordRemoved(key, *old.Value)
		}
	case old == nil || old.IsTombstone():
		n.registry.OnAdd(key, *new.Value)
		n.liveMgr.OnRecordAdded(key, *new.Value)
	default:
		n.registry.OnUpdate(key, *old.Value, *new.Value)
		n.liveMgr.OnRecordUpdated(key, *old.Value, *new.Value)
	}
}

func main() {
	logger := logging.Init(serviceName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, serviceName)
	shutdownMetrics, instruments := otelinit.InitMetrics(ctx, serviceName)

	cfg := config.Load()
	node := newNode(cfg, logger, instruments)

	mux := http.NewServeMux()
	node.registerSyncHandlers(mux)
	node.registerAPIHandlers(mux)

	grpcServer := grpc.NewServer()
	// TODO: register the sync gRPC service once its wire schema is
	// settled; the listener is already up so peers can dial ahead of that.
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("grpc listen failed", "error", err)
		return
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve error", "error", err)
			cancel()
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("meshstored started", "node_id", cfg.NodeID, "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	go node.startAntiEntropy(ctx)

	<-ctx.Done()
	logger.Info("shutdown initiated")

	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	otelinit.Flush(shutdownCtx, shutdownTrace)
	_ = shutdownMetrics(shutdownCtx)
	logger.Info("shutdown complete")
}

// registerAPIHandlers exposes the client-facing surface: peer
// management, document writes, ad-hoc predicate queries, live-query
// subscriptions over SSE, and adaptive-index suggestions.
func (n *Node) registerAPIHandlers(mux *http.ServeMux) {
	errSink := hostlog.Default(n.logger)

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "node_id": n.cfg.NodeID})
	})

	mux.HandleFunc("/peers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req struct{ ID, Address string }
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
				return
			}
			n.peers.Add(req.ID, req.Address)
			writeJSON(w, http.StatusCreated, map[string]string{"status": "peer added"})
		case http.MethodGet:
			writeJSON(w, http.StatusOK, n.peers.All())
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/documents/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/documents/"):]
		switch r.Method {
		case http.MethodPut:
			var doc Document
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document"})
				return
			}
			doc.ID = key
			if _, err := n.store.Set(key, doc, 0); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
		case http.MethodGet:
			doc, ok := n.store.Get(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodDelete:
			if _, err := n.store.Remove(key); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var pred query.Leaf
		if err := json.NewDecoder(r.Body).Decode(&pred); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid predicate"})
			return
		}
		start := time.Now()
		plan, err := n.planner.Plan(pred)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		keys := plan.Execute()
		n.instruments.QueryPlanCost.Record(r.Context(), float64(time.Since(start).Microseconds())/1000)
		if idxOp, ok := indexOpFor(pred.Op); ok {
			n.tracker.RecordQuery(pred.Attribute, idxOp, float64(time.Since(start).Milliseconds()), keys.Size(), n.hasIndexFor(pred.Attribute), 1)
			n.autoIdx.OnQuery(pred.Attribute, idxOp)
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys.ToArray()})
	})

	mux.HandleFunc("/suggestions", func(w http.ResponseWriter, r *http.Request) {
		suggestions := n.autoIdx.Suggestions(adaptive.Options{})
		n.instruments.IndexSuggestions.Add(r.Context(), int64(len(suggestions)))
		writeJSON(w, http.StatusOK, suggestions)
	})

	mux.HandleFunc("/live-query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var pred query.Leaf
		if err := json.NewDecoder(r.Body).Decode(&pred); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid predicate"})
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		sub, err := n.liveMgr.Subscribe(pred, func(ev livequery.Event[string, Document]) error {
			b, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
		if err != nil {
			errSink("live-query subscribe failed", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		defer sub.Unsubscribe()
		<-r.Context().Done()
	})
}

func (n *Node) hasIndexFor(attr string) bool {
	return len(n.registry.Indexes(attr)) > 0
}
