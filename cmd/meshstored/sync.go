package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/swarmguard/meshstore/internal/clock"
	"github.com/swarmguard/meshstore/internal/crdt/lww"
)

// wireRecord is the JSON wire form of an lww.Record[Document] exchanged
// between peers so the receiver can merge it straight into its own
// LWW-Map.
type wireRecord struct {
	Value   *Document `json:"value"`
	Millis  int64     `json:"millis"`
	Counter uint32    `json:"counter"`
	NodeID  string    `json:"nodeId"`
	TTLMs   uint32    `json:"ttlMs"`
	HasTTL  bool      `json:"hasTtl"`
}

func toWire(rec lww.Record[Document]) wireRecord {
	return wireRecord{
		Value:   rec.Value,
		Millis:  rec.Timestamp.Millis,
		Counter: rec.Timestamp.Counter,
		NodeID:  rec.Timestamp.NodeID,
		TTLMs:   rec.TTLMs,
		HasTTL:  rec.HasTTL,
	}
}

func fromWire(w wireRecord) lww.Record[Document] {
	return lww.Record[Document]{
		Value:     w.Value,
		Timestamp: clock.Timestamp{Millis: w.Millis, Counter: w.Counter, NodeID: w.NodeID},
		TTLMs:     w.TTLMs,
		HasTTL:    w.HasTTL,
	}
}

// registerSyncHandlers wires the four anti-entropy endpoints a peer
// walks in turn: root hash, one bucket level, a leaf's entry hashes,
// and full record exchange.
func (n *Node) registerSyncHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/sync/roothash", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]uint32{"rootHash": n.trie.GetRootHash()})
	})

	mux.HandleFunc("/sync/buckets", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		buckets := n.trie.GetBuckets(path)
		out := make(map[string]uint32, len(buckets))
		for c, h := range buckets {
			out[string(c)] = h
		}
		writeJSON(w, http.StatusOK, map[string]any{"buckets": out})
	})

	mux.HandleFunc("/sync/leaf", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		hashes := n.trie.GetEntryHashes(path)
		writeJSON(w, http.StatusOK, map[string]any{"entryHashes": hashes})
	})

	mux.HandleFunc("/sync/records", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Keys []string `json:"keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
			return
		}
		out := make(map[string]wireRecord, len(req.Keys))
		for _, k := range req.Keys {
			rec, ok := n.store.GetRecord(k)
			if !ok {
				continue
			}
			out[k] = toWire(rec)
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": out})
	})

	mux.HandleFunc("/sync/merge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Records map[string]wireRecord `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
			return
		}
		applied := 0
		for k, wr := range req.Records {
			ok, err := n.store.Merge(k, fromWire(wr))
			if err != nil {
				n.logger.Error("merge failed during peer sync", "key", k, "error", err)
				continue
			}
			if ok {
				applied++
			}
		}
		n.instruments.MergeAppliedTotal.Add(r.Context(), int64(applied))
		writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
	})
}

func (n *Node) getJSON(ctx context.Context, peer *Peer, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer.Address+path, nil)
	if err != nil {
		return err
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync: peer %s returned status %d for %s", peer.ID, resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (n *Node) postJSON(ctx context.Context, peer *Peer, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.Address+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("sync: peer %s returned status %d for %s", peer.ID, resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// syncWithPeer runs the four-step anti-entropy protocol against one
// peer, guarded by the host's circuit breaker.
func (n *Node) syncWithPeer(ctx context.Context, peer *Peer) error {
	if !n.breaker.Allow() {
		return fmt.Errorf("sync: circuit open for peer %s", peer.ID)
	}

	err := n.runAntiEntropy(ctx, peer)
	n.breaker.RecordResult(err == nil)
	if err != nil {
		n.peers.handleSyncFailure(peer.ID)
		return err
	}
	n.peers.handleSyncSuccess(peer.ID)
	n.instruments.SyncRoundsTotal.Add(ctx, 1)
	return nil
}

func (n *Node) runAntiEntropy(ctx context.Context, peer *Peer) error {
	var remoteRoot struct {
		RootHash uint32 `json:"rootHash"`
	}
	if err := n.getJSON(ctx, peer, "/sync/roothash", &remoteRoot); err != nil {
		return err
	}
	if remoteRoot.RootHash == n.trie.GetRootHash() {
		return nil
	}
	return n.descendAndSync(ctx, peer, "")
}

func (n *Node) descendAndSync(ctx context.Context, peer *Peer, path string) error {
	if n.trie.IsLeaf(path) {
		return n.syncLeaf(ctx, peer, path)
	}

	var remote struct {
		Buckets map[string]uint32 `json:"buckets"`
	}
	if err := n.getJSON(ctx, peer, "/sync/buckets?path="+path, &remote); err != nil {
		return err
	}
	local := n.trie.GetBuckets(path)

	seen := make(map[string]struct{}, len(local)+len(remote.Buckets))
	for c, lh := range local {
		seen[string(c)] = struct{}{}
		if rh, ok := remote.Buckets[string(c)]; !ok || rh != lh {
			if err := n.descendAndSync(ctx, peer, path+string(c)); err != nil {
				return err
			}
		}
	}
	for c := range remote.Buckets {
		if _, done := seen[c]; done {
			continue
		}
		if err := n.descendAndSync(ctx, peer, path+c); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) syncLeaf(ctx context.Context, peer *Peer, path string) error {
	var remote struct {
		EntryHashes map[string]uint32 `json:"entryHashes"`
	}
	if err := n.getJSON(ctx, peer, "/sync/leaf?path="+path, &remote); err != nil {
		return err
	}

	diffKeys := n.trie.FindDiffKeys(path, remote.EntryHashes)
	if len(diffKeys) == 0 {
		return nil
	}

	var resp struct {
		Records map[string]wireRecord `json:"records"`
	}
	if err := n.postJSON(ctx, peer, "/sync/records", map[string][]string{"keys": diffKeys}, &resp); err != nil {
		return err
	}

	applied := 0
	for k, wr := range resp.Records {
		ok, err := n.store.Merge(k, fromWire(wr))
		if err != nil {
			return err
		}
		if ok {
			applied++
		}
	}
	n.instruments.MergeAppliedTotal.Add(ctx, int64(applied))
	return nil
}

// syncTick performs one anti-entropy round against a gossip subset of
// active peers.
func (n *Node) syncTick(ctx context.Context) {
	peers := selectGossipSubset(n.peers.Active(), n.cfg.GossipFanout)
	for _, p := range peers {
		if err := n.syncWithPeer(ctx, p); err != nil {
			n.logger.Warn("anti-entropy sync failed", "peer", p.ID, "error", err)
		}
	}
}

// startAntiEntropy runs syncTick on a timer until ctx is cancelled.
func (n *Node) startAntiEntropy(ctx context.Context) {
	interval := time.Duration(n.cfg.SyncIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.syncTick(ctx)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
