package main

import (
	"math/rand"
	"sync"
)

// PeerStatus tracks a peer's health as observed through anti-entropy
// round outcomes.
type PeerStatus string

const (
	PeerActive      PeerStatus = "active"
	PeerSuspicious  PeerStatus = "suspicious"
	PeerQuarantined PeerStatus = "quarantined"
	PeerOffline     PeerStatus = "offline"
)

// Peer is one remote meshstore node this host syncs with.
type Peer struct {
	ID         string
	Address    string
	Status     PeerStatus
	TrustScore float64
}

// PeerTable tracks the set of peers and their trust scores, and selects
// the gossip subset each anti-entropy round talks to.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]*Peer)}
}

// Add registers a peer with neutral initial trust if not already known.
func (t *PeerTable) Add(id, address string) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		return p
	}
	p := &Peer{ID: id, Address: address, Status: PeerActive, TrustScore: 0.5}
	t.peers[id] = p
	return p
}

func (t *PeerTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

// Active returns every peer not quarantined or offline.
func (t *PeerTable) Active() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		if p.Status == PeerActive || p.Status == PeerSuspicious {
			out = append(out, p)
		}
	}
	return out
}

// All returns a snapshot of every known peer.
func (t *PeerTable) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// handleSyncSuccess raises trust via exponential moving average and
// restores active status.
func (t *PeerTable) handleSyncSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return
	}
	p.TrustScore = 0.95*p.TrustScore + 0.05*1.0
	if p.TrustScore > 1.0 {
		p.TrustScore = 1.0
	}
	p.Status = PeerActive
}

// handleSyncFailure lowers trust and demotes the peer's status once it
// crosses the suspicious/quarantined thresholds.
func (t *PeerTable) handleSyncFailure(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return
	}
	p.TrustScore = 0.95 * p.TrustScore
	switch {
	case p.TrustScore < 0.1:
		p.Status = PeerQuarantined
	case p.TrustScore < 0.3:
		p.Status = PeerSuspicious
	}
}

// selectGossipSubset picks up to count distinct active peers at random,
// bounding how many root-hash exchanges one anti-entropy tick performs.
func selectGossipSubset(peers []*Peer, count int) []*Peer {
	if count >= len(peers) {
		return peers
	}
	shuffled := append([]*Peer(nil), peers...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:count]
}
