package core

import (
	"sort"
	"sync"
	"time"
)

// PeerRegistry tracks known peers and their lifecycle state (spec §4.11),
// grounded on the teacher's PeerManagement (core/peer_management.go)
// shuffle/sample helpers, generalized from a flat peer-info slice into a
// status-tracked map keyed by peer id.
type PeerRegistry struct {
	mu       sync.RWMutex
	peers    map[string]*PeerRecord
	maxPeers int
}

// NewPeerRegistry builds a registry enforcing at most maxPeers concurrently
// connected peers (MAX_PEER_CONNECTIONS, spec §6).
func NewPeerRegistry(maxPeers int) *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]*PeerRecord), maxPeers: maxPeers}
}

// Observe records that peerID was discovered at addr, creating a record if
// one doesn't exist yet.
func (r *PeerRegistry) Observe(peerID, addr string) *PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[peerID]
	if !ok {
		now := time.Now()
		rec = &PeerRecord{PeerID: peerID, Addr: addr, FirstSeen: now, LastSeen: now, Status: PeerDiscovered}
		r.peers[peerID] = rec
		return rec
	}
	rec.LastSeen = time.Now()
	if addr != "" {
		rec.Addr = addr
	}
	return rec
}

// ConnectedCount returns the number of peers currently marked Connected.
func (r *PeerRegistry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.peers {
		if p.Status == PeerConnected {
			n++
		}
	}
	return n
}

// CanConnect reports whether another outbound/inbound connection may be
// admitted without breaching MAX_PEER_CONNECTIONS.
func (r *PeerRegistry) CanConnect() bool {
	return r.ConnectedCount() < r.maxPeers
}

// SetStatus transitions peerID's recorded status.
func (r *PeerRegistry) SetStatus(peerID string, status PeerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.peers[peerID]; ok {
		rec.Status = status
		rec.LastSeen = time.Now()
	}
}

// RecordFailure increments peerID's retry counter and marks it Failed.
func (r *PeerRegistry) RecordFailure(peerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[peerID]
	if !ok {
		return 0
	}
	rec.Retries++
	rec.Status = PeerFailed
	return rec.Retries
}

// ConnectedPeerIDs returns the sorted list of currently Connected peer ids,
// the exact payload shape PeerDiscoveryAnnouncement needs.
func (r *PeerRegistry) ConnectedPeerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id, p := range r.peers {
		if p.Status == PeerConnected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ExpireStale marks any peer not seen within maxAge as Expired and returns
// the expired peer ids.
func (r *PeerRegistry) ExpireStale(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var expired []string
	for id, p := range r.peers {
		if p.Status != PeerExpired && p.LastSeen.Before(cutoff) {
			p.Status = PeerExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// Snapshot returns a copy of all tracked records, for diagnostics.
func (r *PeerRegistry) Snapshot() []PeerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerRecord, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}
