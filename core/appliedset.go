package core

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// boundedOpSet is a fixed-capacity, FIFO-evicting set of operation ids. It
// backs two distinct dedup layers that must not be conflated (spec §4.8,
// §4.9): AppliedOpSet (per-key, "have I already applied this op_id")
// and the gossip layer's per-peer seen-set ("have I already received
// this op_id from this peer").
type boundedOpSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[uuid.UUID]*list.Element
}

func newBoundedOpSet(capacity int) *boundedOpSet {
	return &boundedOpSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uuid.UUID]*list.Element, capacity),
	}
}

// Contains reports whether id is present without affecting eviction order.
func (s *boundedOpSet) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Add inserts id, evicting the oldest entry if at capacity. Returns true if
// id was newly added, false if it was already present.
func (s *boundedOpSet) Add(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return false
	}
	elem := s.order.PushBack(id)
	s.index[id] = elem
	if s.order.Len() > s.capacity {
		oldest := s.order.Front()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.index, oldest.Value.(uuid.UUID))
		}
	}
	return true
}

// Len returns the current number of tracked ids.
func (s *boundedOpSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// AppliedOpSet tracks, per index key, which operation ids have already been
// applied so a replayed or re-gossiped operation is a safe no-op (spec
// §4.8). Capacity is per-key to bound memory under a hot key with a long
// write history.
type AppliedOpSet struct {
	mu       sync.Mutex
	perKey   map[string]*boundedOpSet
	capacity int
}

// NewAppliedOpSet builds an AppliedOpSet remembering up to capacity
// operation ids per index key.
func NewAppliedOpSet(capacity int) *AppliedOpSet {
	return &AppliedOpSet{perKey: make(map[string]*boundedOpSet), capacity: capacity}
}

// MarkApplied records opID as applied for indexKey, returning false if it
// was already recorded (a duplicate that must be dropped, not reapplied).
func (a *AppliedOpSet) MarkApplied(indexKey string, opID uuid.UUID) bool {
	a.mu.Lock()
	set, ok := a.perKey[indexKey]
	if !ok {
		set = newBoundedOpSet(a.capacity)
		a.perKey[indexKey] = set
	}
	a.mu.Unlock()
	return set.Add(opID)
}

// HasApplied reports whether opID was already recorded for indexKey.
func (a *AppliedOpSet) HasApplied(indexKey string, opID uuid.UUID) bool {
	a.mu.Lock()
	set, ok := a.perKey[indexKey]
	a.mu.Unlock()
	if !ok {
		return false
	}
	return set.Contains(opID)
}

// GossipSeenSet tracks, per peer, which operation ids have already been
// received from that peer, so a repeated delivery is dropped before it is
// re-applied and relayed again (spec §4.9). This is deliberately a separate
// structure from AppliedOpSet: an operation can be seen-by-peer without
// ever having been the winning write for its key, and vice versa.
type GossipSeenSet struct {
	mu      sync.Mutex
	perPeer map[string]*boundedOpSet
	capacity int
}

// NewGossipSeenSet builds a GossipSeenSet remembering up to capacity
// operation ids per peer.
func NewGossipSeenSet(capacity int) *GossipSeenSet {
	return &GossipSeenSet{perPeer: make(map[string]*boundedOpSet), capacity: capacity}
}

// MarkSeen records opID as sent-to-or-received-from peerID, returning false
// if it was already recorded.
func (g *GossipSeenSet) MarkSeen(peerID string, opID uuid.UUID) bool {
	g.mu.Lock()
	set, ok := g.perPeer[peerID]
	if !ok {
		set = newBoundedOpSet(g.capacity)
		g.perPeer[peerID] = set
	}
	g.mu.Unlock()
	return set.Add(opID)
}

// HasSeen reports whether opID was already recorded for peerID.
func (g *GossipSeenSet) HasSeen(peerID string, opID uuid.UUID) bool {
	g.mu.Lock()
	set, ok := g.perPeer[peerID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return set.Contains(opID)
}
