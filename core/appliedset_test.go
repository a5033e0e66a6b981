package core

import (
	"testing"

	"github.com/google/uuid"
)

func TestBoundedOpSetFIFOEviction(t *testing.T) {
	s := newBoundedOpSet(2)
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()

	if !s.Add(id1) {
		t.Fatal("expected id1 to be newly added")
	}
	if !s.Add(id2) {
		t.Fatal("expected id2 to be newly added")
	}
	if !s.Add(id3) {
		t.Fatal("expected id3 to be newly added, evicting id1")
	}
	if s.Contains(id1) {
		t.Fatal("expected id1 to be evicted at capacity")
	}
	if !s.Contains(id2) || !s.Contains(id3) {
		t.Fatal("expected id2 and id3 to remain")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestBoundedOpSetAddIsIdempotent(t *testing.T) {
	s := newBoundedOpSet(4)
	id := uuid.New()
	if !s.Add(id) {
		t.Fatal("expected first Add to report newly added")
	}
	if s.Add(id) {
		t.Fatal("expected second Add of same id to report already present")
	}
}

func TestAppliedOpSetPerKeyIsolation(t *testing.T) {
	a := NewAppliedOpSet(4)
	id := uuid.New()

	if !a.MarkApplied("db:k1", id) {
		t.Fatal("expected MarkApplied to succeed for a fresh key")
	}
	if a.MarkApplied("db:k1", id) {
		t.Fatal("expected MarkApplied to report duplicate for same key+op")
	}
	if a.HasApplied("db:k2", id) {
		t.Fatal("expected op to be unknown under a different key")
	}
	if !a.MarkApplied("db:k2", id) {
		t.Fatal("expected same op id to be independently applicable under a different key")
	}
}

func TestGossipSeenSetPerPeerIsolation(t *testing.T) {
	g := NewGossipSeenSet(4)
	id := uuid.New()

	if !g.MarkSeen("peerA", id) {
		t.Fatal("expected MarkSeen to succeed for a fresh peer")
	}
	if g.MarkSeen("peerA", id) {
		t.Fatal("expected MarkSeen to report duplicate for same peer+op")
	}
	if g.HasSeen("peerB", id) {
		t.Fatal("expected op to be unseen by a different peer")
	}
}

func TestAppliedOpSetAndGossipSeenSetDoNotShareState(t *testing.T) {
	applied := NewAppliedOpSet(4)
	seen := NewGossipSeenSet(4)
	id := uuid.New()

	applied.MarkApplied("db:k1", id)
	if seen.HasSeen("db:k1", id) {
		t.Fatal("AppliedOpSet and GossipSeenSet must track independent state")
	}
}
