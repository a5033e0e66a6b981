package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestPeerDiscoveryLoop(t *testing.T) (*PeerDiscoveryLoop, *PeerRegistry) {
	t.Helper()
	registry := NewPeerRegistry(10)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel) // keep test output quiet
	return &PeerDiscoveryLoop{registry: registry, logger: logger}, registry
}

func TestPeerDiscoveryLoopHandleValidAnnouncement(t *testing.T) {
	p, registry := newTestPeerDiscoveryLoop(t)
	pub, priv, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	a := PeerDiscoveryAnnouncement{
		NodeID:    NodeIDFromPublicKey(pub),
		Timestamp: time.Now().UnixMilli(),
		Region:    "us-east",
	}
	SignAnnouncement(priv, &a)
	data, err := EncodeAnnouncement(a)
	if err != nil {
		t.Fatalf("EncodeAnnouncement: %v", err)
	}

	p.handle(InboundMsg{PeerID: a.NodeID, Topic: DiscoveryTopic, Data: data})

	snap := registry.Snapshot()
	if len(snap) != 1 || snap[0].PeerID != a.NodeID {
		t.Fatalf("registry snapshot = %+v, want one record for %s", snap, a.NodeID)
	}
}

func TestPeerDiscoveryLoopHandleRejectsUnauthenticatedAnnouncement(t *testing.T) {
	p, registry := newTestPeerDiscoveryLoop(t)
	_, priv, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	a := PeerDiscoveryAnnouncement{NodeID: "spoofed-node-id", Timestamp: time.Now().UnixMilli()}
	SignAnnouncement(priv, &a)
	data, err := EncodeAnnouncement(a)
	if err != nil {
		t.Fatalf("EncodeAnnouncement: %v", err)
	}

	p.handle(InboundMsg{Data: data})

	if len(registry.Snapshot()) != 0 {
		t.Fatal("expected unauthenticated announcement to be discarded")
	}
}

func TestPeerDiscoveryLoopHandleDiscardsMalformedPayload(t *testing.T) {
	p, registry := newTestPeerDiscoveryLoop(t)
	p.handle(InboundMsg{Data: []byte("not a valid msgpack payload")})
	if len(registry.Snapshot()) != 0 {
		t.Fatal("expected malformed payload to be discarded without panicking")
	}
}
