package core

import (
	"context"

	"github.com/sirupsen/logrus"
)

// OperationTopic and DiscoveryTopic are the two well-known GossipSub topics
// this node publishes and subscribes to (spec §4.9, §4.11).
const (
	OperationTopic = "meshkv/operations/v1"
	DiscoveryTopic = "meshkv/discovery/v1"
)

// GossipBus fans SignedOperations out over the OperationTopic and applies
// ones received from peers, deduplicating inbound operations per sending
// peer with a GossipSeenSet so a single write doesn't loop around the mesh
// forever.
// Grounded on the teacher's Replicator (core/replication.go), replacing its
// inv/getdata block-sync wire protocol with GossipSub pub/sub dispatch.
type GossipBus struct {
	transport *Transport
	store     *SyncStore
	seen      *GossipSeenSet
	resources *ResourceManager
	logger    *logrusLogger
}

// NewGossipBus wires a GossipBus over an already-constructed Transport and
// Store. resources, if non-nil, offloads each inbound operation's
// decode+apply work (msgpack decode, BLAKE3 hashing inside Apply's blob
// write) onto ResourceManager's bounded pool so the subscriber goroutine
// reading off the libp2p stream is never blocked on it.
func NewGossipBus(t *Transport, s *SyncStore, seen *GossipSeenSet, resources *ResourceManager, logger *logrusLogger) *GossipBus {
	return &GossipBus{transport: t, store: s, seen: seen, resources: resources, logger: logger}
}

// Start subscribes to the operation topic and applies every inbound
// operation to the local store, re-broadcasting it to the mesh (gossip
// relay) only when Apply reports it applied. It returns once ctx is
// cancelled.
func (g *GossipBus) Start(ctx context.Context) error {
	inbound, err := g.transport.Subscribe(OperationTopic)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			msg := msg
			if g.resources == nil {
				g.handle(ctx, msg)
				continue
			}
			go func() {
				if err := g.resources.RunBlocking(ctx, func() error {
					g.handle(ctx, msg)
					return nil
				}); err != nil {
					g.logger.WithError(err).Debug("gossip handle offload aborted")
				}
			}()
		}
	}
}

func (g *GossipBus) handle(ctx context.Context, msg InboundMsg) {
	op, err := DecodeOperation(msg.Data)
	if err != nil {
		g.logger.WithError(err).Warn("discarding malformed gossip operation")
		return
	}
	if !g.seen.MarkSeen(msg.PeerID, op.OpID) {
		return // already relayed to/from this peer
	}
	applied, err := g.store.Apply(op)
	if err != nil {
		g.logger.WithFields(logrus.Fields{"op_id": op.OpID, "err": err}).Debug("operation rejected")
		return
	}
	if applied {
		g.Broadcast(ctx, op)
	}
}

// Broadcast publishes op on the operation topic, used both for locally
// originated writes and for relaying an operation that just won its LWW
// comparison on this node.
func (g *GossipBus) Broadcast(ctx context.Context, op SignedOperation) error {
	data, err := EncodeOperation(op)
	if err != nil {
		return err
	}
	return g.transport.Publish(ctx, OperationTopic, data)
}
