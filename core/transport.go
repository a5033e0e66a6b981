package core

import (
	"context"
	"crypto/ed25519"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	libp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-multiaddr"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// logrusLogger is the per-component logger type, matching the teacher's
// network/sync/lifecycle code (core/network.go, core/blockchain_synchronization.go)
// which logs through *logrus.Logger rather than the zap logger its storage
// path uses.
type logrusLogger = logrus.Logger

// dhtRouting wraps the Kademlia DHT used for dial-by-peer-id when a peer is
// not reachable through an already-open stream or mDNS hint (spec §4.12).
// The teacher's core/network.go never needed this — it only dialed explicit
// bootstrap multiaddrs — so this is enrichment from the wider pack
// (go-libp2p-kad-dht, seen paired with go-libp2p in the myelnet-go-hop-exchange
// manifests under _examples/other_examples).
type dhtRouting struct {
	kad *dht.IpfsDHT
}

// NewTransport builds the libp2p host, GossipSub router, mDNS discovery and
// (optional) NAT traversal described in spec §4.12, directly generalizing
// the teacher's NewNode (core/network.go).
func NewTransport(ctx context.Context, cfg Config, registry *PeerRegistry, logger *logrusLogger) (*Transport, error) {
	var priv ed25519.PrivateKey
	if len(cfg.IdentitySeed) == ed25519.SeedSize {
		_, p, err := IdentityFromSeed(cfg.IdentitySeed)
		if err != nil {
			return nil, err
		}
		priv = p
	} else {
		_, p, err := GenerateIdentity()
		if err != nil {
			return nil, err
		}
		priv = p
	}

	p2pKey, err := crypto.UnmarshalEd25519PrivateKey(priv)
	if err != nil {
		return nil, WrapErr(err, "convert identity to libp2p key")
	}

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = "/ip4/0.0.0.0/tcp/0"
	}
	maddr, err := multiaddr.NewMultiaddr(listenAddr)
	if err != nil {
		return nil, WrapErr(err, "parse listen addr")
	}

	h, err := libp2p.New(
		libp2p.ListenAddrs(maddr),
		libp2p.Identity(p2pKey),
	)
	if err != nil {
		return nil, WrapErr(err, "create libp2p host")
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, WrapErr(err, "create gossipsub")
	}

	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		h.Close()
		return nil, WrapErr(err, "create dht")
	}

	var nat *NATManager
	if n, err := NewNATManager(cfg.DiscoveryTag, cfg.NATLeaseSeconds); err == nil {
		nat = n
		if port, err := parsePort(listenAddr); err == nil {
			if err := nat.Map(port); err != nil {
				logger.WithError(err).Debug("nat port mapping failed")
			}
		}
	}

	t := &Transport{
		host:     h,
		pubsub:   ps,
		dht:      &dhtRouting{kad: kad},
		topics:   make(map[string]*pubsub.Topic),
		subs:     make(map[string]*pubsub.Subscription),
		registry: registry,
		nat:      nat,
		identity: priv,
		cfg:      cfg,
		logger:   logger,
	}

	disc := mdns.NewMdnsService(h, cfg.DiscoveryTag, &mdnsNotifee{t: t})
	if err := disc.Start(); err != nil {
		logger.WithError(err).Warn("mdns discovery failed to start")
	}

	if err := kad.Bootstrap(ctx); err != nil {
		logger.WithError(err).Warn("dht bootstrap failed")
	}

	for _, addr := range cfg.BootstrapPeers {
		addr := addr
		go t.dialWithBackoff(ctx, addr)
	}

	return t, nil
}

// mdnsNotifee bridges mDNS peer discoveries into the PeerRegistry and an
// opportunistic connect, mirroring the teacher's Node.HandlePeerFound
// (core/network.go).
type mdnsNotifee struct {
	t *Transport
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if n.t.registry != nil {
		n.t.registry.Observe(pi.ID.String(), "")
	}
	if !n.t.registry.CanConnect() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n.t.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)
	if err := n.t.host.Connect(ctx, pi); err == nil {
		n.t.registry.SetStatus(pi.ID.String(), PeerConnected)
	} else {
		n.t.registry.RecordFailure(pi.ID.String())
	}
}

// dialWithBackoff retries dialing addr with exponential backoff (teacher's
// DialSeed, core/network.go, dials once and aggregates errors; this
// generalizes that into a cenkalti/backoff retry loop per spec §4.12's
// retry-until-connected bootstrap behavior).
func (t *Transport) dialWithBackoff(ctx context.Context, addr string) {
	op := func() error {
		target := addr
		if id, hostPort, ok := strings.Cut(addr, "@"); ok {
			hostName, port, err := net.SplitHostPort(hostPort)
			if err != nil {
				return backoff.Permanent(err)
			}
			target = "/dns/" + hostName + "/tcp/" + port + "/p2p/" + id
		}
		maddr, err := multiaddr.NewMultiaddr(target)
		if err != nil {
			return backoff.Permanent(err)
		}
		pi, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return backoff.Permanent(err)
		}
		dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout())
		defer cancel()
		if err := t.host.Connect(dialCtx, *pi); err != nil {
			t.registry.RecordFailure(pi.ID.String())
			return err
		}
		t.registry.SetStatus(pi.ID.String(), PeerConnected)
		return nil
	}
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, b); err != nil && t.logger != nil {
		t.logger.WithError(err).WithField("addr", addr).Warn("giving up dialing bootstrap peer")
	}
}

func (t *Transport) dialTimeout() time.Duration {
	if t.cfg.DialTimeout > 0 {
		return t.cfg.DialTimeout
	}
	return 10 * time.Second
}

// DialPeerID resolves a bare peer id to an address via the DHT and connects,
// used by NewStream when the target peer is not already connected.
func (t *Transport) DialPeerID(ctx context.Context, id peer.ID) error {
	pi, err := t.dht.kad.FindPeer(ctx, id)
	if err != nil {
		return WrapErr(err, "dht find peer")
	}
	return t.host.Connect(ctx, pi)
}

// Subscribe joins a GossipSub topic and returns a channel of InboundMsg,
// generalizing the teacher's Node.Subscribe (core/network.go) from a
// single fixed topic set to an arbitrary named topic.
func (t *Transport) Subscribe(topic string) (<-chan InboundMsg, error) {
	t.topicLock.Lock()
	tp, ok := t.topics[topic]
	if !ok {
		var err error
		tp, err = t.pubsub.Join(topic)
		if err != nil {
			t.topicLock.Unlock()
			return nil, WrapErr(err, "join topic")
		}
		t.topics[topic] = tp
	}
	t.topicLock.Unlock()

	sub, err := tp.Subscribe()
	if err != nil {
		return nil, WrapErr(err, "subscribe topic")
	}
	t.subLock.Lock()
	t.subs[topic] = sub
	t.subLock.Unlock()

	out := make(chan InboundMsg, 256)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(context.Background())
			if err != nil {
				return
			}
			if msg.ReceivedFrom == t.host.ID() {
				continue
			}
			out <- InboundMsg{
				PeerID: msg.ReceivedFrom.String(),
				Topic:  topic,
				Data:   msg.Data,
				Ts:     time.Now().UnixMilli(),
			}
		}
	}()
	return out, nil
}

// Publish broadcasts data on topic.
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	t.topicLock.Lock()
	tp, ok := t.topics[topic]
	t.topicLock.Unlock()
	if !ok {
		var err error
		tp, err = t.pubsub.Join(topic)
		if err != nil {
			return WrapErr(err, "join topic for publish")
		}
		t.topicLock.Lock()
		t.topics[topic] = tp
		t.topicLock.Unlock()
	}
	return tp.Publish(ctx, data)
}

// HostID returns the node's libp2p peer id as a string.
func (t *Transport) HostID() string {
	return t.host.ID().String()
}

// Identity returns the Ed25519 private key backing this node's announcements
// and, by extension, its libp2p identity.
func (t *Transport) Identity() ed25519.PrivateKey {
	return t.identity
}

// SetStreamHandler registers handler for direct (non-gossip) request/
// response protocols, used by SyncManager's full-sync exchange.
func (t *Transport) SetStreamHandler(proto protocol.ID, handler network.StreamHandler) {
	t.host.SetStreamHandler(proto, handler)
}

// NewStream opens a direct stream to peerID for proto, resolving the peer
// via the DHT if it isn't already connected.
func (t *Transport) NewStream(ctx context.Context, peerID peer.ID, proto protocol.ID) (network.Stream, error) {
	if t.host.Network().Connectedness(peerID) != network.Connected {
		if err := t.DialPeerID(ctx, peerID); err != nil {
			return nil, err
		}
	}
	return t.host.NewStream(ctx, peerID, proto)
}

// RandomConnectedPeer returns the peer id of an arbitrary connected peer,
// or false if there are none.
func (t *Transport) RandomConnectedPeer() (peer.ID, bool) {
	peers := t.host.Network().Peers()
	if len(peers) == 0 {
		return "", false
	}
	return peers[0], true
}

// Close tears down the host, releasing any NAT mapping first.
func (t *Transport) Close() error {
	var firstErr error
	if t.nat != nil {
		if err := t.nat.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.host.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
