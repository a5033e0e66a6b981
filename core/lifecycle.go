package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeConfig collects every tunable spec §6 names for a running node.
type NodeConfig struct {
	ListenAddr         string
	BootstrapPeers     []string
	DiscoveryTag       string
	DataDir            string
	Region             string
	MaxConcurrentOps   int
	MaxPeerConnections int
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	CacheHotSize       int
	CacheWarmSize      int
	CacheHotTTL        time.Duration
	CacheWarmTTL       time.Duration
	MaxValueSizeBytes  int
	TimestampDrift     time.Duration
	SyncInterval       time.Duration
	IdentitySeed       []byte
	NATLeaseSeconds    int
}

// Node is the fully assembled runtime: transport, store, gossip, discovery
// and sync all started and stopped together. Grounded on the teacher's
// Node.ListenAndServe/Close (core/network.go), generalized from a bare
// pubsub host into the full component graph spec §4 describes.
type Node struct {
	cfg NodeConfig

	Transport *Transport
	Registry  *PeerRegistry
	Sync      *SyncStore
	Store     *Store
	GossipBus *GossipBus
	Discovery *PeerDiscoveryLoop
	SyncMgr   *SyncManager
	Resources *ResourceManager
	Latency   *LatencyTracker
	Probe     *ProcessLatencyResponder

	blobs *BlobStore
	index *IndexStore

	logger *logrus.Logger

	cancel context.CancelFunc
}

// NewNode opens the local storage components (blob store, index, cache,
// sync store) and the peer registry from cfg without starting any
// background loop; Start builds the network-facing components and brings
// the node fully online.
func NewNode(cfg NodeConfig, logger *logrus.Logger) (*Node, error) {
	if logger == nil {
		logger = logrus.New()
	}

	blobs, err := NewBlobStore(cfg.DataDir + "/blobs")
	if err != nil {
		return nil, err
	}
	index, err := NewIndexStore(cfg.DataDir + "/index.db")
	if err != nil {
		return nil, err
	}
	cache := NewCache(cfg.CacheHotSize, cfg.CacheWarmSize, cfg.CacheHotTTL, cfg.CacheWarmTTL)
	applied := NewAppliedOpSet(4096)
	syncStore := NewSyncStore(blobs, index, cache, applied, cfg.TimestampDrift, cfg.MaxValueSizeBytes)

	registry := NewPeerRegistry(cfg.MaxPeerConnections)

	n := &Node{
		cfg:       cfg,
		Registry:  registry,
		Sync:      syncStore,
		Resources: NewResourceManager(cfg.MaxConcurrentOps),
		Latency:   NewLatencyTracker(512),
		blobs:     blobs,
		index:     index,
		logger:    logger,
	}
	return n, nil
}

// Start brings up the transport and every background loop (gossip relay,
// peer discovery, full-sync) and returns once they are launched; the loops
// run until ctx is cancelled or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	tcfg := Config{
		ListenAddr:      n.cfg.ListenAddr,
		BootstrapPeers:  n.cfg.BootstrapPeers,
		DiscoveryTag:    n.cfg.DiscoveryTag,
		MaxPeerConns:    n.cfg.MaxPeerConnections,
		IdentitySeed:    n.cfg.IdentitySeed,
		NATLeaseSeconds: n.cfg.NATLeaseSeconds,
	}
	transport, err := NewTransport(ctx, tcfg, n.Registry, n.logger)
	if err != nil {
		return err
	}
	n.Transport = transport

	region := n.cfg.Region
	if region == "" {
		region = ResolveRegion(ctx)
	}

	seen := NewGossipSeenSet(4096)
	n.GossipBus = NewGossipBus(transport, n.Sync, seen, n.Resources, n.logger)
	n.Store = NewStoreFacade(n.Sync, n.GossipBus, transport.Identity())
	n.Discovery = NewPeerDiscoveryLoop(transport, n.Registry, region, transport.Identity(), n.logger)

	batch := NewBatchWriter(n.cfg.MaxConcurrentOps)
	rateReq := n.cfg.RateLimitRequests
	if rateReq < 1 {
		rateReq = 1
	}
	rateWindow := n.cfg.RateLimitWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	syncInterval := n.cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = 30 * time.Second
	}
	n.SyncMgr = NewSyncManager(transport, n.Sync, n.index, batch, rateReq, rateWindow, syncInterval, n.logger)
	n.SyncMgr.Start(ctx)

	n.Probe = NewProcessLatencyResponder(n.GossipBus, transport.HostID(), n.Latency)

	go func() {
		if err := n.GossipBus.Start(ctx); err != nil {
			n.logger.WithError(err).Error("gossip bus stopped")
		}
	}()
	go func() {
		if err := n.Discovery.Start(ctx); err != nil {
			n.logger.WithError(err).Error("peer discovery stopped")
		}
	}()
	go func() {
		if err := n.Probe.Start(ctx); err != nil {
			n.logger.WithError(err).Error("latency responder stopped")
		}
	}()

	return nil
}

// Stop tears the node down: sync loop, transport, then the durable stores.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.SyncMgr != nil {
		n.SyncMgr.Stop()
	}
	var firstErr error
	if n.Transport != nil {
		if err := n.Transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := n.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// SubmitValue admits a write under ResourceManager's concurrency bound and
// delegates to the Store facade, recording the end-to-end latency by
// StoreType (spec §4.14/Design Notes observability).
func (n *Node) SubmitValue(ctx context.Context, dbName, key, field string, storeType StoreType, payload []byte) (SignedOperation, error) {
	guard, err := n.Resources.Acquire(ctx)
	if err != nil {
		return SignedOperation{}, err
	}
	defer guard.Release()

	start := time.Now()
	op, err := n.Store.Submit(ctx, dbName, key, field, storeType, payload)
	n.Latency.Record(storeType, time.Since(start))
	return op, err
}
