package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LatencyTopic is the GossipSub topic ProcessLatencyResponder probes and
// answers on.
const LatencyTopic = "meshkv/latency/v1"

// probeTimeout bounds how long Probe waits for a matching pong before
// giving up, mirroring the 30s-class context.WithTimeout the
// teacher's core/storage.go wraps its IPFS gateway http.Client calls in
// (core/storage.go's Pin/Retrieve).
const probeTimeout = 30 * time.Second

type latencyProbe struct {
	Nonce     uuid.UUID `msgpack:"n"`
	SenderID  string    `msgpack:"s"`
	Pong      bool      `msgpack:"pong"`
	SentAtMS  int64     `msgpack:"t"`
}

// ProcessLatencyResponder answers liveness/latency probes from peers and
// issues its own, recording round-trip time in a LatencyTracker. Grounded on the
// teacher's core/storage.go http.Client-with-timeout dispatch pattern, here
// wired to GossipBus publish/subscribe instead of an outbound IPFS gateway
// call — the dispatch shape (fire a bounded-timeout request, wait for a
// matching response) carries over, the transport underneath does not.
type ProcessLatencyResponder struct {
	bus      *GossipBus
	selfID   string
	tracker  *LatencyTracker

	mu      sync.Mutex
	pending map[uuid.UUID]chan time.Duration
}

// NewProcessLatencyResponder builds a responder over an already-started
// GossipBus.
func NewProcessLatencyResponder(bus *GossipBus, selfID string, tracker *LatencyTracker) *ProcessLatencyResponder {
	return &ProcessLatencyResponder{bus: bus, selfID: selfID, tracker: tracker, pending: make(map[uuid.UUID]chan time.Duration)}
}

// Start subscribes to LatencyTopic, answering every probe it sees from
// another node and resolving any pong that matches a Probe this node
// issued.
func (p *ProcessLatencyResponder) Start(ctx context.Context) error {
	inbound, err := p.bus.transport.Subscribe(LatencyTopic)
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
			p.handle(ctx, msg)
		}
	}
}

func (p *ProcessLatencyResponder) handle(ctx context.Context, msg InboundMsg) {
	var probe latencyProbe
	if err := decodeWithHandle(msg.Data, &probe); err != nil {
		return
	}
	if probe.Pong {
		p.resolve(probe)
		return
	}
	pong := latencyProbe{Nonce: probe.Nonce, SenderID: p.selfID, Pong: true, SentAtMS: probe.SentAtMS}
	data, err := encodeWithHandle(pong)
	if err != nil {
		return
	}
	_ = p.bus.transport.Publish(ctx, LatencyTopic, data)
}

func (p *ProcessLatencyResponder) resolve(pong latencyProbe) {
	p.mu.Lock()
	ch, ok := p.pending[pong.Nonce]
	if ok {
		delete(p.pending, pong.Nonce)
	}
	p.mu.Unlock()
	if ok {
		select {
		case ch <- time.Since(time.UnixMilli(pong.SentAtMS)):
		default:
		}
	}
}

// Probe issues a latency probe and blocks (bounded by probeTimeout, or
// ctx's own deadline if tighter) for a matching reply, recording the
// observed round-trip time against StoreString as a generic "liveness"
// bucket in the tracker.
func (p *ProcessLatencyResponder) Probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	nonce := uuid.New()
	ch := make(chan time.Duration, 1)
	p.mu.Lock()
	p.pending[nonce] = ch
	p.mu.Unlock()

	probe := latencyProbe{Nonce: nonce, SenderID: p.selfID, SentAtMS: time.Now().UnixMilli()}
	data, err := encodeWithHandle(probe)
	if err != nil {
		return 0, err
	}
	if err := p.bus.transport.Publish(ctx, LatencyTopic, data); err != nil {
		return 0, err
	}

	select {
	case d := <-ch:
		if p.tracker != nil {
			p.tracker.Record(StoreString, d)
		}
		return d, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, nonce)
		p.mu.Unlock()
		return 0, ctx.Err()
	}
}

// LatencyTracker keeps a small rolling window of recent round-trip/apply
// latencies per store type, from which Percentile derives p50/p99-style
// figures. Grounded on the teacher's AnomalyDetector
// pattern (core/security.go) of a bounded in-memory sample window guarded
// by a mutex; this drops everything about anomaly scoring and keeps only
// the windowed sampling.
type LatencyTracker struct {
	mu      sync.Mutex
	samples map[StoreType][]time.Duration
	window  int
}

// NewLatencyTracker builds a tracker retaining the most recent window
// samples per store type.
func NewLatencyTracker(window int) *LatencyTracker {
	if window < 1 {
		window = 1
	}
	return &LatencyTracker{samples: make(map[StoreType][]time.Duration), window: window}
}

// Record adds one latency sample for the given store type.
func (l *LatencyTracker) Record(t StoreType, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := append(l.samples[t], d)
	if len(s) > l.window {
		s = s[len(s)-l.window:]
	}
	l.samples[t] = s
}

// Percentile returns the p-th percentile (0..100) latency recorded for t, or
// zero if no samples exist. This is a simple sort-and-index estimate,
// adequate for a rolling window rather than a precision instrument.
func (l *LatencyTracker) Percentile(t StoreType, p float64) time.Duration {
	l.mu.Lock()
	samples := append([]time.Duration(nil), l.samples[t]...)
	l.mu.Unlock()
	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	idx := int(p / 100 * float64(len(samples)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}
