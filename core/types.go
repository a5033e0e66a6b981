// Package core implements the replication engine: signed operations,
// content-addressed storage, the secondary index, the tiered cache, the
// gossip-based sync protocol and the peer-to-peer transport it rides on.
package core

import (
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	host "github.com/libp2p/go-libp2p/core/host"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

// StoreType tags the shape of the value behind a key. It plays the role the
// teacher's Block/Transaction concrete structs play elsewhere in the stack:
// a small closed set of variants dispatched by a switch, never by runtime
// type reflection.
type StoreType uint8

const (
	StoreString StoreType = iota
	StoreHash
	StoreList
	StoreSet
	StoreSortedSet
	StoreJSON
	StoreStream
	StoreTimeSeries
	StoreGeo
)

func (t StoreType) String() string {
	switch t {
	case StoreString:
		return "string"
	case StoreHash:
		return "hash"
	case StoreList:
		return "list"
	case StoreSet:
		return "set"
	case StoreSortedSet:
		return "sortedset"
	case StoreJSON:
		return "json"
	case StoreStream:
		return "stream"
	case StoreTimeSeries:
		return "timeseries"
	case StoreGeo:
		return "geo"
	default:
		return "unknown"
	}
}

// Limits enforced across every store type, per spec §4.5.
const (
	MaxDBNameLen = 128
	MaxKeyLen    = 256
	MaxFieldLen  = 256
	MaxValueSize = 10 << 20 // 10 MiB

	// DriftWindow is the default anti-replay acceptance window (spec §3, §6).
	DriftWindow = 5 * time.Minute
)

// SignatureMetadata is embedded in every encoded StoredValue so the winning
// operation's provenance travels with the blob instead of living in a
// separate out-of-band table (Design Notes §9).
type SignatureMetadata struct {
	PublicKey ed25519.PublicKey `msgpack:"pk"`
	Signature []byte            `msgpack:"sig"`
	Timestamp int64             `msgpack:"ts"`
	OpID      uuid.UUID         `msgpack:"op_id"`
}

// SortedSetMember is one (score, member) pair of a SortedSet value.
type SortedSetMember struct {
	Score  float64 `msgpack:"score"`
	Member string  `msgpack:"member"`
}

// StreamEntry is one append-only log entry of a Stream value.
type StreamEntry struct {
	ID     string            `msgpack:"id"` // "<ms-timestamp>-<sequence>"
	Fields map[string]string `msgpack:"fields"`
}

// TimeSeriesPoint is one (timestamp, value) sample of a TimeSeries value.
type TimeSeriesPoint struct {
	TimestampMS int64   `msgpack:"ts"`
	Value       float64 `msgpack:"value"`
}

// GeoPoint is a member's coordinate in a Geo value.
type GeoPoint struct {
	Longitude float64 `msgpack:"lon"`
	Latitude  float64 `msgpack:"lat"`
}

// StoredValue is the decoded, in-memory form of whatever a key currently
// resolves to. Exactly one of the typed fields is populated, selected by
// Type — a tagged-struct variant rather than an interface{}, matching the
// teacher's preference for concrete structs over runtime type assertions.
type StoredValue struct {
	Type StoreType         `msgpack:"type"`
	Meta SignatureMetadata `msgpack:"meta"`

	StringVal     string                     `msgpack:"s,omitempty"`
	HashVal       map[string]string          `msgpack:"h,omitempty"`
	ListVal       []string                   `msgpack:"l,omitempty"`
	SetVal        map[string]struct{}        `msgpack:"-"`
	SetMembers    []string                   `msgpack:"st,omitempty"` // wire form of SetVal
	SortedSetVal  []SortedSetMember          `msgpack:"z,omitempty"`
	JSONVal       json.RawMessage            `msgpack:"j,omitempty"`
	StreamVal     []StreamEntry              `msgpack:"x,omitempty"`
	TimeSeriesVal []TimeSeriesPoint          `msgpack:"ts,omitempty"`
	GeoVal        map[string]GeoPoint        `msgpack:"g,omitempty"`
}

// IndexEntry is the value side of the IndexStore's key→(hash, type) map.
type IndexEntry struct {
	Hash [32]byte
	Type StoreType
}

// PeerStatus is the discovery/connection state of a PeerRecord (spec §4.11).
type PeerStatus uint8

const (
	PeerDiscovered PeerStatus = iota
	PeerConnecting
	PeerConnected
	PeerFailed
	PeerExpired
)

func (s PeerStatus) String() string {
	switch s {
	case PeerDiscovered:
		return "discovered"
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerFailed:
		return "failed"
	case PeerExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PeerRecord tracks one remote node's discovery/connection lifecycle.
type PeerRecord struct {
	PeerID    string
	Addr      string
	FirstSeen time.Time
	LastSeen  time.Time
	Status    PeerStatus
	Retries   int
}

// PeerDiscoveryAnnouncement is the signed, periodically broadcast peer-list
// gossip message of spec §4.11.
type PeerDiscoveryAnnouncement struct {
	NodeID         string   `json:"node_id"`
	ConnectedPeers []string `json:"connected_peers"` // sorted
	Timestamp      int64    `json:"timestamp"`
	Region         string   `json:"region"`
	PublicKey      []byte   `json:"public_key"`
	Signature      []byte   `json:"signature"`
}

// InboundMsg is one message arriving on a subscribed gossip topic, mirroring
// the teacher's core.InboundMsg shape (core/common_structs.go) but keyed by
// topic rather than a fixed protocol code.
type InboundMsg struct {
	PeerID string
	Topic  string
	Data   []byte
	Ts     int64
}

// Config is the Transport-level configuration consumed by NewTransport,
// matching the teacher's core.Config shape (ListenAddr/BootstrapPeers/
// DiscoveryTag) plus the peer/resource limits spec §6 names.
type Config struct {
	ListenAddr      string
	BootstrapPeers  []string // "peer_id@host:port" hints, first-dial only
	DiscoveryTag    string
	MaxPeerConns    int
	DialTimeout     time.Duration
	IdentitySeed    []byte // 32-byte Ed25519 seed; random if nil
	NATLeaseSeconds int    // NAT-PMP/UPnP port mapping lease, 0 uses the NATManager default
}

// Transport is the authenticated, encrypted peer-to-peer endpoint (spec
// §4.12), built directly on the teacher's core.Node (core/network.go):
// libp2p host + GossipSub + mDNS, generalized with DHT-based dial-by-id and
// exponential-backoff bootstrap retry.
type Transport struct {
	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dhtRouting

	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription
	topicLock sync.RWMutex
	subLock   sync.RWMutex

	registry *PeerRegistry
	nat      *NATManager

	identity ed25519.PrivateKey

	cfg    Config
	logger *logrusLogger
}
