package core

import (
	"bytes"

	"github.com/google/uuid"
)

// SignedOperation is the atomic, Ed25519-signed unit of replication (spec
// §3, §4.8): every mutation to a key starts life as one of these, whether
// submitted locally by Store.Submit or received over the gossip mesh.
type SignedOperation struct {
	OpID      uuid.UUID `json:"op_id"`
	Timestamp int64     `json:"timestamp"` // ms since Unix epoch
	DBName    string    `json:"db_name"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	StoreType StoreType `json:"store_type"`
	Field     string    `json:"field,omitempty"`
	PublicKey []byte    `json:"public_key"` // 32-byte Ed25519 public key
	Signature []byte    `json:"signature"`  // 64-byte Ed25519 signature
}

// Before reports whether op is strictly ordered before other under the
// deterministic Last-Writer-Wins ordering key (timestamp, op_id): ties are
// broken by bytes.Compare on the canonical UUID bytes rather than string
// comparison, so ordering doesn't depend on UUID text representation.
func (op SignedOperation) Before(other SignedOperation) bool {
	if op.Timestamp != other.Timestamp {
		return op.Timestamp < other.Timestamp
	}
	return bytes.Compare(op.OpID[:], other.OpID[:]) < 0
}

// After is the inverse of Before, used by SyncStore's LWW comparison to
// decide whether an incoming operation supersedes what's currently stored.
func (op SignedOperation) After(other SignedOperation) bool {
	if op.Timestamp != other.Timestamp {
		return op.Timestamp > other.Timestamp
	}
	return bytes.Compare(op.OpID[:], other.OpID[:]) > 0
}
