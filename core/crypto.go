package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenerateIdentity creates a fresh Ed25519 keypair for signing operations
// and announcements, grounded on the teacher's Ed25519 branch of
// core/security.go's Sign/Verify (the BLS, Dilithium and Shamir paths of
// that file are not carried over; see DESIGN.md).
func GenerateIdentity() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, WrapErr(err, "generate identity")
	}
	return pub, priv, nil
}

// IdentityFromSeed derives a deterministic keypair from a 32-byte seed, used
// by Config.IdentitySeed so a node can keep a stable identity across restarts.
func IdentityFromSeed(seed []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("core: identity seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// signingMessage builds the canonical byte string an operation signs,
// resolving spec.md's open question on wire format: op_id:timestamp:
// db_name:key:value is the sole accepted form. A bare db_name:key:value
// message (without op_id/timestamp binding) is never accepted — it would
// let a replayed signature be reattached to a different op_id or time.
func signingMessage(opID uuid.UUID, timestamp int64, dbName, key string, value []byte) []byte {
	buf := make([]byte, 0, 36+1+20+1+len(dbName)+1+len(key)+1+len(value))
	buf = append(buf, opID.String()...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, timestamp, 10)
	buf = append(buf, ':')
	buf = append(buf, dbName...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = append(buf, value...)
	return buf
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	return append(buf, tmp[:]...)
}

// SignOperation fills in PublicKey and Signature for an otherwise-complete
// operation, using the current time as Timestamp.
func SignOperation(priv ed25519.PrivateKey, op *SignedOperation) {
	if op.OpID == uuid.Nil {
		op.OpID = uuid.New()
	}
	if op.Timestamp == 0 {
		op.Timestamp = time.Now().UnixMilli()
	}
	op.PublicKey = append([]byte(nil), priv.Public().(ed25519.PublicKey)...)
	msg := signingMessage(op.OpID, op.Timestamp, op.DBName, op.Key, op.Value)
	op.Signature = ed25519.Sign(priv, msg)
}

// VerifyDBName asserts db_name ends with "-<hex(pub)>", binding every
// operation's namespace to the key that signed it (spec §4.1).
func VerifyDBName(dbName string, pub ed25519.PublicKey) error {
	suffix := "-" + NodeIDFromPublicKey(pub)
	if len(dbName) < len(suffix) || dbName[len(dbName)-len(suffix):] != suffix {
		return ErrMismatchedOwner
	}
	return nil
}

// VerifyOperation checks db_name ownership, the anti-replay timestamp
// window, and the Ed25519 signature, in the order spec §4.1 specifies:
// hex-decode, verify_db_name, timestamp window, signature. now is injected
// for testability.
func VerifyOperation(op SignedOperation, now time.Time, drift time.Duration) error {
	if len(op.PublicKey) != ed25519.PublicKeySize || len(op.Signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if err := VerifyDBName(op.DBName, ed25519.PublicKey(op.PublicKey)); err != nil {
		return err
	}
	opTime := time.UnixMilli(op.Timestamp)
	if opTime.Before(now.Add(-drift)) || opTime.After(now.Add(drift)) {
		return ErrStaleTimestamp
	}
	msg := signingMessage(op.OpID, op.Timestamp, op.DBName, op.Key, op.Value)
	if !ed25519.Verify(ed25519.PublicKey(op.PublicKey), msg, op.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// SignAnnouncement signs a PeerDiscoveryAnnouncement so receivers can verify
// the sender matches the claimed node_id (spec §4.11).
func SignAnnouncement(priv ed25519.PrivateKey, a *PeerDiscoveryAnnouncement) {
	a.PublicKey = append([]byte(nil), priv.Public().(ed25519.PublicKey)...)
	a.Signature = ed25519.Sign(priv, announcementMessage(*a))
}

// VerifyAnnouncement checks the signature and that the signer's derived node
// id matches the announcement's claimed node_id.
func VerifyAnnouncement(a PeerDiscoveryAnnouncement) error {
	if len(a.PublicKey) != ed25519.PublicKeySize || len(a.Signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(a.PublicKey), announcementMessage(a), a.Signature) {
		return ErrInvalidSignature
	}
	if NodeIDFromPublicKey(ed25519.PublicKey(a.PublicKey)) != a.NodeID {
		return ErrAnnouncementAuth
	}
	return nil
}

func announcementMessage(a PeerDiscoveryAnnouncement) []byte {
	buf := []byte(a.NodeID)
	buf = append(buf, ':')
	buf = appendInt64(buf, a.Timestamp)
	buf = append(buf, ':')
	buf = append(buf, a.Region...)
	for _, p := range a.ConnectedPeers {
		buf = append(buf, ':')
		buf = append(buf, p...)
	}
	return buf
}

// NodeIDFromPublicKey derives the node's announced identity from its Ed25519
// public key: hex encoding, matching the db_name:key namespacing convention
// used elsewhere in the index (spec §3).
func NodeIDFromPublicKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}
