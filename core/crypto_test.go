package core

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustIdentity(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return pub, priv
}

func TestSignOperationVerifyRoundTrip(t *testing.T) {
	pub, priv := mustIdentity(t)
	dbName := "mydb-" + NodeIDFromPublicKey(pub)

	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("hello")}
	SignOperation(priv, &op)

	if op.OpID == uuid.Nil {
		t.Fatal("expected OpID to be assigned")
	}
	if op.Timestamp == 0 {
		t.Fatal("expected Timestamp to be assigned")
	}
	if err := VerifyOperation(op, time.Now(), DriftWindow); err != nil {
		t.Fatalf("VerifyOperation: %v", err)
	}
}

func TestVerifyDBName(t *testing.T) {
	pub, _ := mustIdentity(t)
	suffix := NodeIDFromPublicKey(pub)

	tests := []struct {
		name    string
		dbName  string
		wantErr error
	}{
		{"valid suffix", "mydb-" + suffix, nil},
		{"wrong suffix", "mydb-deadbeef", ErrMismatchedOwner},
		{"too short", suffix[:4], ErrMismatchedOwner},
		{"empty", "", ErrMismatchedOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyDBName(tt.dbName, pub)
			if err != tt.wantErr {
				t.Errorf("VerifyDBName(%q) = %v, want %v", tt.dbName, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyOperationRejectsMismatchedOwner(t *testing.T) {
	pub, priv := mustIdentity(t)
	_ = pub
	op := SignedOperation{DBName: "mydb-deadbeef", Key: "k1", StoreType: StoreString, Value: []byte("v")}
	SignOperation(priv, &op)

	if err := VerifyOperation(op, time.Now(), DriftWindow); err != ErrMismatchedOwner {
		t.Fatalf("VerifyOperation = %v, want ErrMismatchedOwner", err)
	}
}

func TestVerifyOperationRejectsStaleTimestamp(t *testing.T) {
	pub, priv := mustIdentity(t)
	dbName := "mydb-" + NodeIDFromPublicKey(pub)
	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v")}
	SignOperation(priv, &op)

	future := time.Now().Add(time.Hour)
	if err := VerifyOperation(op, future, time.Minute); err != ErrStaleTimestamp {
		t.Fatalf("VerifyOperation = %v, want ErrStaleTimestamp", err)
	}
}

func TestVerifyOperationRejectsBadSignature(t *testing.T) {
	pub, priv := mustIdentity(t)
	dbName := "mydb-" + NodeIDFromPublicKey(pub)
	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v")}
	SignOperation(priv, &op)
	op.Value = []byte("tampered")

	if err := VerifyOperation(op, time.Now(), DriftWindow); err != ErrInvalidSignature {
		t.Fatalf("VerifyOperation = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyOperationRejectsMalformedKeys(t *testing.T) {
	op := SignedOperation{DBName: "mydb-ab", Key: "k1", PublicKey: []byte("short"), Signature: []byte("short")}
	if err := VerifyOperation(op, time.Now(), DriftWindow); err != ErrInvalidSignature {
		t.Fatalf("VerifyOperation = %v, want ErrInvalidSignature", err)
	}
}

func TestSignAndVerifyAnnouncement(t *testing.T) {
	pub, priv := mustIdentity(t)
	a := PeerDiscoveryAnnouncement{
		NodeID:         NodeIDFromPublicKey(pub),
		ConnectedPeers: []string{"p1", "p2"},
		Timestamp:      time.Now().UnixMilli(),
		Region:         "us-east",
	}
	SignAnnouncement(priv, &a)
	if err := VerifyAnnouncement(a); err != nil {
		t.Fatalf("VerifyAnnouncement: %v", err)
	}
}

func TestVerifyAnnouncementRejectsSpoofedNodeID(t *testing.T) {
	_, priv := mustIdentity(t)
	a := PeerDiscoveryAnnouncement{NodeID: "not-the-real-node-id", Timestamp: time.Now().UnixMilli()}
	SignAnnouncement(priv, &a)
	if err := VerifyAnnouncement(a); err != ErrAnnouncementAuth {
		t.Fatalf("VerifyAnnouncement = %v, want ErrAnnouncementAuth", err)
	}
}

func TestNodeIDFromPublicKeyIsHex(t *testing.T) {
	pub, _ := mustIdentity(t)
	id := NodeIDFromPublicKey(pub)
	if len(id) != ed25519.PublicKeySize*2 {
		t.Fatalf("NodeIDFromPublicKey length = %d, want %d", len(id), ed25519.PublicKeySize*2)
	}
}

func TestIdentityFromSeedDeterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	pub1, priv1, err := IdentityFromSeed(seed)
	if err != nil {
		t.Fatalf("IdentityFromSeed: %v", err)
	}
	pub2, priv2, err := IdentityFromSeed(seed)
	if err != nil {
		t.Fatalf("IdentityFromSeed: %v", err)
	}
	if !pub1.Equal(pub2) {
		t.Fatal("expected identical public keys from identical seed")
	}
	if priv1.Equal(priv2) == false {
		t.Fatal("expected identical private keys from identical seed")
	}
}

func TestIdentityFromSeedRejectsWrongSize(t *testing.T) {
	if _, _, err := IdentityFromSeed([]byte("too short")); err == nil {
		t.Fatal("expected error for undersized seed")
	}
}
