package core

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSyncStore(t *testing.T) (*SyncStore, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	blobs, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	index, err := NewIndexStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewIndexStore: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	cache := NewCache(8, 32, time.Minute, time.Minute)
	applied := NewAppliedOpSet(64)
	store := NewSyncStore(blobs, index, cache, applied, DriftWindow, 0)

	pub, priv, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return store, pub, priv
}

func TestSyncStoreApplyFirstWriteAccepted(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v1")}
	SignOperation(priv, &op)

	applied, err := store.Apply(op)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !applied {
		t.Fatal("expected first write to be applied")
	}

	v, found, err := store.Get(dbName, "k1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || v.StringVal != "v1" {
		t.Fatalf("Get = (%v, %v), want v1", v, found)
	}
}

func TestSyncStoreApplyLWWSupersession(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	older := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("old"), Timestamp: time.Now().UnixMilli()}
	SignOperation(priv, &older)
	newer := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("new"), Timestamp: older.Timestamp + 1000}
	SignOperation(priv, &newer)

	if _, err := store.Apply(newer); err != nil {
		t.Fatalf("Apply newer: %v", err)
	}
	applied, err := store.Apply(older)
	if err != nil {
		t.Fatalf("Apply older: %v", err)
	}
	if applied {
		t.Fatal("expected older write to be rejected as superseded")
	}

	v, _, err := store.Get(dbName, "k1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.StringVal != "new" {
		t.Fatalf("Get = %q, want %q (LWW should keep the newer write)", v.StringVal, "new")
	}
}

func TestSyncStoreApplyStaleTimestampRejected(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	op := SignedOperation{
		DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v"),
		Timestamp: time.Now().Add(-time.Hour).UnixMilli(),
	}
	SignOperation(priv, &op) // SignOperation only fills Timestamp if it's zero, so the stale value survives

	if _, err := store.Apply(op); err != ErrStaleTimestamp {
		t.Fatalf("Apply = %v, want ErrStaleTimestamp", err)
	}
}

func TestSyncStoreApplyOversizedValueRejected(t *testing.T) {
	blobs, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	index, err := NewIndexStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewIndexStore: %v", err)
	}
	defer index.Close()
	cache := NewCache(8, 32, time.Minute, time.Minute)
	applied := NewAppliedOpSet(64)
	store := NewSyncStore(blobs, index, cache, applied, DriftWindow, 8) // 8-byte cap

	pub, priv, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	dbName := "db-" + NodeIDFromPublicKey(pub)
	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("this value is way too long")}
	SignOperation(priv, &op)

	if _, err := store.Apply(op); err != ErrValueTooLarge {
		t.Fatalf("Apply = %v, want ErrValueTooLarge", err)
	}
}

func TestSyncStoreApplyTypeMismatchRejected(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	strOp := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v")}
	SignOperation(priv, &strOp)
	if _, err := store.Apply(strOp); err != nil {
		t.Fatalf("Apply string: %v", err)
	}

	hashOp := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreHash, Field: "f", Value: []byte("v")}
	SignOperation(priv, &hashOp)
	if _, err := store.Apply(hashOp); err != ErrTypeMismatch {
		t.Fatalf("Apply hash-onto-string = %v, want ErrTypeMismatch", err)
	}
}

func TestSyncStoreApplyDuplicateOpIsNoOp(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	op := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreString, Value: []byte("v")}
	SignOperation(priv, &op)

	applied1, err := store.Apply(op)
	if err != nil || !applied1 {
		t.Fatalf("first Apply = (%v,%v)", applied1, err)
	}
	applied2, err := store.Apply(op)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if applied2 {
		t.Fatal("expected replayed op_id to be a safe no-op")
	}
}

func TestSyncStoreApplyJSONCrossKeyIDDedup(t *testing.T) {
	store, pub, priv := newTestSyncStore(t)
	dbName := "db-" + NodeIDFromPublicKey(pub)

	k1 := SignedOperation{DBName: dbName, Key: "k1", StoreType: StoreJSON, Value: []byte(`{"_id":"doc1","v":1}`)}
	SignOperation(priv, &k1)
	if _, err := store.Apply(k1); err != nil {
		t.Fatalf("Apply k1: %v", err)
	}

	if _, found, err := store.Get(dbName, "k1", ""); err != nil || !found {
		t.Fatalf("Get k1 before dedup = (found=%v, err=%v), want found", found, err)
	}

	k2 := SignedOperation{
		DBName: dbName, Key: "k2", StoreType: StoreJSON, Value: []byte(`{"_id":"doc1","v":2}`),
		Timestamp: k1.Timestamp + 1000,
	}
	SignOperation(priv, &k2)
	if _, err := store.Apply(k2); err != nil {
		t.Fatalf("Apply k2: %v", err)
	}

	if _, found, err := store.Get(dbName, "k1", ""); err != nil || found {
		t.Fatalf("Get k1 after k2 writes the same _id = (found=%v, err=%v), want NotFound", found, err)
	}
	v, found, err := store.Get(dbName, "k2", "")
	if err != nil || !found || string(v.JSONVal) != `{"_id":"doc1","v":2}` {
		t.Fatalf("Get k2 = (%s,%v,%v), want the new doc", v.JSONVal, found, err)
	}
}

func TestSyncStoreApplySyncedValueLWW(t *testing.T) {
	store, _, _ := newTestSyncStore(t)
	indexKey := string(IndexKey("db-anything", "k1", ""))

	current := StoredValue{
		Type:      StoreString,
		StringVal: "current",
		Meta:      SignatureMetadata{Timestamp: 1000, OpID: uuid.New()},
	}
	applied, err := store.ApplySyncedValue(indexKey, current)
	if err != nil || !applied {
		t.Fatalf("ApplySyncedValue(current) = (%v,%v)", applied, err)
	}

	older := StoredValue{Type: StoreString, StringVal: "older", Meta: SignatureMetadata{Timestamp: 500, OpID: uuid.New()}}
	applied, err = store.ApplySyncedValue(indexKey, older)
	if err != nil {
		t.Fatalf("ApplySyncedValue(older): %v", err)
	}
	if applied {
		t.Fatal("expected an older synced value to lose the LWW comparison")
	}

	newer := StoredValue{Type: StoreString, StringVal: "newer", Meta: SignatureMetadata{Timestamp: 2000, OpID: uuid.New()}}
	applied, err = store.ApplySyncedValue(indexKey, newer)
	if err != nil || !applied {
		t.Fatalf("ApplySyncedValue(newer) = (%v,%v)", applied, err)
	}

	v, found, err := store.Get("db-anything", "k1", "")
	if err != nil || !found || v.StringVal != "newer" {
		t.Fatalf("Get = (%+v,%v,%v), want newer", v, found, err)
	}
}
