package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeDecodeStoredValueString(t *testing.T) {
	v := StoredValue{
		Type:      StoreString,
		StringVal: "hello",
		Meta:      SignatureMetadata{Timestamp: 123, OpID: uuid.New()},
	}
	data, err := EncodeStoredValue(v)
	if err != nil {
		t.Fatalf("EncodeStoredValue: %v", err)
	}
	got, err := DecodeStoredValue(data)
	if err != nil {
		t.Fatalf("DecodeStoredValue: %v", err)
	}
	if got.StringVal != v.StringVal || got.Meta.Timestamp != v.Meta.Timestamp {
		t.Fatalf("roundtrip = %+v, want %+v", got, v)
	}
}

func TestEncodeDecodeStoredValueSetFlattenAndRehydrate(t *testing.T) {
	v := StoredValue{
		Type:   StoreSet,
		SetVal: map[string]struct{}{"a": {}, "b": {}, "c": {}},
	}
	data, err := EncodeStoredValue(v)
	if err != nil {
		t.Fatalf("EncodeStoredValue: %v", err)
	}
	got, err := DecodeStoredValue(data)
	if err != nil {
		t.Fatalf("DecodeStoredValue: %v", err)
	}
	if len(got.SetVal) != 3 {
		t.Fatalf("SetVal = %v, want 3 members", got.SetVal)
	}
	for _, m := range []string{"a", "b", "c"} {
		if _, ok := got.SetVal[m]; !ok {
			t.Errorf("missing member %q after rehydration", m)
		}
	}
}

func TestEncodeDecodeStoredValueJSON(t *testing.T) {
	v := StoredValue{Type: StoreJSON, JSONVal: json.RawMessage(`{"a":1}`)}
	data, err := EncodeStoredValue(v)
	if err != nil {
		t.Fatalf("EncodeStoredValue: %v", err)
	}
	got, err := DecodeStoredValue(data)
	if err != nil {
		t.Fatalf("DecodeStoredValue: %v", err)
	}
	if string(got.JSONVal) != string(v.JSONVal) {
		t.Fatalf("JSONVal = %s, want %s", got.JSONVal, v.JSONVal)
	}
}

func TestEncodeDecodeOperationRoundTrip(t *testing.T) {
	op := SignedOperation{
		OpID:      uuid.New(),
		Timestamp: time.Now().UnixMilli(),
		DBName:    "mydb-abcd",
		Key:       "k1",
		Value:     []byte("payload"),
		StoreType: StoreString,
		PublicKey: make([]byte, 32),
		Signature: make([]byte, 64),
	}
	data, err := EncodeOperation(op)
	if err != nil {
		t.Fatalf("EncodeOperation: %v", err)
	}
	got, err := DecodeOperation(data)
	if err != nil {
		t.Fatalf("DecodeOperation: %v", err)
	}
	if got.OpID != op.OpID || got.DBName != op.DBName || got.Key != op.Key || string(got.Value) != string(op.Value) {
		t.Fatalf("roundtrip = %+v, want %+v", got, op)
	}
}

func TestEncodeDecodeAnnouncementRoundTrip(t *testing.T) {
	a := PeerDiscoveryAnnouncement{
		NodeID:         "node-1",
		ConnectedPeers: []string{"p1", "p2"},
		Timestamp:      time.Now().UnixMilli(),
		Region:         "us-east",
		PublicKey:      make([]byte, 32),
		Signature:      make([]byte, 64),
	}
	data, err := EncodeAnnouncement(a)
	if err != nil {
		t.Fatalf("EncodeAnnouncement: %v", err)
	}
	got, err := DecodeAnnouncement(data)
	if err != nil {
		t.Fatalf("DecodeAnnouncement: %v", err)
	}
	if got.NodeID != a.NodeID || len(got.ConnectedPeers) != len(a.ConnectedPeers) {
		t.Fatalf("roundtrip = %+v, want %+v", got, a)
	}
}
