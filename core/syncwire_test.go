package core

import "testing"

func TestSyncRequestEncodeDecodeRoundTrip(t *testing.T) {
	req := syncRequest{Entries: []syncManifestEntry{
		{Key: []byte("db:k1"), Hash: Hash([]byte("v1"))},
		{Key: []byte("db:k2"), Hash: Hash([]byte("v2"))},
	}}
	data := req.encode()
	if data == nil {
		t.Fatal("encode returned nil")
	}
	got, err := decodeSyncRequest(data)
	if err != nil {
		t.Fatalf("decodeSyncRequest: %v", err)
	}
	if len(got.Entries) != len(req.Entries) {
		t.Fatalf("decoded %d entries, want %d", len(got.Entries), len(req.Entries))
	}
	for i, e := range req.Entries {
		if string(got.Entries[i].Key) != string(e.Key) || got.Entries[i].Hash != e.Hash {
			t.Errorf("entry[%d] = %+v, want %+v", i, got.Entries[i], e)
		}
	}
}

func TestSyncResponseEncodeDecodeRoundTrip(t *testing.T) {
	resp := syncResponse{Values: []syncValueEntry{
		{Key: []byte("db:k1"), Value: StoredValue{Type: StoreString, StringVal: "v1"}},
	}}
	data := resp.encode()
	if data == nil {
		t.Fatal("encode returned nil")
	}
	got, err := decodeSyncResponse(data)
	if err != nil {
		t.Fatalf("decodeSyncResponse: %v", err)
	}
	if len(got.Values) != 1 || string(got.Values[0].Key) != "db:k1" || got.Values[0].Value.StringVal != "v1" {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestSyncRequestEmptyRoundTrip(t *testing.T) {
	req := syncRequest{}
	data := req.encode()
	got, err := decodeSyncRequest(data)
	if err != nil {
		t.Fatalf("decodeSyncRequest: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Fatalf("decoded %d entries, want 0", len(got.Entries))
	}
}
