package core

// syncManifestEntry is one line of a full-sync manifest: the index key and
// the content hash the requester currently has for it (or the zero hash if
// it has none).
type syncManifestEntry struct {
	Key  []byte   `msgpack:"k"`
	Hash [32]byte `msgpack:"h"`
}

type syncRequest struct {
	Entries []syncManifestEntry `msgpack:"e"`
}

// syncValueEntry pairs an index key with the complete stored value the
// responder believes is newer than what the requester advertised.
type syncValueEntry struct {
	Key   []byte      `msgpack:"k"`
	Value StoredValue `msgpack:"v"`
}

type syncResponse struct {
	Values []syncValueEntry `msgpack:"v"`
}

func (r syncRequest) encode() []byte {
	data, err := encodeWithHandle(r)
	if err != nil {
		return nil
	}
	return data
}

func decodeSyncRequest(data []byte) (syncRequest, error) {
	var r syncRequest
	err := decodeWithHandle(data, &r)
	return r, err
}

func (r syncResponse) encode() []byte {
	data, err := encodeWithHandle(r)
	if err != nil {
		return nil
	}
	return data
}

func decodeSyncResponse(data []byte) (syncResponse, error) {
	var r syncResponse
	err := decodeWithHandle(data, &r)
	return r, err
}
