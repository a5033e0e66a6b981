package core

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// msgpackHandle is shared across encode/decode calls; go-msgpack's Handle is
// safe for concurrent use once configured, matching how cuemby-warren's Raft
// log store keeps a single package-level codec handle. TypeInfos is set to
// read the "msgpack" struct tag so field names stay independent of Go
// identifiers across wire versions.
var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.BasicHandle.TypeInfos = codec.NewTypeInfos([]string{"msgpack"})
	return h
}

// encodeWithHandle/decodeWithHandle are the generic counterparts used by the
// sync wire types, which have no set-flattening or hash-rehydration step to
// do around the raw encode/decode call.
func encodeWithHandle(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, WrapErr(err, "encode")
	}
	return buf.Bytes(), nil
}

func decodeWithHandle(data []byte, v any) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(v); err != nil {
		return WrapErr(err, "decode")
	}
	return nil
}

// EncodeStoredValue serializes a StoredValue to its on-disk msgpack form.
// SetVal (an in-memory map[string]struct{}) is flattened into SetMembers
// before encoding since msgpack has no "set" kind.
func EncodeStoredValue(v StoredValue) ([]byte, error) {
	if v.Type == StoreSet && v.SetVal != nil {
		v.SetMembers = make([]string, 0, len(v.SetVal))
		for m := range v.SetVal {
			v.SetMembers = append(v.SetMembers, m)
		}
	}
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(&v); err != nil {
		return nil, WrapErr(err, "encode stored value")
	}
	return buf.Bytes(), nil
}

// DecodeStoredValue parses the on-disk msgpack form back into a StoredValue,
// rehydrating SetVal from the wire-form SetMembers slice.
func DecodeStoredValue(data []byte) (StoredValue, error) {
	var v StoredValue
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(&v); err != nil {
		return StoredValue{}, WrapErr(err, "decode stored value")
	}
	if v.Type == StoreSet {
		v.SetVal = make(map[string]struct{}, len(v.SetMembers))
		for _, m := range v.SetMembers {
			v.SetVal[m] = struct{}{}
		}
	}
	return v, nil
}

// EncodeOperation/DecodeOperation serialize the wire form of a
// SignedOperation for gossip and full-sync transfer.
func EncodeOperation(op SignedOperation) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(&op); err != nil {
		return nil, WrapErr(err, "encode operation")
	}
	return buf.Bytes(), nil
}

func DecodeOperation(data []byte) (SignedOperation, error) {
	var op SignedOperation
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(&op); err != nil {
		return SignedOperation{}, WrapErr(err, "decode operation")
	}
	return op, nil
}

// EncodeAnnouncement/DecodeAnnouncement serialize PeerDiscoveryAnnouncement
// for the peer-discovery gossip topic.
func EncodeAnnouncement(a PeerDiscoveryAnnouncement) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(&a); err != nil {
		return nil, WrapErr(err, "encode announcement")
	}
	return buf.Bytes(), nil
}

func DecodeAnnouncement(data []byte) (PeerDiscoveryAnnouncement, error) {
	var a PeerDiscoveryAnnouncement
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(&a); err != nil {
		return PeerDiscoveryAnnouncement{}, WrapErr(err, "decode announcement")
	}
	return a, nil
}
