package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// SyncStore is the low-level apply algorithm of the replicated key-value
// model: it validates and applies SignedOperations against the
// BlobStore/IndexStore/Cache stack under Last-Writer-Wins semantics, using
// AppliedOpSet to make replays and re-gossiped duplicates safe no-ops. The
// client-facing Submit/GetByType/Scan surface lives one layer up, in
// core/store.go's Store.
type SyncStore struct {
	blobs        *BlobStore
	index        *IndexStore
	cache        *Cache
	applied      *AppliedOpSet
	drift        time.Duration
	maxValueSize int
}

// NewSyncStore wires the storage tiers into a single applying surface.
// maxValueSize overrides the MaxValueSize default (MAX_VALUE_SIZE_BYTES,
// spec §6) when positive.
func NewSyncStore(blobs *BlobStore, index *IndexStore, cache *Cache, applied *AppliedOpSet, drift time.Duration, maxValueSize int) *SyncStore {
	if maxValueSize <= 0 {
		maxValueSize = MaxValueSize
	}
	return &SyncStore{blobs: blobs, index: index, cache: cache, applied: applied, drift: drift, maxValueSize: maxValueSize}
}

// Apply validates op (signature + timestamp window) and, if it is the
// winning write for its key under LWW, merges it into the stored value and
// persists the result. It returns (applied=false, nil) for a duplicate or
// superseded operation rather than an error, since both are expected
// outcomes of concurrent/replayed gossip rather than failures.
func (s *SyncStore) Apply(op SignedOperation) (applied bool, err error) {
	if err := validateOperationShape(op, s.maxValueSize); err != nil {
		return false, err
	}
	if err := VerifyOperation(op, time.Now(), s.drift); err != nil {
		return false, err
	}
	if op.Field != "" {
		base, baseFound, err := s.index.Get(IndexKey(op.DBName, op.Key, ""))
		if err != nil {
			return false, err
		}
		if baseFound && base.Type != op.StoreType {
			return false, ErrTypeMismatch
		}
	}

	idxKey := string(IndexKey(op.DBName, op.Key, op.Field))

	if !s.applied.MarkApplied(idxKey, op.OpID) {
		return false, nil // already applied, safe no-op
	}

	entry, found, err := s.index.Get([]byte(idxKey))
	if err != nil {
		return false, err
	}

	var current StoredValue
	if found {
		data, err := s.blobs.Get(entry.Hash)
		if err != nil {
			return false, err
		}
		current, err = DecodeStoredValue(data)
		if err != nil {
			return false, err
		}
		if found && entry.Type != op.StoreType {
			return false, ErrTypeMismatch
		}
		winningOp := SignedOperation{OpID: current.Meta.OpID, Timestamp: current.Meta.Timestamp}
		if !op.After(winningOp) {
			return false, nil // superseded by the value already stored
		}
	} else {
		current = StoredValue{Type: op.StoreType}
	}

	merged, err := mergeValue(current, op)
	if err != nil {
		return false, err
	}
	merged.Meta = SignatureMetadata{
		PublicKey: append([]byte(nil), op.PublicKey...),
		Signature: append([]byte(nil), op.Signature...),
		Timestamp: op.Timestamp,
		OpID:      op.OpID,
	}

	encoded, err := EncodeStoredValue(merged)
	if err != nil {
		return false, err
	}
	hash, err := s.blobs.Put(encoded)
	if err != nil {
		return false, err
	}
	if err := s.index.Put([]byte(idxKey), IndexEntry{Hash: hash, Type: merged.Type}); err != nil {
		return false, err
	}
	s.cache.Put(idxKey, &merged)

	if op.StoreType == StoreJSON {
		if id, ok := jsonTopLevelID(string(merged.JSONVal)); ok {
			if err := s.purgeJSONDocsWithID(op.DBName, idxKey, id); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

// purgeJSONDocsWithID removes every other key under dbName holding a JSON
// document whose top-level "_id" equals id, enforcing invariant #7 across
// keys ("at most one document with a given _id exists per db_name at any
// time", spec §4.5/§4.9 step 6, named scenario #2). keepIdxKey is the
// index key that was just written and must survive the purge.
func (s *SyncStore) purgeJSONDocsWithID(dbName, keepIdxKey, id string) error {
	prefix := dbName + ":"
	var stale []string
	err := s.index.ForEach(func(indexKey []byte, entry IndexEntry) error {
		k := string(indexKey)
		if k == keepIdxKey || entry.Type != StoreJSON {
			return nil
		}
		if len(k) < len(prefix) || k[:len(prefix)] != prefix {
			return nil
		}
		data, err := s.blobs.Get(entry.Hash)
		if err != nil {
			return nil // best-effort: a transient blob read failure does not block the write that triggered the purge
		}
		v, err := DecodeStoredValue(data)
		if err != nil {
			return nil
		}
		if otherID, ok := jsonTopLevelID(string(v.JSONVal)); ok && otherID == id {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := s.index.Delete([]byte(k)); err != nil {
			return err
		}
		s.cache.Invalidate(k)
	}
	return nil
}

// ApplySyncedValue installs v as the value for indexKey if its signature
// metadata wins the LWW comparison against whatever is currently stored,
// bypassing the per-operation mergeValue dispatch used by Apply since v is
// already a complete, previously-merged value fetched from a peer during
// full-sync (spec §4.10). It also marks v's op id as applied so a later
// gossiped copy of the same operation is recognized as a duplicate.
func (s *SyncStore) ApplySyncedValue(indexKey string, v StoredValue) (applied bool, err error) {
	entry, found, err := s.index.Get([]byte(indexKey))
	if err != nil {
		return false, err
	}
	if found {
		data, err := s.blobs.Get(entry.Hash)
		if err != nil {
			return false, err
		}
		current, err := DecodeStoredValue(data)
		if err != nil {
			return false, err
		}
		if v.Meta.Timestamp < current.Meta.Timestamp {
			return false, nil
		}
		if v.Meta.Timestamp == current.Meta.Timestamp && bytes.Compare(v.Meta.OpID[:], current.Meta.OpID[:]) <= 0 {
			return false, nil
		}
	}
	encoded, err := EncodeStoredValue(v)
	if err != nil {
		return false, err
	}
	hash, err := s.blobs.Put(encoded)
	if err != nil {
		return false, err
	}
	if err := s.index.Put([]byte(indexKey), IndexEntry{Hash: hash, Type: v.Type}); err != nil {
		return false, err
	}
	s.applied.MarkApplied(indexKey, v.Meta.OpID)
	s.cache.Put(indexKey, &v)
	return true, nil
}

// Get resolves a key (optionally scoped to field) to its current value,
// consulting the cache before falling back to the index+blob stores.
func (s *SyncStore) Get(dbName, key, field string) (StoredValue, bool, error) {
	idxKey := string(IndexKey(dbName, key, field))
	if v, ok := s.cache.Get(idxKey); ok {
		return *v, true, nil
	}
	entry, found, err := s.index.Get([]byte(idxKey))
	if err != nil || !found {
		return StoredValue{}, false, err
	}
	data, err := s.blobs.Get(entry.Hash)
	if err != nil {
		return StoredValue{}, false, err
	}
	v, err := DecodeStoredValue(data)
	if err != nil {
		return StoredValue{}, false, err
	}
	s.cache.Put(idxKey, &v)
	return v, true, nil
}

func validateOperationShape(op SignedOperation, maxValueSize int) error {
	if len(op.DBName) > MaxDBNameLen {
		return ErrDBNameTooLong
	}
	if len(op.Key) > MaxKeyLen {
		return ErrKeyTooLong
	}
	if len(op.Field) > MaxFieldLen {
		return ErrFieldTooLong
	}
	if len(op.Value) > maxValueSize {
		return ErrValueTooLarge
	}
	return nil
}

// mergeValue folds op's payload into current according to op.StoreType.
// Value encodes a type-specific payload produced by the submission facade
// (spec §4.2): a raw string for String, the raw field value for Hash (the
// field name itself travels in op.Field),
// "+member"/"-member" for Set, JSON {"score":..,"member":..} for SortedSet,
// raw JSON for JSON, JSON {"ts":..,"fields":{..}} for Stream, JSON
// {"ts":..,"value":..} for TimeSeries, JSON {"member":..,"lon":..,"lat":..}
// for Geo, and the element to append for List.
func mergeValue(current StoredValue, op SignedOperation) (StoredValue, error) {
	current.Type = op.StoreType
	switch op.StoreType {
	case StoreString:
		current.StringVal = string(op.Value)
	case StoreHash:
		if current.HashVal == nil {
			current.HashVal = make(map[string]string)
		}
		current.HashVal[op.Field] = string(op.Value)
	case StoreList:
		current.ListVal = append(current.ListVal, string(op.Value))
	case StoreSet:
		current.SetVal = mergeSetMember(current.SetVal, string(op.Value))
	case StoreSortedSet:
		var payload struct {
			Score  float64 `json:"score"`
			Member string  `json:"member"`
		}
		if err := json.Unmarshal(op.Value, &payload); err != nil {
			return current, WrapErr(err, "decode sortedset payload")
		}
		current.SortedSetVal = upsertSortedSetMember(current.SortedSetVal, payload.Member, payload.Score)
	case StoreJSON:
		current.JSONVal = append([]byte(nil), op.Value...)
	case StoreStream:
		var payload struct {
			TimestampMS int64             `json:"ts"`
			Fields      map[string]string `json:"fields"`
		}
		if err := json.Unmarshal(op.Value, &payload); err != nil {
			return current, WrapErr(err, "decode stream payload")
		}
		current.StreamVal = appendStreamEntry(current.StreamVal, payload.TimestampMS, payload.Fields)
	case StoreTimeSeries:
		var payload struct {
			TimestampMS int64   `json:"ts"`
			Value       float64 `json:"value"`
		}
		if err := json.Unmarshal(op.Value, &payload); err != nil {
			return current, WrapErr(err, "decode timeseries payload")
		}
		current.TimeSeriesVal = append(current.TimeSeriesVal, TimeSeriesPoint{TimestampMS: payload.TimestampMS, Value: payload.Value})
	case StoreGeo:
		var payload struct {
			Member string  `json:"member"`
			Lon    float64 `json:"lon"`
			Lat    float64 `json:"lat"`
		}
		if err := json.Unmarshal(op.Value, &payload); err != nil {
			return current, WrapErr(err, "decode geo payload")
		}
		if current.GeoVal == nil {
			current.GeoVal = make(map[string]GeoPoint)
		}
		current.GeoVal[payload.Member] = GeoPoint{Longitude: payload.Lon, Latitude: payload.Lat}
	}
	return current, nil
}
