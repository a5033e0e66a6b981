package core

import (
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var indexBucket = []byte("index")

// IndexStore is the embedded ordered key→(hash, type) map of spec §4.4,
// grounded on cuemby-warren's use of go.etcd.io/bbolt as its durable,
// single-file log/state store: a bolt DB gives us crash-safe commits and
// ordered iteration (for future range scans) without running a separate
// server process.
type IndexStore struct {
	db *bbolt.DB
}

// NewIndexStore opens (creating if needed) a bbolt database at path.
func NewIndexStore(path string) (*IndexStore, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		zap.L().Sugar().Errorf("open index store failed: %v", err)
		return nil, WrapErr(err, "open index store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, WrapErr(err, "create index bucket")
	}
	zap.L().Sugar().Infof("index store opened: %s", path)
	return &IndexStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *IndexStore) Close() error {
	return s.db.Close()
}

func encodeIndexEntry(e IndexEntry) []byte {
	out := make([]byte, 33)
	copy(out[:32], e.Hash[:])
	out[32] = byte(e.Type)
	return out
}

func decodeIndexEntry(data []byte) IndexEntry {
	var e IndexEntry
	copy(e.Hash[:], data[:32])
	e.Type = StoreType(data[32])
	return e
}

// Put writes the (hash, type) entry for indexKey, overwriting any prior
// mapping.
func (s *IndexStore) Put(indexKey []byte, entry IndexEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		return b.Put(indexKey, encodeIndexEntry(entry))
	})
}

// Get looks up the (hash, type) entry for indexKey.
func (s *IndexStore) Get(indexKey []byte) (IndexEntry, bool, error) {
	var entry IndexEntry
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		v := b.Get(indexKey)
		if v == nil {
			return nil
		}
		entry = decodeIndexEntry(v)
		found = true
		return nil
	})
	if err != nil {
		return IndexEntry{}, false, WrapErr(err, "get index entry")
	}
	return entry, found, nil
}

// Delete removes the entry for indexKey, if present.
func (s *IndexStore) Delete(indexKey []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		return b.Delete(indexKey)
	})
}

// ForEach iterates every (indexKey, entry) pair in lexicographic key order,
// used by SyncManager's full-sync exchange, Store's Scan/GetAllOfType and
// the JSON _id purge.
func (s *IndexStore) ForEach(fn func(indexKey []byte, entry IndexEntry) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		return b.ForEach(func(k, v []byte) error {
			return fn(append([]byte(nil), k...), decodeIndexEntry(v))
		})
	})
}
