package kv

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"smr-exec/state"
)

// Store is a divisible key-value state backed by badger. Keys are hashed into
// a fixed number of buckets; each bucket is one independently transferable
// state part. Bucket digests are finalized at checkpoint time, so Descriptor
// stays cheap and PrepareCheckpoint only rehashes buckets touched since the
// previous checkpoint.
//
// The embedded RWMutex is the synchronization point between the single
// ordered writer and concurrent unordered readers.
type Store struct {
	sync.RWMutex

	id      string
	db      *badger.DB
	buckets int

	// per-bucket digests as of the last finalized checkpoint
	digests []state.Digest
	dirty   map[int]bool

	descriptor StoreDescriptor
}

type bucketPayload struct {
	Index   int               `json:"index"`
	Entries map[string][]byte `json:"entries"`
}

// NewDiskStore opens (or creates) a store persisted under baseDir/replicaID.
func NewDiskStore(replicaID string, baseDir string, buckets int) (*Store, error) {
	dbPath := filepath.Join(baseDir, replicaID)
	db, err := badger.Open(badger.DefaultOptions(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}
	return initStore(replicaID, db, buckets)
}

// NewInMemoryStore creates a store that lives and dies with the process.
func NewInMemoryStore(replicaID string, buckets int) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	return initStore(replicaID, db, buckets)
}

func initStore(replicaID string, db *badger.DB, buckets int) (*Store, error) {
	if buckets <= 0 {
		return nil, fmt.Errorf("invalid bucket count %d", buckets)
	}

	store := &Store{
		id:      replicaID,
		db:      db,
		buckets: buckets,
		digests: make([]state.Digest, buckets),
		dirty:   make(map[int]bool),
	}

	// finalize the genesis descriptor
	for idx := 0; idx < buckets; idx++ {
		digest, err := store.digestBucket(idx)
		if err != nil {
			db.Close()
			return nil, err
		}
		store.digests[idx] = digest
	}
	store.descriptor = store.buildDescriptor()

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Log(format string, args ...any) {
	fmt.Printf("KV-"+s.id+": "+format+"\n", args...)
}

func (s *Store) bucketOf(key string) int {
	return int(xxhash.Sum64String(key) % uint64(s.buckets))
}

func (s *Store) bucketKey(idx int, key string) []byte {
	return []byte(fmt.Sprintf("b/%d/%s", idx, key))
}

func (s *Store) bucketPrefix(idx int) []byte {
	return []byte(fmt.Sprintf("b/%d/", idx))
}

// Put stores a value, marking the key's bucket dirty.
func (s *Store) Put(key string, value []byte) error {
	s.Lock()
	defer s.Unlock()

	idx := s.bucketOf(key)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.bucketKey(idx, key), value)
	}); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	s.dirty[idx] = true
	return nil
}

// Delete removes a key, marking its bucket dirty.
func (s *Store) Delete(key string) error {
	s.Lock()
	defer s.Unlock()

	idx := s.bucketOf(key)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.bucketKey(idx, key))
	}); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	s.dirty[idx] = true
	return nil
}

// Get reads a value. Safe for concurrent readers.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.RLock()
	defer s.RUnlock()

	var value []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.bucketKey(s.bucketOf(key), key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, found, nil
}

// materializeBucket serializes a bucket's entries into its transfer payload.
// Map keys are sorted by the JSON encoder, so the payload (and therefore the
// bucket digest) is deterministic across replicas.
func (s *Store) materializeBucket(idx int) ([]byte, error) {
	payload := bucketPayload{
		Index:   idx,
		Entries: make(map[string][]byte),
	}

	prefix := s.bucketPrefix(idx)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			payload.Entries[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to materialize bucket %d: %w", idx, err)
	}

	bytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bucket %d: %w", idx, err)
	}
	return bytes, nil
}

func (s *Store) digestBucket(idx int) (state.Digest, error) {
	payload, err := s.materializeBucket(idx)
	if err != nil {
		return nil, err
	}
	return state.DigestOf(payload), nil
}

func (s *Store) buildDescriptor() StoreDescriptor {
	descriptor := StoreDescriptor{Buckets: make([]BucketDescription, s.buckets)}
	for idx := 0; idx < s.buckets; idx++ {
		descriptor.Buckets[idx] = BucketDescription{Index: idx, Digest: s.digests[idx]}
	}
	return descriptor
}

// Descriptor returns the descriptor of the last finalized checkpoint.
func (s *Store) Descriptor() state.StateDescriptor {
	s.RLock()
	defer s.RUnlock()
	return s.descriptor
}

// PrepareCheckpoint rehashes every bucket touched since the previous
// checkpoint and publishes a fresh descriptor.
func (s *Store) PrepareCheckpoint() (state.StateDescriptor, error) {
	s.Lock()
	defer s.Unlock()

	touched := make([]int, 0, len(s.dirty))
	for idx := range s.dirty {
		touched = append(touched, idx)
	}
	sort.Ints(touched)

	for _, idx := range touched {
		digest, err := s.digestBucket(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", state.ErrCheckpointUnstable, err)
		}
		s.digests[idx] = digest
		delete(s.dirty, idx)
	}

	s.descriptor = s.buildDescriptor()
	return s.descriptor, nil
}

// GetParts materializes the buckets named by descs. A description that this
// store never produced, or whose digest no longer matches the bucket content,
// is reported as an unknown part.
func (s *Store) GetParts(descs []state.PartDescription) ([]state.StatePart, error) {
	s.RLock()
	defer s.RUnlock()

	parts := make([]state.StatePart, 0, len(descs))
	for _, desc := range descs {
		bucketDesc, ok := desc.(BucketDescription)
		if !ok {
			return nil, fmt.Errorf("%w: foreign description %s", state.ErrUnknownPart, desc.PartID())
		}
		if bucketDesc.Index < 0 || bucketDesc.Index >= s.buckets {
			return nil, fmt.Errorf("%w: %s", state.ErrUnknownPart, desc.PartID())
		}

		payload, err := s.materializeBucket(bucketDesc.Index)
		if err != nil {
			return nil, err
		}
		if !state.DigestOf(payload).Equal(bucketDesc.Digest) {
			return nil, fmt.Errorf("%w: %s is no longer available at the requested digest",
				state.ErrUnknownPart, desc.PartID())
		}

		parts = append(parts, BucketPart{Description: bucketDesc, Content: payload})
	}
	return parts, nil
}

// AcceptParts replaces bucket contents with externally supplied parts. Each
// part is verified against its claimed description before it is applied.
func (s *Store) AcceptParts(parts []state.StatePart) error {
	s.Lock()
	defer s.Unlock()

	for _, part := range parts {
		bucketDesc, ok := part.Descriptor().(BucketDescription)
		if !ok {
			return fmt.Errorf("%w: foreign description %s", state.ErrPartShapeMismatch, part.Descriptor().PartID())
		}
		if bucketDesc.Index < 0 || bucketDesc.Index >= s.buckets {
			return fmt.Errorf("%w: bucket %d out of range", state.ErrPartShapeMismatch, bucketDesc.Index)
		}

		payload := part.Payload()
		if !state.DigestOf(payload).Equal(bucketDesc.Digest) {
			return fmt.Errorf("%w: %s", state.ErrPartDigestMismatch, bucketDesc.PartID())
		}

		var decoded bucketPayload
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return fmt.Errorf("%w: undecodable payload for %s", state.ErrPartShapeMismatch, bucketDesc.PartID())
		}
		if decoded.Index != bucketDesc.Index {
			return fmt.Errorf("%w: payload for bucket %d claims bucket %d",
				state.ErrPartShapeMismatch, bucketDesc.Index, decoded.Index)
		}

		if err := s.replaceBucket(bucketDesc.Index, decoded.Entries); err != nil {
			return err
		}

		s.digests[bucketDesc.Index] = bucketDesc.Digest
		delete(s.dirty, bucketDesc.Index)
	}

	s.descriptor = s.buildDescriptor()
	return nil
}

func (s *Store) replaceBucket(idx int, entries map[string][]byte) error {
	prefix := s.bucketPrefix(idx)
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		stale := make([][]byte, 0)
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for key, value := range entries {
			if err := txn.Set(s.bucketKey(idx, key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace bucket %d: %w", idx, err)
	}
	return nil
}
