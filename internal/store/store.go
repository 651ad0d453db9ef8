package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSettings   = []byte("settings")
	bucketMetadata   = []byte("metadata")
	bucketThumbnails = []byte("thumbnails")
)

var allBuckets = [][]byte{bucketSettings, bucketMetadata, bucketThumbnails}

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("store is closed")

// Store is the BoltDB-backed settings store and media cache.
// Settings writes are synchronous; reads are served from memory after first access.
type Store struct {
	db     *bolt.DB
	mu     sync.RWMutex // Protects memory cache and closed
	closed bool

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

// Open opens (or creates) the store for a library root under baseDir.
// An empty baseDir gives a memory-only store.
func Open(baseDir, libraryRoot string) (*Store, error) {
	if baseDir == "" {
		return &Store{cache: make(map[string][]byte)}, nil
	}

	dir := baseDir
	if libraryRoot != "" {
		dir = filepath.Join(baseDir, hashLibraryRoot(libraryRoot))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "glimpse.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cache: make(map[string][]byte)}, nil
}

// hashLibraryRoot keeps one database per library so settings never leak
// between libraries.
func hashLibraryRoot(root string) string {
	normalized := strings.TrimRight(filepath.Clean(root), string(filepath.Separator))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *Store) getRaw(bucket []byte, key string) ([]byte, bool) {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return data, true
	}
	closed := s.closed
	s.mu.RUnlock()

	if s.db == nil || closed {
		return nil, false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return nil, false
	}

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return data, true
}

func (s *Store) setRaw(bucket []byte, key string, data []byte) error {
	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) delete(bucket []byte, key string) {
	s.mu.Lock()
	delete(s.cache, string(bucket)+":"+key)
	closed := s.closed
	s.mu.Unlock()

	if s.db == nil || closed {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucket); b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

func (s *Store) deletePrefix(bucket []byte, prefix string) {
	s.mu.Lock()
	cachePrefix := string(bucket) + ":" + prefix
	for k := range s.cache {
		if strings.HasPrefix(k, cachePrefix) {
			delete(s.cache, k)
		}
	}
	closed := s.closed
	s.mu.Unlock()

	if s.db == nil || closed {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		// Collect first: deleting under a live cursor skips keys
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Settings (domain.SettingsStore) ===

// Get returns the stored value for key
func (s *Store) Get(key string) ([]byte, bool) {
	data, ok := s.getRaw(bucketSettings, key)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Set durably stores value under key before returning
func (s *Store) Set(key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)
	return s.setRaw(bucketSettings, key, data)
}

// === Asset metadata (keyed by asset ID, validated by modification time) ===

type metadataEntry struct {
	ModTime int64           `json:"modTime"`
	Value   json.RawMessage `json:"value"`
}

// GetMetadata decodes cached metadata for assetID into dest if it was
// recorded for the same modTime.
func (s *Store) GetMetadata(assetID string, modTime int64, dest interface{}) bool {
	data, ok := s.getRaw(bucketMetadata, assetID)
	if !ok {
		return false
	}
	var entry metadataEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.ModTime != modTime {
		return false
	}
	return json.Unmarshal(entry.Value, dest) == nil
}

// SaveMetadata caches metadata for assetID at modTime
func (s *Store) SaveMetadata(assetID string, modTime int64, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(metadataEntry{ModTime: modTime, Value: raw})
	if err != nil {
		return err
	}
	return s.setRaw(bucketMetadata, assetID, data)
}

// === Thumbnails (key: {assetID}@{w}x{h}_{modTime}) ===

func thumbnailKey(assetID string, width, height int, modTime int64) string {
	return fmt.Sprintf("%s@%dx%d_%d", assetID, width, height, modTime)
}

// GetThumbnail returns cached thumbnail bytes
func (s *Store) GetThumbnail(assetID string, width, height int, modTime int64) ([]byte, bool) {
	return s.getRaw(bucketThumbnails, thumbnailKey(assetID, width, height, modTime))
}

// SaveThumbnail caches thumbnail bytes, replacing those of older revisions
func (s *Store) SaveThumbnail(assetID string, width, height int, modTime int64, data []byte) error {
	s.deletePrefix(bucketThumbnails, assetID+"@")
	return s.setRaw(bucketThumbnails, thumbnailKey(assetID, width, height, modTime), data)
}

// InvalidateAsset wipes cached metadata and thumbnails for an asset
func (s *Store) InvalidateAsset(assetID string) {
	s.delete(bucketMetadata, assetID)
	s.deletePrefix(bucketThumbnails, assetID+"@")
}

// InvalidateCache wipes metadata and thumbnails but keeps settings
func (s *Store) InvalidateCache() {
	s.deletePrefix(bucketMetadata, "")
	s.deletePrefix(bucketThumbnails, "")
}
