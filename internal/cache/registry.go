package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// registryFileName is the BoltDB file at the cache root
	registryFileName = "index.db"

	// bucketName is the BoltDB bucket for cache entry metadata
	bucketName = "builds"
)

// RegistryEntry is the bookkeeping record for one cache entry. The
// directory tree stays authoritative; the registry only powers statistics
// and listings.
type RegistryEntry struct {
	// Key is the cache key (hex digest) of the entry
	Key string `json:"key"`

	// Name is the logical module name that was compiled
	Name string `json:"name"`

	// CreatedAt is when the entry was first built
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is the time of the most recent hit or rebuild
	LastUsedAt time.Time `json:"last_used_at"`

	// Builds counts how many times this key was (re)compiled
	Builds int `json:"builds"`
}

// registry stores cache entry metadata in BoltDB. A nil registry is valid
// and turns every operation into a no-op, so registry failures never break
// the cache itself.
type registry struct {
	db *bbolt.DB
}

func openRegistry(root string) (*registry, error) {
	dbPath := filepath.Join(root, registryFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache registry: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry bucket: %w", err)
	}

	return &registry{db: db}, nil
}

func (r *registry) close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}

// recordBuild registers a completed (re)build for key.
func (r *registry) recordBuild(key, name string) error {
	if r == nil {
		return nil
	}

	now := time.Now()

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		entry := RegistryEntry{Key: key, Name: name, CreatedAt: now}
		if data := b.Get([]byte(key)); data != nil {
			_ = json.Unmarshal(data, &entry)
		}

		entry.Name = name
		entry.LastUsedAt = now
		entry.Builds++

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), data)
	})
}

// recordHit refreshes the last-used timestamp for key.
func (r *registry) recordHit(key string) error {
	if r == nil {
		return nil
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		var entry RegistryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}

		entry.LastUsedAt = time.Now()

		updated, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		return b.Put([]byte(key), updated)
	})
}

// entries returns all known registry entries.
func (r *registry) entries() ([]RegistryEntry, error) {
	if r == nil {
		return nil, nil
	}

	var result []RegistryEntry

	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		return b.ForEach(func(_, v []byte) error {
			var entry RegistryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}

			result = append(result, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// clear drops all registry entries.
func (r *registry) clear() error {
	if r == nil {
		return nil
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}
