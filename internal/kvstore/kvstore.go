// Package kvstore provides the embedded key-value store that backs
// distributed coordination across the cluster: DKG configuration,
// public key records, and the locks that serialize ceremonies (§4.7).
//
// There is no external etcd/consul cluster in this design — each node
// opens the same bbolt file over a shared volume (or, in single-node
// development, its own copy) and coordination reduces to lock rows with
// a TTL lease that a crashed holder eventually loses.
package kvstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var dataBucket = []byte("kv")

// Store wraps a bbolt database with the get/put/delete/list surface the
// coordination layer needs.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if absent) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create kv store directory %q: %w", dir, err)
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store %q: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv bucket: %w", err)
	}

	slog.Info("kv store opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	slog.Info("closing kv store", "path", s.path)
	return s.db.Close()
}

// Put writes value under key, overwriting any existing entry.
func (s *Store) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Put([]byte(key), value)
	})
}

// Get reads the value stored under key. found is false if the key is absent.
func (s *Store) Get(key string) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v != nil {
			found = true
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, found, err
}

// Delete removes key. It is not an error if key does not exist.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Delete([]byte(key))
	})
}

// List returns all keys with the given prefix, along with their values.
func (s *Store) List(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			val := make([]byte, len(v))
			copy(val, v)
			out[string(k)] = val
		}
		return nil
	})
	return out, err
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// CompareAndSwap writes value under key only if the current value equals
// oldValue (oldValue == nil means "key must not exist"). Reports whether
// the swap took effect.
func (s *Store) CompareAndSwap(key string, oldValue, newValue []byte) (swapped bool, err error) {
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(dataBucket)
		cur := b.Get([]byte(key))
		if !bytesEqual(cur, oldValue) {
			return nil
		}
		swapped = true
		return b.Put([]byte(key), newValue)
	})
	return swapped, err
}

func bytesEqual(a, b []byte) bool {
	if a == nil || b == nil {
		return len(a) == 0 && len(b) == 0
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
