// Package docstore is a small JSON document store on top of bbolt.
//
// Each collection is a bbolt bucket; documents are JSON values keyed by id.
// bbolt serialises writers, so a read-modify-write inside Update is atomic.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	CollectionProducts    = "products"
	CollectionCarts       = "carts"
	CollectionSigningKeys = "signing_keys"
)

var collections = []string{CollectionProducts, CollectionCarts, CollectionSigningKeys}

var ErrUnknownCollection = errors.New("unknown collection")

type Store struct {
	db *bolt.DB
}

// Open creates (or reopens) the store file and its collections.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare docstore directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create docstore collections: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) bucket(collection string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return b, nil
}

// Get decodes the document into out and reports whether it existed.
func (t *Tx) Get(collection string, id string, out any) (bool, error) {
	b, err := t.bucket(collection)
	if err != nil {
		return false, err
	}
	raw := b.Get([]byte(id))
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (t *Tx) Put(collection string, id string, doc any) error {
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return b.Put([]byte(id), encoded)
}

// Delete removes the document and reports whether it existed.
func (t *Tx) Delete(collection string, id string) (bool, error) {
	b, err := t.bucket(collection)
	if err != nil {
		return false, err
	}
	if b.Get([]byte(id)) == nil {
		return false, nil
	}
	return true, b.Delete([]byte(id))
}

// ForEach walks the collection in key order. Returning an error stops the walk.
func (t *Tx) ForEach(collection string, fn func(id string, raw []byte) error) error {
	b, err := t.bucket(collection)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}

// List decodes every document of a collection that passes keep.
func List[T any](s *Store, collection string, keep func(T) bool) ([]T, error) {
	out := make([]T, 0)
	err := s.View(func(tx *Tx) error {
		return tx.ForEach(collection, func(id string, raw []byte) error {
			var doc T
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode %s/%s: %w", collection, id, err)
			}
			if keep == nil || keep(doc) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
