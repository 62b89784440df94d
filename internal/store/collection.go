package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// Collection is a bucket of JSON-encoded values mirrored in memory.
//
// Values handed out by Current, Get and subscribers must be treated as
// immutable; Update receives a fresh copy of the map but the values inside
// it are shared.
//
// Thread Safety: all methods are safe for concurrent use. Updates are
// serialised so each one sees the result of the previous one.
type Collection[V any] struct {
	db     *DB
	bucket []byte
	data   *reactive.Data[map[string]V]

	writeMu sync.Mutex
}

// NewCollection opens (creating if needed) the bucket called name and loads
// its contents.
//
// Parameters:
//   - db: Open store
//   - name: Bucket name, unique per collection
//
// Returns:
//   - *Collection[V]: Loaded collection
//   - error: If the bucket cannot be created or a stored value cannot be decoded
func NewCollection[V any](db *DB, name string) (*Collection[V], error) {
	bucket := []byte(name)
	loaded := make(map[string]V)

	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var val V
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("decoding %s/%s: %w", name, k, err)
			}
			loaded[string(k)] = val
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading collection %q: %w", name, err)
	}

	return &Collection[V]{
		db:     db,
		bucket: bucket,
		data:   reactive.New(loaded),
	}, nil
}

// Current returns a copy of the whole collection.
func (c *Collection[V]) Current() map[string]V {
	return maps.Clone(c.data.Current())
}

// Get returns the value stored under key.
func (c *Collection[V]) Get(key string) (V, bool) {
	v, ok := c.data.Current()[key]
	return v, ok
}

// Len returns the number of stored values.
func (c *Collection[V]) Len() int {
	return len(c.data.Current())
}

// Cell exposes the collection as a read-only reactive cell.
func (c *Collection[V]) Cell() reactive.Cell[map[string]V] {
	return c.data
}

// Subscribe registers fn for every change of the collection. fn is called
// immediately with the current contents.
func (c *Collection[V]) Subscribe(fn func(all map[string]V, initial bool)) func() {
	return c.data.Subscribe(fn)
}

// Update replaces the collection with fn(old). Keys missing from the result
// are deleted; keys whose encoded value changed are written. The write is a
// single transaction: either every change lands or none does, and
// subscribers are only notified after a successful commit.
func (c *Collection[V]) Update(fn func(old map[string]V) map[string]V) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := fn(maps.Clone(c.data.Current()))
	if next == nil {
		next = make(map[string]V)
	}

	encoded := make(map[string][]byte, len(next))
	for k, v := range next {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s/%s: %w", c.bucket, k, err)
		}
		encoded[k] = raw
	}

	err := c.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", c.bucket)
		}

		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if _, ok := encoded[string(k)]; !ok {
				stale = append(stale, bytes.Clone(k))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for k, raw := range encoded {
			if bytes.Equal(b.Get([]byte(k)), raw) {
				continue
			}
			if err := b.Put([]byte(k), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing collection %q: %w", c.bucket, err)
	}

	c.data.Set(next)
	return nil
}

// Put stores value under key.
func (c *Collection[V]) Put(key string, value V) error {
	return c.Update(func(m map[string]V) map[string]V {
		m[key] = value
		return m
	})
}

// Delete removes key. Returns ErrNotFound if it was not present.
func (c *Collection[V]) Delete(key string) error {
	if _, ok := c.Get(key); !ok {
		return fmt.Errorf("%s/%s: %w", c.bucket, key, ErrNotFound)
	}
	return c.Update(func(m map[string]V) map[string]V {
		delete(m, key)
		return m
	})
}
