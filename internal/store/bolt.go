// Package store persists the hub's document state (scenes, groups,
// palettes, variables, device metadata, rooms) in a bbolt file.
//
// Each Collection is one bucket of JSON values keyed by string, mirrored in
// memory as a reactive map. Reads are served from memory; Update writes the
// changed keys in a single bbolt transaction and then publishes the new map
// to subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a key does not exist in a collection.
var ErrNotFound = errors.New("store: not found")

// DB wraps an open bbolt database.
type DB struct {
	bolt *bolt.DB
}

// Open opens or creates the bbolt file at path.
//
// Parameters:
//   - path: Filesystem path of the database file
//
// Returns:
//   - *DB: Open database ready for NewCollection
//   - error: If the file cannot be opened or is locked by another process
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &DB{bolt: db}, nil
}

// Close closes the underlying file.
func (d *DB) Close() error {
	if d == nil || d.bolt == nil {
		return nil
	}
	return d.bolt.Close()
}

// HealthCheck verifies the database can serve a read transaction.
func (d *DB) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.bolt.View(func(*bolt.Tx) error { return nil })
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.bolt.Path()
}
