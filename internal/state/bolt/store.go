// Package bolt provides a bbolt-backed state.Store.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jpalmerr/statuswatch/internal/state"
)

const backendName = "bolt"

var bucketIncidents = []byte("incidents")

// Store keeps the mapping in a single bucket keyed by source name.
type Store struct {
	db   *bolt.DB
	path string
}

var _ state.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIncidents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every key in the incidents bucket.
func (s *Store) Load(_ context.Context) (map[string]string, error) {
	m := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		if b == nil {
			return nil
		}
		// bolt byte slices are only valid inside the transaction
		return b.ForEach(func(k, v []byte) error {
			m[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read incidents bucket: %w", err)
	}
	return m, nil
}

// Commit drops and recreates the bucket with m inside one transaction.
func (s *Store) Commit(ctx context.Context, m map[string]string) error {
	if err := ctx.Err(); err != nil {
		return &state.PersistError{Backend: backendName, Err: err}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketIncidents); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("drop bucket: %w", err)
		}
		b, err := tx.CreateBucket(bucketIncidents)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for source, id := range m {
			if err := b.Put([]byte(source), []byte(id)); err != nil {
				return fmt.Errorf("put %q: %w", source, err)
			}
		}
		return nil
	})
	if err != nil {
		return &state.PersistError{Backend: backendName, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
