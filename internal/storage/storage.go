// Package storage defines the single persistence contract the Engine
// round-trips index snapshots through, with an in-memory implementation
// (always available) and an optional bbolt-backed implementation selected
// by configuration (SPEC_FULL.md §9, decision #3).
package storage

import (
	"context"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"lexitrie/internal/engerrors"
)

// Backend is the persistence contract the Engine uses to durably store and
// retrieve index snapshot blobs. Every method may block on real I/O, the
// only suspension points in the engine's otherwise cooperative, single-
// threaded model (spec §5).
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Clear(ctx context.Context) error
	Close() error
}

// Memory is the required, dependency-free default backend: a
// mutex-guarded map. It exists purely as the in-process, storage-less
// default and test double.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory Backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("storage: key %q: %w", key, engerrors.ErrStorageError)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *Memory) Close() error { return nil }

const bucketName = "lexitrie_index"

// Bolt is the optional durable backend, grounded on the teacher's
// bbolt-backed Storage (Open/CreateBucketIfNotExists/View/Update).
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if absent) a bbolt database at path with the
// engine's bucket ready to use.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt at %q: %w", path, engerrors.ErrStorageUnavailable)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", engerrors.ErrStorageError)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Put(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("storage: put %q: %w", key, engerrors.ErrStorageError)
	}
	return nil
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("storage: key %q: %w", key, engerrors.ErrStorageError)
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: clear: %w", engerrors.ErrStorageError)
	}
	return nil
}

func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", engerrors.ErrStorageError)
	}
	return nil
}
