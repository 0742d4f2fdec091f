package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is a pebble database shared by several tables. Each table lives
// under its own key prefix.
type PebbleDB struct {
	db *pebble.DB
	// mu serialises read-modify-write operations (conditional replace and
	// read-then-remove delete).
	mu sync.Mutex
}

func OpenPebble(dir string) (*PebbleDB, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleDB{db: d}, nil
}

func (p *PebbleDB) Close() error { return p.db.Close() }

// PebbleBackend stores JSON-encoded records of one table. Keys are
// table\x00pk\x00sk, so Query and Scan return records in key order.
type PebbleBackend[T any] struct {
	db    *PebbleDB
	table string
}

func NewPebbleBackend[T any](db *PebbleDB, table string) *PebbleBackend[T] {
	return &PebbleBackend[T]{db: db, table: table}
}

func (b *PebbleBackend[T]) tablePrefix() []byte {
	return append([]byte(b.table), 0)
}

func (b *PebbleBackend[T]) partitionPrefix(pk string) []byte {
	k := b.tablePrefix()
	k = append(k, pk...)
	return append(k, 0)
}

func (b *PebbleBackend[T]) encodeKey(key Key) []byte {
	return append(b.partitionPrefix(key.PK), key.SK...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (b *PebbleBackend[T]) get(k []byte) (T, error) {
	var rec T
	v, closer, err := b.db.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &rec); err != nil {
		return rec, fmt.Errorf("decode: %w", err)
	}
	return rec, nil
}

func (b *PebbleBackend[T]) set(k []byte, rec T) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return b.db.db.Set(k, v, pebble.Sync)
}

func (b *PebbleBackend[T]) Put(_ context.Context, key Key, rec T) error {
	return b.set(b.encodeKey(key), rec)
}

func (b *PebbleBackend[T]) Get(_ context.Context, key Key) (T, error) {
	return b.get(b.encodeKey(key))
}

func (b *PebbleBackend[T]) BatchGet(_ context.Context, keys []Key) ([]T, error) {
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		rec, err := b.get(b.encodeKey(k))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *PebbleBackend[T]) scanPrefix(prefix []byte) ([]T, error) {
	it, err := b.db.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	var out []T
	for it.First(); it.Valid(); it.Next() {
		var rec T
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			_ = it.Close()
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, rec)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *PebbleBackend[T]) Query(_ context.Context, pk string) ([]T, error) {
	return b.scanPrefix(b.partitionPrefix(pk))
}

func (b *PebbleBackend[T]) Scan(_ context.Context) ([]T, error) {
	return b.scanPrefix(b.tablePrefix())
}

func (b *PebbleBackend[T]) Replace(_ context.Context, key Key, rec T) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	k := b.encodeKey(key)
	if _, err := b.get(k); err != nil {
		return err
	}
	return b.set(k, rec)
}

func (b *PebbleBackend[T]) Delete(_ context.Context, key Key) (T, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	k := b.encodeKey(key)
	rec, err := b.get(k)
	if err != nil {
		return rec, err
	}
	if err := b.db.db.Delete(k, pebble.Sync); err != nil {
		return rec, err
	}
	return rec, nil
}
