// Package store implements keyed record tables over pluggable backends:
// an in-memory map, a local pebble database and DynamoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ecommerce-service/internal/obs"
)

var (
	// ErrNotFound is returned when a get, update or delete targets a key that
	// does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrMissingKey is returned when a record has no partition key.
	ErrMissingKey = errors.New("record has no partition key")
	// ErrKeyOutsidePrefix is returned by PrefixGuard for foreign partitions.
	ErrKeyOutsidePrefix = errors.New("partition key outside allowed prefix")
)

// Key is the primary key of a record. SK is empty for single-key tables.
type Key struct {
	PK string
	SK string
}

func (k Key) String() string {
	if k.SK == "" {
		return k.PK
	}
	return k.PK + "/" + k.SK
}

// Entity is implemented by every record type kept in a Table.
type Entity[T any] interface {
	PartitionKey() string
	SortKey() string
	// AssignID returns the record with a generated identifier when it has none.
	AssignID(newID func() string) T
}

// KeyOf returns the primary key of rec.
func KeyOf[T Entity[T]](rec T) Key {
	return Key{PK: rec.PartitionKey(), SK: rec.SortKey()}
}

// Expiring is implemented by records carrying a time-to-live.
type Expiring interface {
	ExpiresAt() time.Time
}

// Backend is the raw storage of one table. Put overwrites, Replace and Delete
// fail with ErrNotFound when the key is absent.
type Backend[T any] interface {
	Put(ctx context.Context, key Key, rec T) error
	Get(ctx context.Context, key Key) (T, error)
	BatchGet(ctx context.Context, keys []Key) ([]T, error)
	Query(ctx context.Context, pk string) ([]T, error)
	Scan(ctx context.Context) ([]T, error)
	Replace(ctx context.Context, key Key, rec T) error
	Delete(ctx context.Context, key Key) (T, error)
}

// Table is the record store adapter of one logical record type.
type Table[T Entity[T]] struct {
	name    string
	backend Backend[T]
	newID   func() string
	now     func() time.Time
}

// Option customises a Table.
type Option func(*tableOptions)

type tableOptions struct {
	newID func() string
	now   func() time.Time
}

// WithIDFunc replaces the uuid generator used by Create.
func WithIDFunc(f func() string) Option { return func(o *tableOptions) { o.newID = f } }

// WithClock replaces the clock used for TTL checks.
func WithClock(f func() time.Time) Option { return func(o *tableOptions) { o.now = f } }

// NewTable wraps a backend.
func NewTable[T Entity[T]](name string, b Backend[T], opts ...Option) *Table[T] {
	o := tableOptions{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[T]{name: name, backend: b, newID: o.newID, now: o.now}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// Create assigns an identifier if the record has none and stores it.
func (t *Table[T]) Create(ctx context.Context, rec T) (T, error) {
	rec = rec.AssignID(t.newID)
	key := KeyOf(rec)
	if key.PK == "" {
		var zero T
		return zero, fmt.Errorf("%s: %w", t.name, ErrMissingKey)
	}
	if err := t.backend.Put(ctx, key, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("%s put %s: %w", t.name, key, err)
	}
	return rec, nil
}

// Get fetches one record.
func (t *Table[T]) Get(ctx context.Context, key Key) (T, error) {
	rec, err := t.backend.Get(ctx, key)
	if err != nil {
		return rec, t.wrap("get", key, err)
	}
	if t.expired(rec) {
		var zero T
		return zero, t.wrap("get", key, ErrNotFound)
	}
	return rec, nil
}

// GetMany fetches the records of keys in one batched lookup. Absent keys are
// skipped, so the result may be shorter than keys; duplicate keys are looked
// up once.
func (t *Table[T]) GetMany(ctx context.Context, keys []Key) ([]T, error) {
	seen := make(map[Key]struct{}, len(keys))
	unique := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	if len(unique) == 0 {
		return nil, nil
	}
	recs, err := t.backend.BatchGet(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("%s batch get: %w", t.name, err)
	}
	return t.live(recs), nil
}

// Query returns every record of a partition in backend order.
func (t *Table[T]) Query(ctx context.Context, pk string) ([]T, error) {
	recs, err := t.backend.Query(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("%s query %s: %w", t.name, pk, err)
	}
	return t.live(recs), nil
}

// ScanAll returns every record of the table. It reads the whole table and is
// meant for small tables and admin use.
func (t *Table[T]) ScanAll(ctx context.Context) ([]T, error) {
	recs, err := t.backend.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s scan: %w", t.name, err)
	}
	return t.live(recs), nil
}

// Update replaces an existing record. It fails with ErrNotFound when the
// record's key does not exist.
func (t *Table[T]) Update(ctx context.Context, rec T) (T, error) {
	key := KeyOf(rec)
	if err := t.backend.Replace(ctx, key, rec); err != nil {
		var zero T
		return zero, t.wrap("update", key, err)
	}
	return rec, nil
}

// Delete removes a record and returns what was stored.
func (t *Table[T]) Delete(ctx context.Context, key Key) (T, error) {
	rec, err := t.backend.Delete(ctx, key)
	if err != nil {
		return rec, t.wrap("delete", key, err)
	}
	return rec, nil
}

// SweepExpired deletes records whose TTL has passed and reports how many went.
func (t *Table[T]) SweepExpired(ctx context.Context) (int, error) {
	recs, err := t.backend.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s sweep: %w", t.name, err)
	}
	n := 0
	for _, rec := range recs {
		if !t.expired(rec) {
			continue
		}
		if _, err := t.backend.Delete(ctx, KeyOf(rec)); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return n, fmt.Errorf("%s sweep delete: %w", t.name, err)
		}
		n++
	}
	return n, nil
}

// RunExpiry sweeps the table every interval until ctx is done. onSweep, if
// set, receives the number of removed rows.
func (t *Table[T]) RunExpiry(ctx context.Context, every time.Duration, onSweep func(int)) {
	if every <= 0 {
		every = time.Minute
	}
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			n, err := t.SweepExpired(ctx)
			if err != nil {
				obs.Logger.Warn("table_sweep_failed", "table", t.name, "error", err)
				continue
			}
			if n > 0 {
				obs.Logger.Info("table_swept", "table", t.name, "expired", n)
			}
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func (t *Table[T]) wrap(op string, key Key, err error) error {
	return fmt.Errorf("%s %s %s: %w", t.name, op, key, err)
}

func (t *Table[T]) expired(rec T) bool {
	e, ok := any(rec).(Expiring)
	if !ok {
		return false
	}
	at := e.ExpiresAt()
	if at.Unix() <= 0 {
		return false
	}
	return !t.now().Before(at)
}

func (t *Table[T]) live(recs []T) []T {
	out := recs[:0]
	for _, r := range recs {
		if !t.expired(r) {
			out = append(out, r)
		}
	}
	return out
}

// Writer is the write side of a Table.
type Writer[T any] interface {
	Create(ctx context.Context, rec T) (T, error)
}

// PrefixGuard forwards only records whose partition key starts with prefix.
type PrefixGuard[T Entity[T]] struct {
	next   Writer[T]
	prefix string
}

// NewPrefixGuard restricts next to partitions starting with prefix.
func NewPrefixGuard[T Entity[T]](next Writer[T], prefix string) *PrefixGuard[T] {
	return &PrefixGuard[T]{next: next, prefix: prefix}
}

func (g *PrefixGuard[T]) Create(ctx context.Context, rec T) (T, error) {
	if pk := rec.PartitionKey(); !strings.HasPrefix(pk, g.prefix) {
		var zero T
		return zero, fmt.Errorf("%w: %q does not start with %q", ErrKeyOutsidePrefix, pk, g.prefix)
	}
	return g.next.Create(ctx, rec)
}
