package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in a map and remembers insertion order, which
// Query and Scan preserve.
type MemoryBackend[T any] struct {
	mu    sync.RWMutex
	m     map[Key]T
	order []Key
}

func NewMemoryBackend[T any]() *MemoryBackend[T] {
	return &MemoryBackend[T]{m: make(map[Key]T)}
}

func (s *MemoryBackend[T]) Put(_ context.Context, key Key, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		s.order = append(s.order, key)
	}
	s.m[key] = rec
	return nil
}

func (s *MemoryBackend[T]) Get(_ context.Context, key Key) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[key]
	if !ok {
		return rec, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryBackend[T]) BatchGet(_ context.Context, keys []Key) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if rec, ok := s.m[k]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryBackend[T]) Query(_ context.Context, pk string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, k := range s.order {
		if k.PK == pk {
			out = append(out, s.m[k])
		}
	}
	return out, nil
}

func (s *MemoryBackend[T]) Scan(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.m[k])
	}
	return out, nil
}

func (s *MemoryBackend[T]) Replace(_ context.Context, key Key, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return ErrNotFound
	}
	s.m[key] = rec
	return nil
}

func (s *MemoryBackend[T]) Delete(_ context.Context, key Key) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok {
		return rec, ErrNotFound
	}
	delete(s.m, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return rec, nil
}
