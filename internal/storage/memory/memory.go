package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/bankline/internal/storage"
)

// Store is an in-memory implementation of storage.Cache. It is safe for
// concurrent use and is primarily intended for tests and single-process use.
type Store struct {
	mu    sync.RWMutex
	kinds map[storage.Kind]map[string][]byte
}

var _ storage.Cache = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{kinds: make(map[storage.Kind]map[string][]byte)}
}

func (s *Store) Get(_ context.Context, kind storage.Kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.kinds[kind][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneBytes(data), nil
}

// List returns the records of kind ordered by id.
func (s *Store) List(_ context.Context, kind storage.Kind) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.kinds[kind]
	result := make([]storage.Record, 0, len(entries))
	for id, data := range entries {
		result = append(result, storage.Record{ID: id, Data: cloneBytes(data)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) Put(_ context.Context, kind storage.Kind, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.kinds[kind]
	if !ok {
		entries = make(map[string][]byte)
		s.kinds[kind] = entries
	}
	entries[id] = cloneBytes(data)
	return nil
}

func (s *Store) Delete(_ context.Context, kind storage.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kinds[kind], id)
	return nil
}

// Len returns the number of records of kind.
func (s *Store) Len(kind storage.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.kinds[kind])
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
