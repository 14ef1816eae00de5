// Package memstore is an in-memory Store. Records are kept in their encoded
// form so every Load hands out a fresh document.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func New() *Store {
	return &Store{records: map[string][]byte{}}
}

// Put stores raw content for id, creating the record. Tests use it to seed
// legacy or corrupt payloads.
func (s *Store) Put(id string, raw []byte) {
	s.mu.Lock()
	s.records[id] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

// Raw returns the stored bytes for id.
func (s *Store) Raw(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.records[id]
	return append([]byte(nil), b...), ok
}

func (s *Store) Load(_ context.Context, id string) (model.Document, bool, error) {
	s.mu.RLock()
	raw, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return model.Document{}, false, nil
	}
	doc, err := store.Decode(raw)
	if err != nil {
		return model.Document{}, true, err
	}
	return doc, true, nil
}

func (s *Store) Save(_ context.Context, id string, doc model.Document) error {
	b, err := model.EncodeSections(doc.Sections)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: no board %q", store.ErrWriteRejected, id)
	}
	s.records[id] = b
	return nil
}

func (s *Store) Ensure(_ context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		s.records[id] = []byte("[]")
	}
	return nil
}

func (s *Store) Close() error { return nil }
