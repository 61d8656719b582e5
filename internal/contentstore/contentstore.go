// Package contentstore implements the persisted id->{text, metadata} table
// that the search manager keeps alongside the vector index. The index is
// authoritative for vectors; this store is authoritative for text.
package contentstore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xDarkicex/vecengine/internal/kv"
)

const defaultKeyPrefix = "c:"

// Record is a single content entry: the original text plus an optional
// metadata bag. No ordering and no versioning is implied across records.
type Record struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Store is the persisted content table, backed by an embedded key-value
// store: one JSON envelope per entry, one key-value pair per id.
type Store struct {
	mu        sync.RWMutex
	kv        kv.Store
	keyPrefix string
}

// New wraps store as a content table.
func New(store kv.Store) *Store {
	return &Store{kv: store, keyPrefix: defaultKeyPrefix}
}

// NewNamed wraps store as a content table namespaced under name, so several
// managers sharing one key-value engine (content_store_name in the manager
// config) don't collide on id.
func NewNamed(store kv.Store, name string) *Store {
	return &Store{kv: store, keyPrefix: defaultKeyPrefix + name + ":"}
}

// Put upserts a content record for id.
func (s *Store) Put(id, text string, metadata map[string]interface{}) error {
	data, err := json.Marshal(Record{Text: text, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("contentstore: marshal %q: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(s.contentKey(id), data); err != nil {
		return fmt.Errorf("contentstore: put %q: %w", id, err)
	}
	return nil
}

// Delete removes id's content record, if present.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(s.contentKey(id)); err != nil {
		return fmt.Errorf("contentstore: delete %q: %w", id, err)
	}
	return nil
}

// Get returns id's content record, or (nil, false) if absent.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.kv.Get(s.contentKey(id))
	if err != nil {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// BulkGet returns records for ids in request order, with nil placeholders
// for any id missing from the store.
func (s *Store) BulkGet(ids []string) []*Record {
	out := make([]*Record, len(ids))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, id := range ids {
		data, err := s.kv.Get(s.contentKey(id))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out[i] = &rec
	}
	return out
}

// GetAll returns every stored id alongside its record. Iteration order is
// not specified.
func (s *Store) GetAll() (map[string]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := s.kv.List(s.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("contentstore: list: %w", err)
	}
	out := make(map[string]*Record, len(entries))
	for _, e := range entries {
		var rec Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		out[e.Key[len(s.keyPrefix):]] = &rec
	}
	return out, nil
}

// Count returns the number of stored content records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.kv.Count(s.keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("contentstore: count: %w", err)
	}
	return n, nil
}

// Clear removes every stored content record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.kv.List(s.keyPrefix)
	if err != nil {
		return fmt.Errorf("contentstore: list for clear: %w", err)
	}
	for _, e := range entries {
		if err := s.kv.Delete(e.Key); err != nil {
			return fmt.Errorf("contentstore: clear: %w", err)
		}
	}
	return nil
}

func (s *Store) contentKey(id string) string {
	return s.keyPrefix + id
}
