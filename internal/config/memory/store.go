// Package memory provides an in-memory document store. Intended for
// tests and ephemeral runs; documents are not persisted across restarts.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
)

// Store is an in-memory document store keyed by moniker.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

var _ config.Storage = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]any)}
}

// Load returns a copy of the stored document, or errs.ErrNotFound.
func (s *Store) Load(moniker string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[moniker]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", moniker, errs.ErrNotFound)
	}
	return clone(doc), nil
}

// Save stores a copy of content under moniker. Nil content is stored as
// an empty document.
func (s *Store) Save(moniker string, content map[string]any) error {
	if moniker == "" {
		return fmt.Errorf("invalid moniker: %w", errs.ErrInvalidInput)
	}
	if content == nil {
		content = map[string]any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[moniker] = clone(content)
	return nil
}

// Delete removes the document. Missing documents are not an error.
func (s *Store) Delete(moniker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, moniker)
	return nil
}

// List returns the stored monikers matching prefix, sorted.
func (s *Store) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var monikers []string
	for moniker := range s.docs {
		if strings.HasPrefix(moniker, prefix) {
			monikers = append(monikers, moniker)
		}
	}
	sort.Strings(monikers)
	return monikers, nil
}

// Clear removes every document.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]map[string]any)
	return nil
}

// clone deep-copies a document so callers cannot mutate stored state.
func clone(doc map[string]any) map[string]any {
	data, err := json.Marshal(doc)
	if err != nil {
		// Documents arrive from JSON decoding or literals; anything
		// unencodable is a programming error.
		panic(fmt.Sprintf("memory store: unencodable document: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("memory store: reparse document: %v", err))
	}
	return out
}
