// Package file persists configuration documents as a JSON tree on disk.
//
// Each moniker maps to <root>/<moniker>.json, so "plugins/clock/settings"
// lives at <root>/plugins/clock/settings.json. Documents are written
// atomically via temp file + rename, which keeps readers (including the
// change watcher) from ever observing a half-written file.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/renameio/v2"

	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
)

// Store is a file-backed document store rooted at a single directory.
type Store struct {
	root string
}

var _ config.Storage = (*Store)(nil)

// NewStore creates a file store rooted at root, creating the directory
// if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("file store: root is required: %w", errs.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store persists into.
func (s *Store) Root() string { return s.root }

// path maps a moniker to its on-disk location, rejecting anything that
// would escape the root.
func (s *Store) path(moniker string) (string, error) {
	if moniker == "" || strings.HasPrefix(moniker, "/") || strings.Contains(moniker, "..") {
		return "", fmt.Errorf("invalid moniker %q: %w", moniker, errs.ErrInvalidInput)
	}
	return filepath.Join(s.root, filepath.FromSlash(moniker)+".json"), nil
}

// Load reads and parses the document for moniker. A missing file is
// reported as errs.ErrNotFound.
func (s *Store) Load(moniker string) (map[string]any, error) {
	path, err := s.path(moniker)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %q: %w", moniker, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("read document %q: %w", moniker, err)
	}
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse document %q: %w", moniker, err)
	}
	return content, nil
}

// Save writes the document atomically, creating parent directories as
// needed. Nil content is stored as an empty object.
func (s *Store) Save(moniker string, content map[string]any) error {
	path, err := s.path(moniker)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}
	if content == nil {
		content = map[string]any{}
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", moniker, err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write document %q: %w", moniker, err)
	}
	return nil
}

// Delete removes the document. Deleting a missing document is not an
// error.
func (s *Store) Delete(moniker string) error {
	path, err := s.path(moniker)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document %q: %w", moniker, err)
	}
	return nil
}

// List returns the monikers of every stored document whose moniker
// starts with prefix, sorted.
func (s *Store) List(prefix string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(s.root, "**", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan store: %w", err)
	}
	var monikers []string
	for _, match := range matches {
		rel, err := filepath.Rel(s.root, match)
		if err != nil {
			continue
		}
		moniker := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(moniker, prefix) {
			monikers = append(monikers, moniker)
		}
	}
	sort.Strings(monikers)
	return monikers, nil
}

// Clear removes every document while keeping the root directory itself,
// so open watchers on the root stay valid.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan store root: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}
	return nil
}
