// Package config implements the persisted-document layer: canonical
// hashing, the optimistic-concurrency Object cache, the Manager and its
// per-family sub-managers, pluggable storage backends, and the
// out-of-band change watcher.
package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
)

// Document is a stored JSON document together with its moniker.
type Document struct {
	Moniker string
	Content map[string]any
}

// TemplateSource supplies the read-only template tree recopied by
// HardReset.
type TemplateSource interface {
	Documents() ([]Document, error)
}

// StaticTemplate is an in-memory TemplateSource, used by tests and
// ephemeral runs.
type StaticTemplate []Document

func (t StaticTemplate) Documents() ([]Document, error) { return t, nil }

// Provision is a default document materialized by HardReset after the
// template copy, e.g. a plugin's default settings.
type Provision struct {
	Moniker string
	Content map[string]any
}

// Manager is the factory for configuration objects. It keeps one Object
// per moniker so every caller shares the same optimistic-concurrency
// view, and it owns the storage-wide operations (HardReset).
type Manager struct {
	storage  Storage
	fontsDir string
	logger   *slog.Logger

	mu       sync.Mutex
	registry map[string]*Object
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Storage holds the document tree. Required.
	Storage Storage

	// FontsDir is the directory enumerated by the static sub-manager.
	// Empty disables font enumeration.
	FontsDir string

	// Logger for lifecycle events. Nil discards.
	Logger *slog.Logger
}

// NewManager creates a Manager over the given storage.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("config manager: storage is required: %w", errs.ErrInvalidInput)
	}
	return &Manager{
		storage:  cfg.Storage,
		fontsDir: cfg.FontsDir,
		logger:   logging.Default(cfg.Logger).With("component", "config"),
		registry: make(map[string]*Object),
	}, nil
}

// Obtain returns the shared Object for moniker, creating it on first use.
func (m *Manager) Obtain(moniker string) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obtainLocked(moniker)
}

func (m *Manager) obtainLocked(moniker string) *Object {
	if o, ok := m.registry[moniker]; ok {
		return o
	}
	o := NewObject(moniker,
		func() (map[string]any, error) { return m.storage.Load(moniker) },
		func(content map[string]any) error { return m.storage.Save(moniker, content) },
		m.logger)
	m.registry[moniker] = o
	return o
}

// Evict drops the cached content for moniker, if an object exists for it.
// The next Get reloads from storage.
func (m *Manager) Evict(moniker string) {
	m.mu.Lock()
	o := m.registry[moniker]
	m.mu.Unlock()
	if o != nil {
		o.Evict()
	}
}

// List returns the monikers stored under prefix.
func (m *Manager) List(prefix string) ([]string, error) {
	return m.storage.List(prefix)
}

// HardReset clears the storage tree, recopies the template, materializes
// settings from each schema's "default" block, and writes the provided
// default documents (per-plugin and per-data-source settings). Every
// cached object is evicted.
func (m *Manager) HardReset(template TemplateSource, provisions []Provision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Clear(); err != nil {
		return fmt.Errorf("hard reset: clear: %w", err)
	}

	var docs []Document
	if template != nil {
		var err error
		docs, err = template.Documents()
		if err != nil {
			return fmt.Errorf("hard reset: template: %w", err)
		}
	}

	// Deterministic copy order keeps resets reproducible.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Moniker < docs[j].Moniker })
	for _, doc := range docs {
		if err := m.storage.Save(doc.Moniker, doc.Content); err != nil {
			return fmt.Errorf("hard reset: copy %s: %w", doc.Moniker, err)
		}
	}

	// settings/<name>-settings.json from each schema's default block.
	for _, doc := range docs {
		name, ok := strings.CutPrefix(doc.Moniker, "schemas/")
		if !ok {
			continue
		}
		settings := map[string]any{}
		if def, ok := doc.Content["default"].(map[string]any); ok {
			settings = def
		}
		moniker := settingsMoniker(name)
		if err := m.storage.Save(moniker, settings); err != nil {
			return fmt.Errorf("hard reset: materialize %s: %w", moniker, err)
		}
	}

	for _, p := range provisions {
		if err := m.storage.Save(p.Moniker, p.Content); err != nil {
			return fmt.Errorf("hard reset: provision %s: %w", p.Moniker, err)
		}
	}

	for _, o := range m.registry {
		o.Evict()
	}

	m.logger.Info("hard reset complete", "template_docs", len(docs), "provisions", len(provisions))
	return nil
}
