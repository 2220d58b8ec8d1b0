package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
)

// Loader reads a document from storage. A missing document is reported
// by wrapping errs.ErrNotFound.
type Loader func() (map[string]any, error)

// Saver writes a document to storage.
type Saver func(map[string]any) error

// Object is the hash-stamped view of one persisted document. All callers
// share the instance registered for a moniker, so optimistic concurrency
// is enforced process-wide: every mutation must present the hash the
// caller last observed.
//
// A document that does not exist yet behaves like the empty document: Get
// returns its hash with nil content, and a Save presenting that hash
// creates it.
type Object struct {
	moniker string
	load    Loader
	save    Saver
	logger  *slog.Logger

	mu      sync.Mutex
	loaded  bool
	content map[string]any
	hash    string
}

// NewObject wraps one document behind loader/saver.
func NewObject(moniker string, load Loader, save Saver, logger *slog.Logger) *Object {
	return &Object{
		moniker: moniker,
		load:    load,
		save:    save,
		logger:  logging.Default(logger).With("component", "config", "moniker", moniker),
	}
}

// Moniker returns the document's logical address.
func (o *Object) Moniker() string { return o.moniker }

// Get returns the current hash and a deep copy of the content. On a cache
// miss the document is loaded and hashed first. Content is nil when the
// document does not exist; the hash is still valid for a subsequent Save.
func (o *Object) Get() (string, map[string]any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ensureLoaded(); err != nil {
		return "", nil, err
	}
	return o.hash, deepCopy(o.content), nil
}

// Save persists newContent if expectedHash matches the current hash.
// It returns (false, "", nil) on a hash mismatch. On success the cached
// content is invalidated, the next Get reloads from storage, and the new
// content's hash is returned.
func (o *Object) Save(expectedHash string, newContent map[string]any) (bool, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ensureLoaded(); err != nil {
		return false, "", err
	}
	if o.hash != expectedHash {
		o.logger.Debug("stale save rejected", "expected", expectedHash, "current", o.hash)
		return false, "", nil
	}

	stripped := Strip(newContent)
	if err := o.save(stripped); err != nil {
		return false, "", fmt.Errorf("save %s: %w", o.moniker, err)
	}

	newHash, err := Hash(stripped)
	if err != nil {
		return false, "", err
	}

	o.loaded = false
	o.content = nil
	o.hash = ""
	return true, newHash, nil
}

// Evict drops the cached content and hash; the next Get reloads.
func (o *Object) Evict() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded = false
	o.content = nil
	o.hash = ""
}

// ensureLoaded populates the cache. Callers hold o.mu.
func (o *Object) ensureLoaded() error {
	if o.loaded {
		return nil
	}
	content, err := o.load()
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("load %s: %w", o.moniker, err)
		}
		content = nil
	}
	content = Strip(content)
	hash, err := Hash(content)
	if err != nil {
		return err
	}
	o.content = content
	o.hash = hash
	o.loaded = true
	return nil
}
