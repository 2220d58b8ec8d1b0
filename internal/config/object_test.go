package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// docStore is a single-document backing store with call counters.
type docStore struct {
	content map[string]any
	missing bool
	loadErr error
	loads   int
	saves   int
}

func (d *docStore) loader() Loader {
	return func() (map[string]any, error) {
		d.loads++
		if d.loadErr != nil {
			return nil, d.loadErr
		}
		if d.missing {
			return nil, fmt.Errorf("absent: %w", errs.ErrNotFound)
		}
		return d.content, nil
	}
}

func (d *docStore) saver() Saver {
	return func(content map[string]any) error {
		d.saves++
		d.content = content
		d.missing = false
		return nil
	}
}

func newTestObject(d *docStore) *Object {
	return NewObject("settings/test-settings", d.loader(), d.saver(), nil)
}

func TestObjectGetCachesLoad(t *testing.T) {
	d := &docStore{content: map[string]any{"width": float64(800)}}
	obj := newTestObject(d)

	h1, c1, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, _, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.loads != 1 {
		t.Errorf("expected a single load, got %d", d.loads)
	}
	if h1 != h2 {
		t.Errorf("hash changed between reads: %s vs %s", h1, h2)
	}

	// Callers get a copy; mutating it must not poison the cache.
	c1["width"] = float64(0)
	_, c2, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c2["width"] != float64(800) {
		t.Errorf("cache mutated through returned copy: %v", c2)
	}
}

func TestObjectMissingDocumentActsEmpty(t *testing.T) {
	d := &docStore{missing: true}
	obj := newTestObject(d)

	hash, content, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if content != nil {
		t.Errorf("expected nil content for missing document, got %v", content)
	}

	empty, err := Hash(nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash != empty {
		t.Errorf("missing document must hash as empty, got %s", hash)
	}

	// Saving against the empty hash creates the document.
	committed, newHash, err := obj.Save(hash, map[string]any{"width": float64(800)})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !committed {
		t.Fatal("expected save against empty hash to commit")
	}
	if newHash == empty {
		t.Error("expected new hash after create")
	}
	if d.saves != 1 {
		t.Errorf("expected one save, got %d", d.saves)
	}
}

func TestObjectSaveStaleHashRejected(t *testing.T) {
	d := &docStore{content: map[string]any{"width": float64(800)}}
	obj := newTestObject(d)

	if _, _, err := obj.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}

	committed, newHash, err := obj.Save("stale", map[string]any{"width": float64(100)})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if committed {
		t.Fatal("stale save must not commit")
	}
	if newHash != "" {
		t.Errorf("stale save must not produce a hash, got %q", newHash)
	}
	if d.saves != 0 {
		t.Errorf("stale save must not reach storage, saves=%d", d.saves)
	}
}

func TestObjectSaveCommitsAndInvalidates(t *testing.T) {
	d := &docStore{content: map[string]any{"width": float64(800)}}
	obj := newTestObject(d)

	hash, _, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	update := map[string]any{"width": float64(1024), "_id": "test-settings", "_rev": hash}
	committed, newHash, err := obj.Save(hash, update)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !committed {
		t.Fatal("expected commit")
	}

	// Reserved keys never reach storage.
	if _, ok := d.content[IDKey]; ok {
		t.Errorf("persisted document contains %s: %v", IDKey, d.content)
	}
	if _, ok := d.content[RevKey]; ok {
		t.Errorf("persisted document contains %s: %v", RevKey, d.content)
	}

	// The cache was invalidated, so the next read reloads.
	loadsBefore := d.loads
	gotHash, content, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.loads != loadsBefore+1 {
		t.Errorf("expected reload after save, loads=%d", d.loads)
	}
	if gotHash != newHash {
		t.Errorf("reloaded hash %s does not match save result %s", gotHash, newHash)
	}
	if content["width"] != float64(1024) {
		t.Errorf("reloaded content: %v", content)
	}
}

func TestObjectEvictForcesReload(t *testing.T) {
	d := &docStore{content: map[string]any{"width": float64(800)}}
	obj := newTestObject(d)

	if _, _, err := obj.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Out-of-band change followed by evict.
	d.content = map[string]any{"width": float64(480)}
	obj.Evict()

	_, content, err := obj.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.loads != 2 {
		t.Errorf("expected reload after evict, loads=%d", d.loads)
	}
	if content["width"] != float64(480) {
		t.Errorf("expected out-of-band content, got %v", content)
	}
}

func TestObjectLoadErrorPropagates(t *testing.T) {
	d := &docStore{loadErr: errors.New("disk on fire")}
	obj := newTestObject(d)

	if _, _, err := obj.Get(); err == nil {
		t.Fatal("expected load error")
	}
	if _, _, err := obj.Save("any", nil); err == nil {
		t.Fatal("expected load error from save")
	}
}
