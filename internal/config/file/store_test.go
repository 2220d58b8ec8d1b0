package file

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/config/storetest"
	"github.com/escape-llc/eink-billboard/internal/errs"
)

func TestStoreConformance(t *testing.T) {
	storetest.TestStorage(t, func(t *testing.T) config.Storage {
		s, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		return s
	})
}

func TestStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := s.Save("plugins/clock/settings", map[string]any{"tz": "UTC"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(root, "plugins", "clock", "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected document at %s: %v", path, err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Errorf("expected newline-terminated JSON file, got %q", data)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	for _, moniker := range []string{"", "../evil", "a/../../evil", "/abs"} {
		if err := s.Save(moniker, map[string]any{}); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Save(%q): expected ErrInvalidInput, got %v", moniker, err)
		}
		if _, err := s.Load(moniker); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Load(%q): expected ErrInvalidInput, got %v", moniker, err)
		}
	}
}

func TestStoreCorruptDocument(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	path := filepath.Join(root, "settings", "broken-settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.Load("settings/broken-settings"); err == nil {
		t.Fatal("expected parse error for corrupt document")
	}
}

func TestTemplateDocuments(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("schemas/display.json", `{"title": "Display", "default": {"width": 800}}`)
	write("schedules/master_schedule.json", `{"type": "urn:inky:storage:schedule:master:1"}`)
	write("notes.txt", "ignored")

	docs, err := NewTemplate(root).Documents()
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}

	byMoniker := make(map[string]map[string]any, len(docs))
	for _, doc := range docs {
		byMoniker[doc.Moniker] = doc.Content
	}
	if byMoniker["schemas/display"] == nil {
		t.Error("missing schemas/display")
	}
	if byMoniker["schedules/master_schedule"] == nil {
		t.Error("missing schedules/master_schedule")
	}
}

func TestTemplateMissingRoot(t *testing.T) {
	_, err := NewTemplate(filepath.Join(t.TempDir(), "absent")).Documents()
	if err == nil {
		t.Fatal("expected error for missing template root")
	}
}
