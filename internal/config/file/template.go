package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/escape-llc/eink-billboard/internal/config"
)

// Template reads a read-only tree of JSON documents, laid out the same
// way the store lays out its documents. Hard reset copies a Template
// into a cleared store.
type Template struct {
	root string
}

var _ config.TemplateSource = (*Template)(nil)

// NewTemplate creates a template over the given directory. The
// directory is not required to exist until Documents is called.
func NewTemplate(root string) *Template {
	return &Template{root: root}
}

// Documents loads every JSON document under the template root.
func (t *Template) Documents() ([]config.Document, error) {
	if _, err := os.Stat(t.root); err != nil {
		return nil, fmt.Errorf("template root %q: %w", t.root, err)
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(t.root, "**", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	docs := make([]config.Document, 0, len(matches))
	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			return nil, fmt.Errorf("read template document: %w", err)
		}
		var content map[string]any
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("parse template document %q: %w", match, err)
		}
		rel, err := filepath.Rel(t.root, match)
		if err != nil {
			return nil, fmt.Errorf("resolve template document %q: %w", match, err)
		}
		moniker := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		docs = append(docs, config.Document{Moniker: moniker, Content: content})
	}
	return docs, nil
}
