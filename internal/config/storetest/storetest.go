// Package storetest provides a shared conformance suite for
// config.Storage implementations. Each backend (file, memory) wires this
// suite to verify it satisfies the full storage contract.
package storetest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
)

// TestStorage runs the conformance suite against a Storage
// implementation. newStorage must return a fresh, empty store for each
// sub-test.
func TestStorage(t *testing.T, newStorage func(t *testing.T) config.Storage) {
	t.Run("LoadMissing", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Load("settings/display-settings")
		if !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("Load missing: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveLoadRoundTrip", func(t *testing.T) {
		s := newStorage(t)
		doc := map[string]any{
			"name":    "virtual",
			"width":   float64(800),
			"enabled": true,
			"tags":    []any{"eink", "landscape"},
			"nested":  map[string]any{"depth": float64(2)},
		}
		if err := s.Save("settings/display-settings", doc); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load("settings/display-settings")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff(doc, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("SaveNilStoresEmptyDocument", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Save("settings/empty-settings", nil); err != nil {
			t.Fatalf("Save nil: %v", err)
		}
		got, err := s.Load("settings/empty-settings")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty document, got %v", got)
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Save("schedules/master_schedule", map[string]any{"rev": "old"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Save("schedules/master_schedule", map[string]any{"rev": "new"}); err != nil {
			t.Fatalf("Save overwrite: %v", err)
		}
		got, err := s.Load("schedules/master_schedule")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got["rev"] != "new" {
			t.Errorf("expected overwritten document, got %v", got)
		}
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Save("plugins/clock/state", map[string]any{"count": float64(1)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Delete("plugins/clock/state"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Load("plugins/clock/state"); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("Load after delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Delete("plugins/clock/state"); err != nil {
			t.Fatalf("Delete missing: %v", err)
		}
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		s := newStorage(t)
		for _, moniker := range []string{
			"schedules/master_schedule",
			"schedules/weekday",
			"settings/display-settings",
			"plugins/clock/settings",
		} {
			if err := s.Save(moniker, map[string]any{}); err != nil {
				t.Fatalf("Save %s: %v", moniker, err)
			}
		}

		got, err := s.List("schedules/")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		want := []string{"schedules/master_schedule", "schedules/weekday"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("List prefix mismatch (-want +got):\n%s", diff)
		}

		all, err := s.List("")
		if err != nil {
			t.Fatalf("List all: %v", err)
		}
		if len(all) != 4 {
			t.Errorf("expected 4 documents, got %d: %v", len(all), all)
		}
	})

	t.Run("ListEmptyPrefixOnEmptyStore", func(t *testing.T) {
		s := newStorage(t)
		got, err := s.List("")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no documents, got %v", got)
		}
	})

	t.Run("ClearEmptiesStore", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Save("settings/display-settings", map[string]any{"a": float64(1)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Save("plugins/clock/settings", map[string]any{"b": float64(2)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Clear(); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		got, err := s.List("")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty store after clear, got %v", got)
		}
		// The store must remain usable.
		if err := s.Save("settings/display-settings", map[string]any{"a": float64(3)}); err != nil {
			t.Fatalf("Save after clear: %v", err)
		}
	})

	t.Run("NestedMonikers", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Save("datasources/folder-images/settings", map[string]any{"path": "/srv/img"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load("datasources/folder-images/settings")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got["path"] != "/srv/img" {
			t.Errorf("expected nested document content, got %v", got)
		}
	})
}
