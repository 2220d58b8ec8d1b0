package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// MasterScheduleMoniker locates the singleton master schedule document.
const MasterScheduleMoniker = "schedules/master_schedule"

func settingsMoniker(name string) string { return "settings/" + name + "-settings" }

// Settings exposes the settings/ document family. Documents are named
// <name>-settings and live at settings/<name>-settings.json.
type Settings struct{ m *Manager }

// Settings returns the settings sub-manager.
func (m *Manager) Settings() *Settings { return &Settings{m: m} }

// DocumentID returns the _id stamped onto the named settings document.
func (s *Settings) DocumentID(name string) string { return name + "-settings" }

// Object returns the shared configuration object for the named family.
func (s *Settings) Object(name string) *Object {
	return s.m.Obtain(settingsMoniker(name))
}

// Get returns the current hash and content for the named family.
func (s *Settings) Get(name string) (string, map[string]any, error) {
	return s.Object(name).Get()
}

// Save writes the named family if expectedHash still matches.
func (s *Settings) Save(name, expectedHash string, content map[string]any) (bool, string, error) {
	return s.Object(name).Save(expectedHash, content)
}

// Plugins exposes the per-plugin settings and state documents under
// plugins/<id>/.
type Plugins struct{ m *Manager }

// Plugins returns the plugin document sub-manager.
func (m *Manager) Plugins() *Plugins { return &Plugins{m: m} }

// SettingsID returns the _id stamped onto a plugin's settings document.
func (p *Plugins) SettingsID(id string) string { return id + "-settings" }

// SettingsObject returns the shared object for a plugin's settings.
func (p *Plugins) SettingsObject(id string) *Object {
	return p.m.Obtain("plugins/" + id + "/settings")
}

// StateObject returns the shared object for a plugin's persisted state.
func (p *Plugins) StateObject(id string) *Object {
	return p.m.Obtain("plugins/" + id + "/state")
}

// DeleteState removes a plugin's persisted state document. Missing state
// is not an error.
func (p *Plugins) DeleteState(id string) error {
	moniker := "plugins/" + id + "/state"
	if err := p.m.storage.Delete(moniker); err != nil {
		return err
	}
	p.m.Evict(moniker)
	return nil
}

// Sources exposes the per-data-source settings documents under
// datasources/<id>/.
type Sources struct{ m *Manager }

// Sources returns the data-source document sub-manager.
func (m *Manager) Sources() *Sources { return &Sources{m: m} }

// SettingsID returns the _id stamped onto a data source's settings document.
func (s *Sources) SettingsID(id string) string { return id + "-settings" }

// SettingsObject returns the shared object for a data source's settings.
func (s *Sources) SettingsObject(id string) *Object {
	return s.m.Obtain("datasources/" + id + "/settings")
}

// ScheduleEntry is one stored schedule document with its concurrency hash.
type ScheduleEntry struct {
	Moniker string
	Hash    string
	Content map[string]any
}

// Schedules exposes the schedules/ document family.
type Schedules struct{ m *Manager }

// Schedules returns the schedule document sub-manager.
func (m *Manager) Schedules() *Schedules { return &Schedules{m: m} }

// MasterObject returns the shared object for the master schedule.
func (s *Schedules) MasterObject() *Object { return s.m.Obtain(MasterScheduleMoniker) }

// Master returns the current hash and content of the master schedule.
func (s *Schedules) Master() (string, map[string]any, error) {
	return s.MasterObject().Get()
}

// List loads every document under schedules/, including the master
// schedule. Callers bucket entries by their type URN.
func (s *Schedules) List() ([]ScheduleEntry, error) {
	monikers, err := s.m.storage.List("schedules/")
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	sort.Strings(monikers)
	entries := make([]ScheduleEntry, 0, len(monikers))
	for _, moniker := range monikers {
		hash, content, err := s.m.Obtain(moniker).Get()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", moniker, err)
		}
		if content == nil {
			continue
		}
		entries = append(entries, ScheduleEntry{Moniker: moniker, Hash: hash, Content: content})
	}
	return entries, nil
}

// Static serves the read-only assets: schema documents and the font
// inventory.
type Static struct{ m *Manager }

// Static returns the read-only asset sub-manager.
func (m *Manager) Static() *Static { return &Static{m: m} }

// Schema loads the named schema document. Missing schemas return
// errs.ErrNotFound.
func (s *Static) Schema(name string) (map[string]any, error) {
	content, err := s.m.storage.Load("schemas/" + name)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("schema %q: %w", name, errs.ErrNotFound)
	}
	return content, nil
}

// Schemas lists the stored schema names.
func (s *Static) Schemas() ([]string, error) {
	monikers, err := s.m.storage.List("schemas/")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(monikers))
	for _, moniker := range monikers {
		names = append(names, filepath.Base(moniker))
	}
	sort.Strings(names)
	return names, nil
}

// Fonts enumerates font files under the configured fonts directory,
// returned as base names sorted case-insensitively. An unset directory
// yields an empty list.
func (s *Static) Fonts() ([]string, error) {
	if s.m.fontsDir == "" {
		return nil, nil
	}
	pattern := filepath.Join(s.m.fontsDir, "**", "*.{ttf,otf}")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("enumerate fonts: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, filepath.Base(match))
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}
