// Package schedule models the persisted schedule documents (timed
// schedules, playlists, timer tasks, master schedule), their validation
// rules, and the trigger generators that decide when things fire.
//
// Entities are decoded from storage documents once per Configure and
// treated as immutable for the rest of the run.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// Document type URNs. Every schedule document carries one in its "type"
// field; loaders bucket by it.
const (
	TypeMaster   = "urn:inky:storage:schedule:master:1"
	TypeTimed    = "urn:inky:storage:schedule:timed:1"
	TypePlaylist = "urn:inky:storage:schedule:playlist:1"
	TypeTasks    = "urn:inky:storage:schedule:tasks:1"
)

// minutesPerDay bounds start offsets; durations may overflow into the
// next day.
const minutesPerDay = 24 * 60

// DayStart returns midnight of t's day in t's location.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ISOWeekday maps t to ISO weekday numbering, Monday=0 through Sunday=6.
func ISOWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// PluginSchedule is one timed item: a plugin shown from a start offset
// for a duration, both in minutes relative to midnight of the day being
// evaluated.
type PluginSchedule struct {
	PluginName      string         `json:"plugin_name"`
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	StartMinutes    int            `json:"start_minutes"`
	DurationMinutes int            `json:"duration_minutes"`
	Content         map[string]any `json:"content,omitempty"`
}

// Start anchors the item's window at the given day.
func (p PluginSchedule) Start(day time.Time) time.Time {
	return DayStart(day).Add(time.Duration(p.StartMinutes) * time.Minute)
}

// End is Start plus the duration; it may cross into the next day.
func (p PluginSchedule) End(day time.Time) time.Time {
	return p.Start(day).Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the two half-open windows [start,end)
// intersect.
func (p PluginSchedule) Overlaps(o PluginSchedule) bool {
	pEnd := p.StartMinutes + p.DurationMinutes
	oEnd := o.StartMinutes + o.DurationMinutes
	return p.StartMinutes < oEnd && o.StartMinutes < pEnd
}

// Validate checks the item's own fields.
func (p PluginSchedule) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("timed item: id is required: %w", errs.ErrInvalidInput)
	}
	if p.PluginName == "" {
		return fmt.Errorf("timed item %q: plugin_name is required: %w", p.ID, errs.ErrInvalidInput)
	}
	if p.StartMinutes < 0 || p.StartMinutes >= minutesPerDay {
		return fmt.Errorf("timed item %q: start_minutes %d out of range: %w", p.ID, p.StartMinutes, errs.ErrInvalidInput)
	}
	if p.DurationMinutes <= 0 {
		return fmt.Errorf("timed item %q: duration_minutes must be positive: %w", p.ID, errs.ErrInvalidInput)
	}
	return nil
}

// TimedSchedule is an ordered set of PluginSchedule items keyed by id.
type TimedSchedule struct {
	Type  string           `json:"type"`
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Items []PluginSchedule `json:"items"`
}

// SortedItems returns the items ordered by start offset. The receiver's
// slice is not modified.
func (s *TimedSchedule) SortedItems() []PluginSchedule {
	items := make([]PluginSchedule, len(s.Items))
	copy(items, s.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartMinutes < items[j].StartMinutes
	})
	return items
}

// Current returns the item whose window contains t, anchored at t's day.
// When overlapping items both contain t, the later start wins. Nil when
// no window contains t.
func (s *TimedSchedule) Current(t time.Time) *PluginSchedule {
	var best *PluginSchedule
	for i := range s.Items {
		item := &s.Items[i]
		if t.Before(item.Start(t)) || !t.Before(item.End(t)) {
			continue
		}
		if best == nil || item.StartMinutes > best.StartMinutes {
			best = item
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// Check returns the first existing item (in start order) that overlaps
// the candidate's window, or nil when the candidate fits. The candidate
// never conflicts with the item sharing its id, so updates check cleanly
// against themselves.
func (s *TimedSchedule) Check(candidate PluginSchedule) *PluginSchedule {
	for _, item := range s.SortedItems() {
		if item.ID == candidate.ID {
			continue
		}
		if item.Overlaps(candidate) {
			out := item
			return &out
		}
	}
	return nil
}

// Validate checks item fields, id uniqueness, and pairwise overlap.
func (s *TimedSchedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("timed schedule: id is required: %w", errs.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(s.Items))
	for _, item := range s.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("timed schedule %q: %w", s.ID, err)
		}
		if seen[item.ID] {
			return fmt.Errorf("timed schedule %q: duplicate item id %q: %w", s.ID, item.ID, errs.ErrInvalidInput)
		}
		seen[item.ID] = true
	}
	sorted := s.SortedItems()
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Overlaps(sorted[j]) {
				return fmt.Errorf("timed schedule %q: items %q and %q overlap: %w",
					s.ID, sorted[i].ID, sorted[j].ID, errs.ErrInvalidInput)
			}
		}
	}
	return nil
}

// PlaylistSchedule is one playlist entry: a plugin plus its content.
type PlaylistSchedule struct {
	PluginName string         `json:"plugin_name"`
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Content    map[string]any `json:"content,omitempty"`
}

// Playlist is an ordered list of entries advanced linearly by the
// playlist layer.
type Playlist struct {
	Type  string             `json:"type"`
	ID    string             `json:"id"`
	Name  string             `json:"name"`
	Items []PlaylistSchedule `json:"items"`
}

// Validate checks id uniqueness and entry fields.
func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playlist: id is required: %w", errs.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(p.Items))
	for _, item := range p.Items {
		if item.ID == "" {
			return fmt.Errorf("playlist %q: item id is required: %w", p.ID, errs.ErrInvalidInput)
		}
		if item.PluginName == "" {
			return fmt.Errorf("playlist %q: item %q: plugin_name is required: %w", p.ID, item.ID, errs.ErrInvalidInput)
		}
		if seen[item.ID] {
			return fmt.Errorf("playlist %q: duplicate item id %q: %w", p.ID, item.ID, errs.ErrInvalidInput)
		}
		seen[item.ID] = true
	}
	return nil
}
