package schedule

import (
	"fmt"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// MasterEntry is one row of the master schedule: a named, toggleable
// reference to a timed schedule plus the trigger that selects it.
type MasterEntry struct {
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	Schedule string   `json:"schedule"`
	Trigger  *Trigger `json:"trigger,omitempty"`
}

// MasterSchedule decides which timed schedule is in force at any moment.
// Entries are evaluated in declared order; the first enabled entry whose
// trigger matches wins, otherwise DefaultSchedule applies.
type MasterSchedule struct {
	Type            string        `json:"type"`
	DefaultSchedule string        `json:"defaultSchedule"`
	Schedules       []MasterEntry `json:"schedules"`
}

// Evaluate returns the schedule reference in force at instant t.
func (m *MasterSchedule) Evaluate(t time.Time) string {
	for _, entry := range m.Schedules {
		if entry.Enabled && entry.Trigger.MatchesInstant(t) {
			return entry.Schedule
		}
	}
	return m.DefaultSchedule
}

// EvaluateDay returns the schedule reference in force on the given day,
// considering only day-level constraints. The render window uses this.
func (m *MasterSchedule) EvaluateDay(day time.Time) string {
	for _, entry := range m.Schedules {
		if entry.Enabled && entry.Trigger.MatchesDay(day) {
			return entry.Schedule
		}
	}
	return m.DefaultSchedule
}

// Validate checks that every schedule reference, including the default,
// resolves against the provided resolver.
func (m *MasterSchedule) Validate(resolves func(ref string) bool) error {
	if m.DefaultSchedule == "" {
		return fmt.Errorf("master schedule: defaultSchedule is required: %w", errs.ErrInvalidInput)
	}
	if !resolves(m.DefaultSchedule) {
		return fmt.Errorf("master schedule: defaultSchedule %q is unknown: %w", m.DefaultSchedule, errs.ErrInvalidInput)
	}
	for _, entry := range m.Schedules {
		if entry.Schedule == "" {
			return fmt.Errorf("master schedule entry %q: schedule reference is required: %w", entry.Name, errs.ErrInvalidInput)
		}
		if !resolves(entry.Schedule) {
			return fmt.Errorf("master schedule entry %q: schedule %q is unknown: %w", entry.Name, entry.Schedule, errs.ErrInvalidInput)
		}
	}
	return nil
}
