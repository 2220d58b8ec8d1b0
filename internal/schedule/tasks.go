package schedule

import (
	"fmt"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// Trigger type discriminators.
const (
	DayTypeDayOfWeek = "dayofweek"
	TimeTypeHourly   = "hourly"
)

// DayTrigger restricts firing to a set of ISO weekdays (Monday=0).
type DayTrigger struct {
	Type string `json:"type"`
	Days []int  `json:"days,omitempty"`
}

// TimeTrigger selects intra-day firing instants. For the hourly type,
// Minutes lists the minute offsets fired every hour.
type TimeTrigger struct {
	Type    string `json:"type"`
	Minutes []int  `json:"minutes,omitempty"`
}

// Trigger combines an optional startup flag with optional day and time
// constraints. A nil Trigger never fires.
type Trigger struct {
	OnStartup bool         `json:"on_startup,omitempty"`
	Day       *DayTrigger  `json:"day,omitempty"`
	Time      *TimeTrigger `json:"time,omitempty"`
}

// TimerTask describes what runs when a timer item fires: which plugin,
// for how long, with what content.
type TimerTask struct {
	PluginName      string         `json:"plugin_name"`
	Title           string         `json:"title,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	Content         map[string]any `json:"content,omitempty"`
}

// TimerTaskItem binds a task to its trigger.
type TimerTaskItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	Task        TimerTask `json:"task"`
	Trigger     *Trigger  `json:"trigger,omitempty"`
}

// TimerTasks is a stored group of timer task items.
type TimerTasks struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Items []TimerTaskItem `json:"items"`
}

// Validate checks id uniqueness and task fields.
func (t *TimerTasks) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("timer tasks: id is required: %w", errs.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(t.Items))
	for _, item := range t.Items {
		if item.ID == "" {
			return fmt.Errorf("timer tasks %q: item id is required: %w", t.ID, errs.ErrInvalidInput)
		}
		if seen[item.ID] {
			return fmt.Errorf("timer tasks %q: duplicate item id %q: %w", t.ID, item.ID, errs.ErrInvalidInput)
		}
		seen[item.ID] = true
		if item.Task.PluginName == "" {
			return fmt.Errorf("timer tasks %q: item %q: task plugin_name is required: %w", t.ID, item.ID, errs.ErrInvalidInput)
		}
		if item.Task.DurationMinutes <= 0 {
			return fmt.Errorf("timer tasks %q: item %q: task duration_minutes must be positive: %w", t.ID, item.ID, errs.ErrInvalidInput)
		}
	}
	return nil
}

// EnabledItems returns the items eligible for firing.
func (t *TimerTasks) EnabledItems() []TimerTaskItem {
	var out []TimerTaskItem
	for _, item := range t.Items {
		if item.Enabled {
			out = append(out, item)
		}
	}
	return out
}
