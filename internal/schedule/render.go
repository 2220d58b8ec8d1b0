package schedule

import (
	"fmt"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// RenderedItem is one timed item flattened to absolute timestamps.
type RenderedItem struct {
	PluginName string    `json:"plugin_name"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// RenderedDay is the schedule in force for one day of the window.
type RenderedDay struct {
	Date       string         `json:"date"`
	ScheduleID string         `json:"schedule_id"`
	Items      []RenderedItem `json:"items"`
}

// RenderWindow is the flattened view served by the render endpoint: one
// entry per day plus the referenced schedule documents keyed by id.
type RenderWindow struct {
	Start     string                    `json:"start"`
	Days      []RenderedDay             `json:"days"`
	Schedules map[string]*TimedSchedule `json:"schedules"`
}

// Render flattens the window starting at start's day, spanning the given
// number of days. Each day is resolved through the master schedule at
// day granularity and its timed items are anchored to that day.
func (s *Set) Render(start time.Time, days int) (*RenderWindow, error) {
	if days <= 0 {
		return nil, fmt.Errorf("render window: days must be positive: %w", errs.ErrInvalidInput)
	}
	if s.Master == nil {
		return nil, fmt.Errorf("render window: master schedule is missing: %w", errs.ErrInvalidInput)
	}

	window := &RenderWindow{
		Start:     DayStart(start).Format("2006-01-02"),
		Days:      make([]RenderedDay, 0, days),
		Schedules: make(map[string]*TimedSchedule),
	}
	for i := 0; i < days; i++ {
		day := DayStart(start).AddDate(0, 0, i)
		ref := s.Master.EvaluateDay(day)
		timed := s.TimedByRef(ref)
		if timed == nil {
			return nil, fmt.Errorf("render window: schedule %q is unknown: %w", ref, errs.ErrInvalidInput)
		}
		rendered := RenderedDay{
			Date:       day.Format("2006-01-02"),
			ScheduleID: timed.ID,
		}
		for _, item := range timed.SortedItems() {
			rendered.Items = append(rendered.Items, RenderedItem{
				PluginName: item.PluginName,
				ID:         item.ID,
				Title:      item.Title,
				Start:      item.Start(day),
				End:        item.End(day),
			})
		}
		window.Schedules[timed.ID] = timed
		window.Days = append(window.Days, rendered)
	}
	return window, nil
}
