package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

func doc(v any) map[string]any {
	out, err := Document(v)
	if err != nil {
		panic(err)
	}
	return out
}

func TestNewSetBuckets(t *testing.T) {
	docs := []map[string]any{
		doc(MasterSchedule{Type: TypeMaster, DefaultSchedule: "day"}),
		doc(TimedSchedule{Type: TypeTimed, ID: "day", Name: "Day"}),
		doc(Playlist{Type: TypePlaylist, ID: "demo", Name: "Demo"}),
		doc(TimerTasks{Type: TypeTasks, ID: "tasks"}),
		{"type": "urn:inky:storage:unknown:1", "id": "skipped"},
		{"id": "untyped"},
	}
	set, err := NewSet(docs)
	if err != nil {
		t.Fatal(err)
	}
	if set.Master == nil || set.Master.DefaultSchedule != "day" {
		t.Errorf("master = %+v", set.Master)
	}
	if len(set.Timed) != 1 || len(set.Playlists) != 1 || len(set.Tasks) != 1 {
		t.Errorf("buckets = %d/%d/%d", len(set.Timed), len(set.Playlists), len(set.Tasks))
	}
}

func TestNewSetFirstMasterWins(t *testing.T) {
	set, err := NewSet([]map[string]any{
		doc(MasterSchedule{Type: TypeMaster, DefaultSchedule: "first"}),
		doc(MasterSchedule{Type: TypeMaster, DefaultSchedule: "second"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if set.Master.DefaultSchedule != "first" {
		t.Errorf("DefaultSchedule = %q", set.Master.DefaultSchedule)
	}
}

func TestSetValidate(t *testing.T) {
	valid := func() *Set {
		return &Set{
			Master: &MasterSchedule{DefaultSchedule: "day"},
			Timed: []*TimedSchedule{{
				ID: "day",
				Items: []PluginSchedule{
					{PluginName: "debug", ID: "am", StartMinutes: 0, DurationMinutes: 720},
					{PluginName: "debug", ID: "pm", StartMinutes: 720, DurationMinutes: 720},
				},
			}},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Set)
	}{
		{"missing master", func(s *Set) { s.Master = nil }},
		{"unknown default ref", func(s *Set) { s.Master.DefaultSchedule = "nope" }},
		{"unknown entry ref", func(s *Set) {
			s.Master.Schedules = []MasterEntry{{Name: "x", Enabled: true, Schedule: "nope"}}
		}},
		{"overlapping items", func(s *Set) {
			s.Timed[0].Items[1].StartMinutes = 300
		}},
		{"duplicate item ids", func(s *Set) {
			s.Timed[0].Items[1].ID = "am"
		}},
		{"invalid playlist", func(s *Set) {
			s.Playlists = []*Playlist{{ID: "p", Items: []PlaylistSchedule{{ID: "x"}}}}
		}},
		{"invalid task", func(s *Set) {
			s.Tasks = []*TimerTasks{{ID: "t", Items: []TimerTaskItem{{ID: "x"}}}}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, errs.ErrInvalidInput) {
				t.Errorf("error %v is not classified as invalid input", err)
			}
		})
	}
}

func TestRefResolutionPrefersID(t *testing.T) {
	set := &Set{
		Timed: []*TimedSchedule{
			{ID: "a", Name: "b"},
			{ID: "b", Name: "other"},
		},
		Playlists: []*Playlist{
			{ID: "p1", Name: "p2"},
			{ID: "p2", Name: "other"},
		},
	}
	// "b" matches both a schedule's name and another's id; id wins.
	if got := set.TimedByRef("b"); got == nil || got.ID != "b" {
		t.Errorf("TimedByRef(b) = %+v", got)
	}
	if got := set.TimedByRef("missing"); got != nil {
		t.Errorf("TimedByRef(missing) = %+v", got)
	}
	if got := set.PlaylistByRef("p2"); got == nil || got.ID != "p2" {
		t.Errorf("PlaylistByRef(p2) = %+v", got)
	}
}

func TestEnabledTasks(t *testing.T) {
	set := &Set{Tasks: []*TimerTasks{
		{ID: "g1", Items: []TimerTaskItem{
			{ID: "on", Enabled: true},
			{ID: "off", Enabled: false},
		}},
		{ID: "g2", Items: []TimerTaskItem{
			{ID: "also", Enabled: true},
		}},
	}}
	got := set.EnabledTasks()
	if len(got) != 2 || got[0].ID != "on" || got[1].ID != "also" {
		t.Errorf("EnabledTasks = %+v", got)
	}
}

func TestTimedScheduleCurrent(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &TimedSchedule{ID: "s", Items: []PluginSchedule{
		{ID: "morning", StartMinutes: 0, DurationMinutes: 720},
		{ID: "overlay", StartMinutes: 600, DurationMinutes: 60},
	}}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"window start is inclusive", day, "morning"},
		{"later start wins on overlap", day.Add(10*time.Hour + 30*time.Minute), "overlay"},
		{"back to base after overlay", day.Add(11 * time.Hour), "morning"},
		{"window end is exclusive", day.Add(12 * time.Hour), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Current(tc.at)
			switch {
			case tc.want == "" && got != nil:
				t.Errorf("Current = %+v, want nil", got)
			case tc.want != "" && (got == nil || got.ID != tc.want):
				t.Errorf("Current = %+v, want %q", got, tc.want)
			}
		})
	}
}

func TestMasterScheduleEvaluate(t *testing.T) {
	m := &MasterSchedule{
		DefaultSchedule: "base",
		Schedules: []MasterEntry{
			{Name: "disabled", Enabled: false, Schedule: "never", Trigger: &Trigger{
				Day: &DayTrigger{Type: DayTypeDayOfWeek, Days: []int{0, 1, 2, 3, 4, 5, 6}},
			}},
			{Name: "weekend", Enabled: true, Schedule: "weekend", Trigger: &Trigger{
				Day: &DayTrigger{Type: DayTypeDayOfWeek, Days: []int{5, 6}},
			}},
		},
	}

	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)

	if got := m.Evaluate(monday); got != "base" {
		t.Errorf("Evaluate(monday) = %q", got)
	}
	if got := m.Evaluate(saturday); got != "weekend" {
		t.Errorf("Evaluate(saturday) = %q", got)
	}
	if got := m.EvaluateDay(saturday); got != "weekend" {
		t.Errorf("EvaluateDay(saturday) = %q", got)
	}
}

func TestSetRender(t *testing.T) {
	set := &Set{
		Master: &MasterSchedule{
			DefaultSchedule: "weekday",
			Schedules: []MasterEntry{{
				Name: "weekend", Enabled: true, Schedule: "weekend",
				Trigger: &Trigger{Day: &DayTrigger{Type: DayTypeDayOfWeek, Days: []int{5, 6}}},
			}},
		},
		Timed: []*TimedSchedule{
			{ID: "weekday", Items: []PluginSchedule{
				// Starts late and runs across midnight.
				{PluginName: "debug", ID: "night", Title: "Night", StartMinutes: 1380, DurationMinutes: 120},
			}},
			{ID: "weekend"},
		},
	}

	// 2024-01-01 is a Monday.
	start := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	window, err := set.Render(start, 7)
	if err != nil {
		t.Fatal(err)
	}
	if window.Start != "2024-01-01" {
		t.Errorf("Start = %q", window.Start)
	}
	if len(window.Days) != 7 {
		t.Fatalf("days = %d", len(window.Days))
	}
	for i, day := range window.Days {
		want := "weekday"
		if i >= 5 {
			want = "weekend"
		}
		if day.ScheduleID != want {
			t.Errorf("day %d: schedule = %q, want %q", i, day.ScheduleID, want)
		}
	}

	item := window.Days[0].Items[0]
	if got := item.Start; !got.Equal(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("item start = %v", got)
	}
	if got := item.End; !got.Equal(time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("item end = %v", got)
	}
	if len(window.Schedules) != 2 {
		t.Errorf("schedules map = %v", window.Schedules)
	}

	if _, err := set.Render(start, 0); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("days=0: err = %v", err)
	}
	if _, err := (&Set{}).Render(start, 1); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("missing master: err = %v", err)
	}
	broken := &Set{Master: &MasterSchedule{DefaultSchedule: "nope"}}
	if _, err := broken.Render(start, 1); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("unknown ref: err = %v", err)
	}
}
