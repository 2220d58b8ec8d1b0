package schedule

import (
	"iter"
	"sort"
	"time"
)

// GenerateTriggerTime yields the firing instants after now that match
// cfg, in increasing order. For the hourly type it emits every
// (hour, minute) combination from cfg.Minutes, first for the remainder
// of now's day and then day by day without end. Unknown or unsatisfiable
// configurations yield nothing.
//
// The sequence is lazy; callers take the first N or stop at a cutoff.
func GenerateTriggerTime(now time.Time, cfg *TimeTrigger) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if cfg == nil || cfg.Type != TimeTypeHourly {
			return
		}
		minutes := normalizeMinutes(cfg.Minutes)
		if len(minutes) == 0 {
			return
		}
		after := now.Truncate(time.Minute)
		for day := DayStart(after); ; day = day.AddDate(0, 0, 1) {
			for hour := 0; hour < 24; hour++ {
				for _, minute := range minutes {
					at := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
					if !at.After(after) {
						continue
					}
					if !yield(at) {
						return
					}
				}
			}
		}
	}
}

// GenerateSchedule intersects the trigger's day constraint with its time
// constraint: the time generator's instants, filtered to permitted
// weekdays. A trigger without a time constraint yields nothing; a day
// constraint of an unknown type or with no valid days yields nothing.
func GenerateSchedule(now time.Time, trigger *Trigger) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if trigger == nil || trigger.Time == nil {
			return
		}
		days, ok := allowedDays(trigger.Day)
		if !ok {
			return
		}
		for at := range GenerateTriggerTime(now, trigger.Time) {
			if days != nil && !days[ISOWeekday(at)] {
				continue
			}
			if !yield(at) {
				return
			}
		}
	}
}

// NextFire returns the earliest instant after now at which the trigger
// fires, or false when the trigger is unsatisfiable.
func NextFire(now time.Time, trigger *Trigger) (time.Time, bool) {
	for at := range GenerateSchedule(now, trigger) {
		return at, true
	}
	return time.Time{}, false
}

// MatchesDay reports whether the trigger permits the given day. A nil
// trigger never matches; a trigger without a day constraint matches
// every day. Time constraints are ignored at day granularity.
func (t *Trigger) MatchesDay(day time.Time) bool {
	if t == nil {
		return false
	}
	days, ok := allowedDays(t.Day)
	if !ok {
		return false
	}
	return days == nil || days[ISOWeekday(day)]
}

// MatchesInstant reports whether the trigger fires exactly at the given
// minute. Without a time constraint it degrades to day matching.
func (t *Trigger) MatchesInstant(at time.Time) bool {
	if t == nil {
		return false
	}
	if !t.MatchesDay(at) {
		return false
	}
	if t.Time == nil {
		return true
	}
	at = at.Truncate(time.Minute)
	next, ok := NextFire(at.Add(-time.Minute), t)
	return ok && next.Equal(at)
}

// allowedDays resolves a day constraint into a weekday set. Nil set with
// ok=true means unconstrained; ok=false means the constraint can never
// be satisfied.
func allowedDays(cfg *DayTrigger) (map[int]bool, bool) {
	if cfg == nil {
		return nil, true
	}
	if cfg.Type != DayTypeDayOfWeek {
		return nil, false
	}
	days := make(map[int]bool, len(cfg.Days))
	for _, d := range cfg.Days {
		if d >= 0 && d <= 6 {
			days[d] = true
		}
	}
	if len(days) == 0 {
		return nil, false
	}
	return days, true
}

// normalizeMinutes sorts, bounds, and de-duplicates minute offsets.
func normalizeMinutes(minutes []int) []int {
	out := make([]int, 0, len(minutes))
	seen := make(map[int]bool, len(minutes))
	for _, m := range minutes {
		if m < 0 || m > 59 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}
