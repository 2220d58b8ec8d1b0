package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/escape-llc/eink-billboard/internal/errs"
)

// Set is the full schedule state loaded for one run: the master schedule
// plus every timed schedule, playlist, and timer-task group, bucketed by
// type URN.
type Set struct {
	Master    *MasterSchedule
	Timed     []*TimedSchedule
	Playlists []*Playlist
	Tasks     []*TimerTasks
}

// NewSet buckets and decodes stored schedule documents. Documents
// without a recognized type URN are skipped; the first master document
// wins. The set is not validated; call Validate separately so loading
// and validation failures stay distinguishable.
func NewSet(docs []map[string]any) (*Set, error) {
	set := &Set{}
	for _, doc := range docs {
		urn, _ := doc["type"].(string)
		switch urn {
		case TypeMaster:
			if set.Master != nil {
				continue
			}
			master, err := Decode[MasterSchedule](doc)
			if err != nil {
				return nil, err
			}
			set.Master = master
		case TypeTimed:
			timed, err := Decode[TimedSchedule](doc)
			if err != nil {
				return nil, err
			}
			set.Timed = append(set.Timed, timed)
		case TypePlaylist:
			playlist, err := Decode[Playlist](doc)
			if err != nil {
				return nil, err
			}
			set.Playlists = append(set.Playlists, playlist)
		case TypeTasks:
			tasks, err := Decode[TimerTasks](doc)
			if err != nil {
				return nil, err
			}
			set.Tasks = append(set.Tasks, tasks)
		}
	}
	return set, nil
}

// Validate checks every entity and the master schedule's references.
func (s *Set) Validate() error {
	for _, timed := range s.Timed {
		if err := timed.Validate(); err != nil {
			return err
		}
	}
	for _, playlist := range s.Playlists {
		if err := playlist.Validate(); err != nil {
			return err
		}
	}
	for _, tasks := range s.Tasks {
		if err := tasks.Validate(); err != nil {
			return err
		}
	}
	if s.Master == nil {
		return fmt.Errorf("master schedule is missing: %w", errs.ErrInvalidInput)
	}
	return s.Master.Validate(func(ref string) bool {
		return s.TimedByRef(ref) != nil
	})
}

// TimedByRef resolves a master-schedule reference against the timed
// schedules, matching id first and name second.
func (s *Set) TimedByRef(ref string) *TimedSchedule {
	for _, timed := range s.Timed {
		if timed.ID == ref {
			return timed
		}
	}
	for _, timed := range s.Timed {
		if timed.Name == ref {
			return timed
		}
	}
	return nil
}

// PlaylistByRef resolves a playlist by id, then name.
func (s *Set) PlaylistByRef(ref string) *Playlist {
	for _, playlist := range s.Playlists {
		if playlist.ID == ref {
			return playlist
		}
	}
	for _, playlist := range s.Playlists {
		if playlist.Name == ref {
			return playlist
		}
	}
	return nil
}

// EnabledTasks flattens the enabled timer-task items across every group.
func (s *Set) EnabledTasks() []TimerTaskItem {
	var out []TimerTaskItem
	for _, tasks := range s.Tasks {
		out = append(out, tasks.EnabledItems()...)
	}
	return out
}

// Decode converts a stored document into a typed schedule entity via a
// JSON round trip, so the wire shape is defined entirely by the struct
// tags.
func Decode[T any](doc map[string]any) (*T, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schedule document: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schedule document: %w: %w", err, errs.ErrInvalidInput)
	}
	return &out, nil
}

// Document converts a typed schedule entity back into document form.
func Document(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode schedule entity: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("reparse schedule entity: %w", err)
	}
	return out, nil
}
