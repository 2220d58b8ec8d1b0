// Package plugin defines the track-playback contract. A plugin owns the
// display for the duration of one track: the layer starts it, messages
// flow to it while it plays, and it posts NextTrack when it is done.
package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/schedule"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// Track kinds; Kind tells a plugin which schedule entity the track came
// from.
const (
	KindPlaylist = "playlist"
	KindTimed    = "timed"
	KindTask     = "task"
)

// Track is the common currency handed to plugins. It flattens the three
// schedule entities into one shape.
type Track struct {
	Kind            string
	ID              string
	Title           string
	PluginName      string
	DurationMinutes int
	Content         map[string]any
}

// TrackFromPlaylist converts a playlist entry.
func TrackFromPlaylist(item schedule.PlaylistSchedule) Track {
	return Track{
		Kind:       KindPlaylist,
		ID:         item.ID,
		Title:      item.Title,
		PluginName: item.PluginName,
		Content:    item.Content,
	}
}

// TrackFromTimed converts a timed schedule item.
func TrackFromTimed(item schedule.PluginSchedule) Track {
	return Track{
		Kind:            KindTimed,
		ID:              item.ID,
		Title:           item.Title,
		PluginName:      item.PluginName,
		DurationMinutes: item.DurationMinutes,
		Content:         item.Content,
	}
}

// TrackFromTask converts a timer task item.
func TrackFromTask(item schedule.TimerTaskItem) Track {
	title := item.Task.Title
	if title == "" {
		title = item.Title
	}
	return Track{
		Kind:            KindTask,
		ID:              item.ID,
		Title:           title,
		PluginName:      item.Task.PluginName,
		DurationMinutes: item.Task.DurationMinutes,
		Content:         item.Task.Content,
	}
}

// Descriptor identifies a plugin on the API surface and seeds its default
// settings document on hard reset.
type Descriptor struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Defaults map[string]any `json:"-"`
}

// Plugin is the playback contract. Instances are owned by one layer and
// called only from that layer's worker.
type Plugin interface {
	Describe() Descriptor

	// Start begins playback of the track. The plugin posts NextTrack to
	// ctx.Services.Local when the track is finished.
	Start(ctx *services.ExecutionContext, track Track) error

	// Stop ends playback, cancelling any timers or futures the plugin
	// holds. Idempotent.
	Stop(ctx *services.ExecutionContext, track Track) error

	// Receive handles messages addressed to the plugin while playing.
	Receive(ctx *services.ExecutionContext, track Track, msg message.Message) error
}

// Factory constructs a fresh plugin instance.
type Factory func(logger *slog.Logger) Plugin

// Registry maps plugin ids to factories. Registration is init-time;
// layers instantiate per track.
type Registry struct {
	mu          sync.Mutex
	order       []string
	factories   map[string]Factory
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:   make(map[string]Factory),
		descriptors: make(map[string]Descriptor),
	}
}

// Register stores the factory under its descriptor id. The descriptor is
// taken from a probe instance so the two cannot drift.
func (r *Registry) Register(f Factory) error {
	if f == nil {
		return fmt.Errorf("register plugin: factory is required: %w", errs.ErrInvalidInput)
	}
	probe := f(nil)
	if probe == nil {
		return fmt.Errorf("register plugin: factory returned nil: %w", errs.ErrInvalidInput)
	}
	d := probe.Describe()
	if d.ID == "" {
		return fmt.Errorf("register plugin: descriptor id is required: %w", errs.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[d.ID]; exists {
		return fmt.Errorf("register plugin %q: already registered: %w", d.ID, errs.ErrInvalidInput)
	}
	r.order = append(r.order, d.ID)
	r.factories[d.ID] = f
	r.descriptors[d.ID] = d
	return nil
}

// New instantiates the plugin registered under id. Missing ids are an
// Unavailable error.
func (r *Registry) New(id string, logger *slog.Logger) (Plugin, error) {
	r.mu.Lock()
	f, ok := r.factories[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, errs.ErrUnavailable)
	}
	return f(logger), nil
}

// Descriptors returns every registered descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descriptors[id])
	}
	return out
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[id]
	return ok
}
