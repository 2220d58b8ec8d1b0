// Package datasource hosts the producers of state and images behind the
// plugins. A source declares its capabilities up front; the registry
// validates the declaration against the interfaces the source actually
// implements, so dispatch through the manager is total.
package datasource

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// Capabilities flags what a source can do. Every set flag must be backed
// by the matching interface and vice versa.
type Capabilities struct {
	Item    bool `json:"item"`
	List    bool `json:"list"`
	Render  bool `json:"render"`
	Receive bool `json:"receive"`
}

// Descriptor identifies a source on the API surface and seeds its
// default settings document on hard reset.
type Descriptor struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Capabilities Capabilities   `json:"capabilities"`
	Defaults     map[string]any `json:"-"`
}

// Source is the minimal contract; capabilities come as the optional
// interfaces below.
type Source interface {
	Describe() Descriptor
}

// ItemSource opens a session producing a single state item.
type ItemSource interface {
	OpenItem(ctx *services.ExecutionContext, params map[string]any) (any, error)
}

// ListSource opens a session producing an ordered list of state items.
type ListSource interface {
	OpenList(ctx *services.ExecutionContext, params map[string]any) ([]any, error)
}

// Renderer rasterizes one state item to the context's dimensions. A nil
// image means "nothing to show".
type Renderer interface {
	Render(ctx *services.ExecutionContext, params map[string]any, state any) (image.Image, error)
}

// Receiver accepts source-addressed messages.
type Receiver interface {
	Accept(msg message.Message) error
}

// Factory constructs a fresh source instance.
type Factory func(logger *slog.Logger) Source

// Registry maps source ids to factories. Registration is init-time; the
// manager instantiates lazily.
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

// Register validates the descriptor's capability flags against a probe
// instance and stores the factory. Duplicate ids and flag/interface
// mismatches are InvalidInput errors.
func (r *Registry) Register(d Descriptor, f Factory) error {
	if d.ID == "" || f == nil {
		return fmt.Errorf("register data source: id and factory are required: %w", errs.ErrInvalidInput)
	}
	probe := f(nil)
	if probe == nil {
		return fmt.Errorf("register data source %q: factory returned nil: %w", d.ID, errs.ErrInvalidInput)
	}
	if err := checkCapabilities(d, probe); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[d.ID]; exists {
		return fmt.Errorf("register data source %q: already registered: %w", d.ID, errs.ErrInvalidInput)
	}
	r.order = append(r.order, d.ID)
	r.factories[d.ID] = f
	r.descriptors[d.ID] = d
	return nil
}

func checkCapabilities(d Descriptor, probe Source) error {
	checks := []struct {
		name     string
		declared bool
		actual   bool
	}{
		{"item", d.Capabilities.Item, hasInterface[ItemSource](probe)},
		{"list", d.Capabilities.List, hasInterface[ListSource](probe)},
		{"render", d.Capabilities.Render, hasInterface[Renderer](probe)},
		{"receive", d.Capabilities.Receive, hasInterface[Receiver](probe)},
	}
	for _, c := range checks {
		if c.declared != c.actual {
			return fmt.Errorf("register data source %q: capability %q declared=%t implemented=%t: %w",
				d.ID, c.name, c.declared, c.actual, errs.ErrInvalidInput)
		}
	}
	return nil
}

func hasInterface[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

// New instantiates the source registered under id.
func (r *Registry) New(id string, logger *slog.Logger) (Source, error) {
	r.mu.Lock()
	f, ok := r.factories[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("data source %q: %w", id, errs.ErrUnavailable)
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
