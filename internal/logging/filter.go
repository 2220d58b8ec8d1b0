package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentFilterHandler filters records by per-component log level.
// Components identify themselves with a "component" attribute, attached
// either per-record or once via Logger.With at construction time. Records
// without a component attribute use the default level.
//
// Levels can be changed at runtime (SetLevel/ClearLevel), so one noisy
// component can be turned up to debug without flooding the log with
// everything else. Level changes apply to every logger derived from the
// handler, no matter when it was derived.
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level

	mu     sync.RWMutex
	levels map[string]slog.Level
}

// NewComponentFilterHandler wraps next with per-component level filtering.
// Records below defaultLevel are dropped unless their component has an
// explicit level set.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next:         next,
		defaultLevel: defaultLevel,
		levels:       make(map[string]slog.Level),
	}
}

// SetDefaultLevel changes the level applied to components without an
// override.
func (h *ComponentFilterHandler) SetDefaultLevel(level slog.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultLevel = level
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels[component] = level
}

// ClearLevel removes a component override, restoring the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.levels, component)
}

// Level reports the effective minimum level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if level, ok := h.levels[component]; ok {
		return level
	}
	return h.defaultLevel
}

// DefaultLevel reports the level applied to components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.defaultLevel
}

// Enabled reports whether any component could log at this level. The
// per-record decision happens in Handle, where attributes are visible.
func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if level >= h.defaultLevel {
		return true
	}
	for _, l := range h.levels {
		if level >= l {
			return true
		}
	}
	return false
}

// Handle forwards the record when it clears its component's level.
func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handle(ctx, r, nil)
}

// WithAttrs returns a derived handler that remembers attrs for component
// lookup and forwards them to the wrapped handler.
func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(nil).WithAttrs(attrs)
}

// WithGroup returns a derived handler that forwards the group to the
// wrapped handler while keeping filtering behavior.
func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	return h.derive(nil).WithGroup(name)
}

// handle applies the filter using the record's component attribute,
// falling back to preAttrs collected from WithAttrs.
func (h *ComponentFilterHandler) handle(ctx context.Context, r slog.Record, preAttrs []slog.Attr) error {
	component := recordComponent(r, preAttrs)
	if r.Level < h.Level(component) {
		return nil
	}
	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// derive builds the scoped view sharing this handler's level table.
func (h *ComponentFilterHandler) derive(preAttrs []slog.Attr) *scopedFilter {
	return &scopedFilter{root: h, next: h.next, preAttrs: preAttrs}
}

// recordComponent extracts the "component" attribute from the record,
// falling back to attributes attached earlier via WithAttrs.
func recordComponent(r slog.Record, preAttrs []slog.Attr) string {
	var component string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	if component != "" {
		return component
	}
	for _, a := range preAttrs {
		if a.Key == "component" {
			return a.Value.String()
		}
	}
	return ""
}

// scopedFilter is a derived view of a ComponentFilterHandler. It carries
// its own wrapped handler state (attrs, groups) but consults the root for
// levels, so SetLevel reaches loggers derived before the call.
type scopedFilter struct {
	root     *ComponentFilterHandler
	next     slog.Handler
	preAttrs []slog.Attr
}

func (s *scopedFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return s.root.Enabled(ctx, level)
}

func (s *scopedFilter) Handle(ctx context.Context, r slog.Record) error {
	component := recordComponent(r, s.preAttrs)
	if r.Level < s.root.Level(component) {
		return nil
	}
	if s.next == nil {
		return nil
	}
	return s.next.Handle(ctx, r)
}

func (s *scopedFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	pre := make([]slog.Attr, 0, len(s.preAttrs)+len(attrs))
	pre = append(pre, s.preAttrs...)
	pre = append(pre, attrs...)
	next := s.next
	if next != nil {
		next = next.WithAttrs(attrs)
	}
	return &scopedFilter{root: s.root, next: next, preAttrs: pre}
}

func (s *scopedFilter) WithGroup(name string) slog.Handler {
	next := s.next
	if next != nil {
		next = next.WithGroup(name)
	}
	return &scopedFilter{root: s.root, next: next, preAttrs: s.preAttrs}
}
