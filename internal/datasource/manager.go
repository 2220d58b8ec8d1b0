package datasource

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// DefaultTimeout bounds Open/Render calls that do not carry their own
// timeoutSeconds parameter.
const DefaultTimeout = 10 * time.Second

// Manager hosts the live source instances behind a bounded worker pool.
// One instance exists per source id for the manager's lifetime; calls
// run on pool slots so a slow source cannot stall its caller past the
// per-call timeout.
type Manager struct {
	reg    *Registry
	logger *slog.Logger
	sem    *semaphore.Weighted
	slots  int64

	mu        sync.Mutex
	instances map[string]Source
	closed    bool
}

var _ services.DataSources = (*Manager)(nil)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Registry supplies the source factories. Required.
	Registry *Registry

	// Parallel bounds concurrent Open/Render calls. Defaults to 2.
	Parallel int

	// Logger for call failures. Nil discards.
	Logger *slog.Logger
}

// NewManager creates the manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("data source manager: registry is required: %w", errs.ErrInvalidInput)
	}
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = 2
	}
	return &Manager{
		reg:       cfg.Registry,
		logger:    logging.Default(cfg.Logger).With("component", "datasource"),
		sem:       semaphore.NewWeighted(int64(parallel)),
		slots:     int64(parallel),
		instances: make(map[string]Source),
	}, nil
}

// get returns the live instance for id, creating it on first use.
func (m *Manager) get(id string) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("data source manager: %w", errs.ErrClosed)
	}
	if src, ok := m.instances[id]; ok {
		return src, nil
	}
	src, err := m.reg.New(id, m.logger)
	if err != nil {
		return nil, err
	}
	m.instances[id] = src
	return src, nil
}

// Open starts a session with the named source. List sources return their
// item list as the state; item sources return a single item.
func (m *Manager) Open(ctx *services.ExecutionContext, id string, params map[string]any) (any, error) {
	src, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return m.call(id, params, func() (any, error) {
		if ls, ok := src.(ListSource); ok {
			items, err := ls.OpenList(ctx, params)
			if err != nil {
				return nil, err
			}
			return items, nil
		}
		if is, ok := src.(ItemSource); ok {
			return is.OpenItem(ctx, params)
		}
		return nil, fmt.Errorf("data source %q: not openable: %w", id, errs.ErrUnavailable)
	})
}

// Render rasterizes one state item via the named source.
func (m *Manager) Render(ctx *services.ExecutionContext, id string, params map[string]any, state any) (image.Image, error) {
	src, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out, err := m.call(id, params, func() (any, error) {
		r, ok := src.(Renderer)
		if !ok {
			return nil, fmt.Errorf("data source %q: not renderable: %w", id, errs.ErrUnavailable)
		}
		return r.Render(ctx, params, state)
	})
	if err != nil {
		return nil, err
	}
	img, _ := out.(image.Image)
	return img, nil
}

// Accept routes a source-addressed message to its receiver. The message
// must be a PluginReceive tagged with a SourceID.
func (m *Manager) Accept(msg message.Message) error {
	pr, ok := msg.(message.PluginReceive)
	if !ok || pr.SourceID == "" {
		return fmt.Errorf("data source manager: message is not source-addressed: %w", errs.ErrInvalidInput)
	}
	src, err := m.get(pr.SourceID)
	if err != nil {
		return err
	}
	recv, ok := src.(Receiver)
	if !ok {
		return fmt.Errorf("data source %q: does not receive: %w", pr.SourceID, errs.ErrUnavailable)
	}
	return recv.Accept(msg)
}

type outcome struct {
	value any
	err   error
}

// call runs fn on a pool slot, bounded by the per-call timeout. A call
// that outlives its timeout keeps its slot until it returns; the caller
// gets ErrTimeout immediately.
func (m *Manager) call(id string, params map[string]any, fn func() (any, error)) (any, error) {
	timeout := Timeout(params)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("data source %q: pool saturated for %s: %w", id, timeout, errs.ErrTimeout)
	}

	ch := make(chan outcome, 1)
	go func() {
		defer m.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("data source %q: panic: %v: %w", id, r, errs.ErrInternal)}
			}
		}()
		v, err := fn()
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("data source %q: call exceeded %s: %w", id, timeout, errs.ErrTimeout)
	}
}

// Timeout extracts the per-call timeout from params, defaulting to
// DefaultTimeout. JSON numbers decode as float64.
func Timeout(params map[string]any) time.Duration {
	if params == nil {
		return DefaultTimeout
	}
	switch v := params["timeoutSeconds"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return DefaultTimeout
}

// Shutdown closes the manager and waits for in-flight calls to release
// their pool slots.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.instances = make(map[string]Source)
	m.mu.Unlock()

	// Draining the semaphore waits out every in-flight call.
	if err := m.sem.Acquire(context.Background(), m.slots); err == nil {
		m.sem.Release(m.slots)
	}
}
