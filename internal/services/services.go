// Package services defines the typed service provider handed to plugins
// and data sources, and the execution context that scopes one track
// selection: the provider plus the target dimensions and the logical
// timestamp the content is rendered for.
package services

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/future"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/timer"
)

// DataSources is the manager surface plugins use. Implemented by
// datasource.Manager; declared here so the context and the manager can
// reference each other across packages.
type DataSources interface {
	// Open starts a session with the named source and returns its
	// opaque state.
	Open(ctx *ExecutionContext, id string, params map[string]any) (any, error)

	// Render rasterizes one state item to the context's dimensions.
	// A nil image means "nothing to show".
	Render(ctx *ExecutionContext, id string, params map[string]any, state any) (image.Image, error)

	// Accept routes a source-addressed message to its receiver.
	Accept(msg message.Message) error
}

// Timers is the delayed-delivery surface. Implemented by timer.Service.
type Timers interface {
	Create(delta time.Duration, sink message.Sink, msg message.Message) (*timer.Result, timer.CancelFunc, error)
}

// Futures is the off-worker submission surface. Implemented by
// future.Submitter.
type Futures interface {
	Submit(work future.Work, cont future.Continuation) (uuid.UUID, future.CancelFunc, error)
}

// Container is the service provider with typed slots. The owning layer
// populates it once per Configure; plugins treat it as read-only.
type Container struct {
	// Required slots.
	Config  *config.Manager
	Setting *config.Settings
	Sources DataSources
	Router  *message.Router
	Timers  Timers
	Futures Futures
	Clock   clock.Clock

	// Local is the owning layer's mailbox; plugins post NextTrack and
	// self-addressed messages here. Required.
	Local message.Sink

	// Optional slots.
	Static *config.Static
}

// Validate checks the required slots.
func (c *Container) Validate() error {
	missing := ""
	switch {
	case c.Config == nil:
		missing = "configuration manager"
	case c.Setting == nil:
		missing = "settings manager"
	case c.Sources == nil:
		missing = "data source manager"
	case c.Router == nil:
		missing = "message router"
	case c.Timers == nil:
		missing = "timer service"
	case c.Futures == nil:
		missing = "future submitter"
	case c.Clock == nil:
		missing = "clock"
	case c.Local == nil:
		missing = "local sink"
	}
	if missing != "" {
		return fmt.Errorf("service container: %s is missing: %w", missing, errs.ErrUnavailable)
	}
	return nil
}

// ExecutionContext scopes one track selection or data-source call.
type ExecutionContext struct {
	Services *Container

	// Target dimensions in pixels.
	Width  int
	Height int

	// ScheduleTS is the logical "now" the content is rendered for. It
	// may differ from wall clock during previews and batch renders.
	ScheduleTS time.Time

	// SourceID is set on contexts forked for a specific data source.
	SourceID string
}

// NewExecutionContext builds a context over the container.
func NewExecutionContext(svc *Container, width, height int, scheduleTS time.Time) *ExecutionContext {
	return &ExecutionContext{Services: svc, Width: width, Height: height, ScheduleTS: scheduleTS}
}

// ForDataSource forks a child context addressed to one data source,
// preserving dimensions and timestamp.
func (x *ExecutionContext) ForDataSource(sourceID string) *ExecutionContext {
	child := *x
	child.SourceID = sourceID
	return &child
}
