// Package layer implements the two playback actors. A layer owns its
// schedule view, its current plugin instance, and a private set of
// sub-services (timer service, future submitter, data-source manager)
// built at Configure and torn down at Quit.
package layer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/future"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/schedule"
	"github.com/escape-llc/eink-billboard/internal/services"
	"github.com/escape-llc/eink-billboard/internal/telemetry"
	"github.com/escape-llc/eink-billboard/internal/timer"
)

// Default render dimensions, used until a DisplaySettings arrives.
const (
	DefaultWidth  = 800
	DefaultHeight = 480
)

// Config configures a layer.
type Config struct {
	// Name identifies the actor in logs, telemetry, and router wiring.
	// Required.
	Name string

	// Config is the shared configuration manager. Required.
	Config *config.Manager

	// Plugins resolves track plugin names. Required.
	Plugins *plugin.Registry

	// Sources supplies the data-source factories for the layer's private
	// manager. Required.
	Sources *datasource.Registry

	// Router carries display and telemetry traffic. Required.
	Router *message.Router

	// Clock is the logical clock. Zero value means unscaled system time.
	Clock clock.Clock

	// Wall drives the layer's timer service. Nil means the real clock.
	Wall clockwork.Clock

	// Logger for lifecycle events. Nil discards.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	missing := ""
	switch {
	case c.Name == "":
		missing = "name"
	case c.Config == nil:
		missing = "configuration manager"
	case c.Plugins == nil:
		missing = "plugin registry"
	case c.Sources == nil:
		missing = "data source registry"
	case c.Router == nil:
		missing = "router"
	}
	if missing != "" {
		return fmt.Errorf("layer: %s is required: %w", missing, errs.ErrInvalidInput)
	}
	return nil
}

// run is the playlist currently being played: a name, the flattened
// tracks, and a cursor.
type run struct {
	name   string
	tracks []plugin.Track
	index  int
}

func (r *run) current() plugin.Track { return r.tracks[r.index] }

// base carries the state shared by both layers. All fields past the
// constructor are touched only on the mailbox worker.
type base struct {
	cfg     Config
	logger  *slog.Logger
	mailbox *message.Mailbox

	state string

	width  int
	height int

	// Built at Configure.
	set     *schedule.Set
	svc     *services.Container
	timers  *timer.Service
	futures *future.Submitter
	sources *datasource.Manager

	// Current playback position.
	run     *run
	active  plugin.Plugin
	lastErr string
}

func newBase(cfg Config) base {
	if cfg.Clock == nil {
		cfg.Clock = clock.System(nil)
	}
	return base{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  telemetry.StateUninitialized,
		width:  DefaultWidth,
		height: DefaultHeight,
	}
}

// configure builds the layer's schedule set and sub-services. Called on
// the worker for ConfigureEvent.
func (b *base) configure() error {
	entries, err := b.cfg.Config.Schedules().List()
	if err != nil {
		return fmt.Errorf("%s: load schedules: %w", b.cfg.Name, err)
	}
	docs := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, e.Content)
	}
	set, err := schedule.NewSet(docs)
	if err != nil {
		return fmt.Errorf("%s: %w", b.cfg.Name, err)
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("%s: %w", b.cfg.Name, err)
	}

	sources, err := datasource.NewManager(datasource.ManagerConfig{
		Registry: b.cfg.Sources,
		Logger:   b.logger,
	})
	if err != nil {
		return err
	}
	timers, err := timer.New(timer.Config{
		Clock:  b.cfg.Clock,
		Wall:   b.cfg.Wall,
		Logger: b.logger,
	})
	if err != nil {
		sources.Shutdown()
		return err
	}
	futures, err := future.New(future.Config{
		Name:   b.cfg.Name,
		Owner:  b.mailbox,
		Logger: b.logger,
	})
	if err != nil {
		sources.Shutdown()
		_ = timers.Shutdown()
		return err
	}

	b.set = set
	b.sources = sources
	b.timers = timers
	b.futures = futures
	b.svc = &services.Container{
		Config:  b.cfg.Config,
		Setting: b.cfg.Config.Settings(),
		Sources: sources,
		Router:  b.cfg.Router,
		Timers:  timers,
		Futures: futures,
		Clock:   b.cfg.Clock,
		Local:   b.mailbox,
		Static:  b.cfg.Config.Static(),
	}
	b.state = telemetry.StateLoaded
	b.lastErr = ""
	return nil
}

// teardown shuts the sub-services down in reverse dependency order.
func (b *base) teardown() {
	if b.futures != nil {
		b.futures.Shutdown()
		b.futures = nil
	}
	if b.timers != nil {
		_ = b.timers.Shutdown()
		b.timers = nil
	}
	if b.sources != nil {
		b.sources.Shutdown()
		b.sources = nil
	}
}

func (b *base) execCtx(ts time.Time) *services.ExecutionContext {
	return services.NewExecutionContext(b.svc, b.width, b.height, ts)
}

// startTrack instantiates and starts the current track's plugin. A
// missing plugin is non-fatal: telemetry reports it and the layer stays
// in its prior state. A failing Start is fatal for the layer.
func (b *base) startTrack(ts time.Time) {
	track := b.run.current()
	p, err := b.cfg.Plugins.New(track.PluginName, b.logger)
	if err != nil {
		b.logger.Warn("plugin missing", "layer", b.cfg.Name, "plugin", track.PluginName, "track", track.ID)
		b.lastErr = err.Error()
		b.publish(ts)
		return
	}
	if err := p.Start(b.execCtx(ts), track); err != nil {
		b.fail(ts, err)
		return
	}
	b.active = p
	b.state = telemetry.StatePlaying
	b.lastErr = ""
	b.publish(ts)
}

// stopActive stops the current plugin, if any. Stop errors are fatal.
func (b *base) stopActive(ts time.Time) bool {
	if b.active == nil {
		return true
	}
	p := b.active
	b.active = nil
	if err := p.Stop(b.execCtx(ts), b.run.current()); err != nil {
		b.fail(ts, err)
		return false
	}
	return true
}

// forward delivers a message to the active plugin when playing and the
// plugin name matches.
func (b *base) forward(name string, ts time.Time, msg message.Message) error {
	if b.state != telemetry.StatePlaying || b.active == nil {
		b.logger.Debug("dropping plugin message", "layer", b.cfg.Name, "state", b.state)
		return nil
	}
	track := b.run.current()
	if name != "" && name != track.PluginName {
		b.logger.Debug("plugin name mismatch", "layer", b.cfg.Name, "want", track.PluginName, "got", name)
		return nil
	}
	if err := b.active.Receive(b.execCtx(ts), track, msg); err != nil {
		b.fail(ts, err)
	}
	return nil
}

// fail moves the layer to the error state and reports it.
func (b *base) fail(ts time.Time, err error) {
	b.logger.Error("layer error", "layer", b.cfg.Name, "error", err)
	b.state = telemetry.StateError
	b.lastErr = err.Error()
	b.publish(ts)
}

// publish emits the layer's telemetry frame for its current position.
func (b *base) publish(ts time.Time) {
	values := map[string]any{
		telemetry.KeyState:      b.state,
		telemetry.KeyScheduleTS: ts,
	}
	if b.run != nil {
		values[telemetry.KeyCurrentPlaylist] = b.run.name
		values[telemetry.KeyTrackIndex] = b.run.index
		if b.run.index < len(b.run.tracks) {
			values[telemetry.KeyCurrentTrack] = b.run.current().Title
		}
	}
	if b.lastErr != "" {
		values[telemetry.KeyMessage] = b.lastErr
	}
	b.cfg.Router.Send(message.TopicTelemetry, message.Telemetry{
		Name:   b.cfg.Name,
		Values: values,
		TS:     b.cfg.Clock.Now(),
	})
}

// quit is the shared Quit hook: best-effort plugin stop, then teardown.
func (b *base) quit(q message.Quit) {
	ts := q.TS
	if ts.IsZero() {
		ts = b.cfg.Clock.Now()
	}
	if b.active != nil && b.svc != nil {
		if err := b.active.Stop(b.execCtx(ts), b.run.current()); err != nil {
			b.logger.Warn("plugin stop failed during quit", "layer", b.cfg.Name, "error", err)
		}
		b.active = nil
	}
	b.teardown()
	b.state = telemetry.StateStopped
	b.publish(ts)
}
