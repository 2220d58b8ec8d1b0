// Package app is the supervisor: it builds the storage, router, display,
// and layer actors, sequences configuration, and drives orderly
// shutdown. The supervisor is itself an actor; Run and Shutdown are the
// synchronous helpers the CLI uses around it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/config/file"
	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/display"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/home"
	"github.com/escape-llc/eink-billboard/internal/layer"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/telemetry"
)

// StartOptions selects the optional wiring for one run.
type StartOptions struct {
	// BasePath is the home directory root. Required.
	BasePath string

	// StoragePath overrides the document tree location. Defaults to
	// <BasePath>/storage.
	StoragePath string

	// TemplatePath is the document template used by HardReset. Empty
	// uses the built-in minimal template.
	TemplatePath string

	// HardReset wipes and re-materializes the document tree on start.
	HardReset bool

	// Telemetry enables the prometheus recorder on the telemetry topic.
	Telemetry bool

	// Watcher enables the filesystem watcher that evicts cached
	// documents on external edits.
	Watcher bool

	// Scale compresses logical time by this factor. Zero or one runs in
	// real time.
	Scale float64
}

// Application supervises the actor mesh.
type Application struct {
	opts    StartOptions
	plugins *plugin.Registry
	sources *datasource.Registry
	clk     clock.Clock
	logger  *slog.Logger

	mailbox *message.Mailbox
	router  *message.Router

	// Built during start, owned by the worker.
	dir      home.Dir
	cm       *config.Manager
	watcher  *config.Watcher
	disp     *display.Display
	playlist *layer.PlaylistLayer
	timerL   *layer.TimerLayer
	recorder *telemetry.Recorder

	readyOnce sync.Once
	ready     chan struct{}
	startErr  error
	notified  map[string]bool
}

// Config configures an Application.
type Config struct {
	// Options select the run's wiring. Options.BasePath is required.
	Options StartOptions

	// Plugins and Sources are the built-in registries. Required.
	Plugins *plugin.Registry
	Sources *datasource.Registry

	// Clock is the logical clock. Zero value means unscaled system time,
	// adjusted by Options.Scale.
	Clock clock.Clock

	// Registerer receives the telemetry collectors when
	// Options.Telemetry is set. Nil uses the default registerer.
	Registerer prometheus.Registerer

	// Logger for lifecycle events. Nil discards.
	Logger *slog.Logger
}

// internal control messages.
type startMsg struct{ ts time.Time }

// New creates the supervisor actor.
func New(cfg Config) (*Application, error) {
	missing := ""
	switch {
	case cfg.Options.BasePath == "":
		missing = "base path"
	case cfg.Plugins == nil:
		missing = "plugin registry"
	case cfg.Sources == nil:
		missing = "data source registry"
	}
	if missing != "" {
		return nil, fmt.Errorf("app: %s is required: %w", missing, errs.ErrInvalidInput)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.System(nil)
		if cfg.Options.Scale > 1 {
			clk = clock.Scaled(clockwork.NewRealClock(), clk.Now(), cfg.Options.Scale)
		}
	}
	logger := logging.Default(cfg.Logger)

	a := &Application{
		opts:     cfg.Options,
		plugins:  cfg.Plugins,
		sources:  cfg.Sources,
		clk:      clk,
		logger:   logger.With("component", "app"),
		router:   message.NewRouter(logger),
		ready:    make(chan struct{}),
		notified: make(map[string]bool),
	}
	if cfg.Options.Telemetry {
		a.recorder = telemetry.NewRecorder(cfg.Registerer)
	}

	d := message.NewDispatcher()
	message.On(d, a.onStart)
	message.On(d, a.onDisplaySettings)
	message.On(d, a.onConfigureNotify)
	a.mailbox = message.NewMailbox(message.MailboxConfig{
		Name:       "app",
		Dispatcher: d,
		OnQuit:     a.onQuit,
		Logger:     logger,
	})
	return a, nil
}

// Name implements message.Sink.
func (a *Application) Name() string { return "app" }

// Accept implements message.Sink.
func (a *Application) Accept(msg message.Message) error { return a.mailbox.Accept(msg) }

// ConfigManager returns the configuration manager, available once Run
// has returned successfully.
func (a *Application) ConfigManager() *config.Manager { return a.cm }

// Plugins returns the plugin registry.
func (a *Application) Plugins() *plugin.Registry { return a.plugins }

// Sources returns the data source registry.
func (a *Application) Sources() *datasource.Registry { return a.sources }

// Router returns the message router.
func (a *Application) Router() *message.Router { return a.router }

// Run starts the mesh and blocks until both layers have configured or
// ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.mailbox.Accept(startMsg{ts: a.clk.Now()}); err != nil {
		return err
	}
	select {
	case <-a.ready:
		return a.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the mesh in reverse order and waits for every actor.
func (a *Application) Shutdown() {
	a.mailbox.Stop(a.clk.Now())
}

func (a *Application) onStart(msg startMsg) error {
	if err := a.start(msg.ts); err != nil {
		a.finish(err)
	}
	return nil
}

// start builds the mesh. Runs on the supervisor worker.
func (a *Application) start(ts time.Time) error {
	a.dir = home.New(a.opts.BasePath)
	if err := a.dir.EnsureExists(); err != nil {
		return err
	}
	storageRoot := a.opts.StoragePath
	if storageRoot == "" {
		storageRoot = a.dir.StorageDir()
	}
	store, err := file.NewStore(storageRoot)
	if err != nil {
		return err
	}
	cm, err := config.NewManager(config.ManagerConfig{
		Storage:  store,
		FontsDir: a.dir.FontsDir(),
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.cm = cm

	if a.opts.HardReset {
		if err := a.hardReset(); err != nil {
			return err
		}
	}

	backend, err := display.NewVirtual(display.VirtualConfig{Dir: a.dir.OutDir(), Logger: a.logger})
	if err != nil {
		return err
	}
	disp, err := display.New(display.Config{
		Backend: backend,
		Config:  cm,
		Router:  a.router,
		Clock:   a.clk,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.disp = disp

	layerCfg := layer.Config{
		Config:  cm,
		Plugins: a.plugins,
		Sources: a.sources,
		Router:  a.router,
		Clock:   a.clk,
		Logger:  a.logger,
	}
	layerCfg.Name = "playlist-layer"
	playlist, err := layer.NewPlaylist(layerCfg)
	if err != nil {
		return err
	}
	a.playlist = playlist
	layerCfg.Name = "timer-layer"
	timerL, err := layer.NewTimer(layerCfg)
	if err != nil {
		return err
	}
	a.timerL = timerL

	a.router.Add(message.TopicDisplay, disp)
	a.router.Add(message.TopicPlaylistLayer, playlist)
	a.router.Add(message.TopicTimerLayer, timerL)
	a.router.Add(message.TopicDisplaySettings, a)
	a.router.Add(message.TopicTelemetry, telemetry.NewLogSink(a.logger))
	if a.recorder != nil {
		a.router.Add(message.TopicTelemetry, a.recorder)
	}

	if a.opts.Watcher {
		watcher, err := config.NewWatcher(cm, storageRoot, a.logger)
		if err != nil {
			a.logger.Warn("watcher unavailable", "error", err)
		} else {
			a.watcher = watcher
		}
	}

	return disp.Accept(message.ConfigureEvent{
		Token:    uuid.New(),
		NotifyTo: a,
		TS:       ts,
	})
}

// hardReset wipes the tree and re-materializes it from the template plus
// the registries' default settings documents.
func (a *Application) hardReset() error {
	var template config.TemplateSource
	if a.opts.TemplatePath != "" {
		template = file.NewTemplate(a.opts.TemplatePath)
	} else {
		template = DefaultTemplate()
	}
	var provisions []config.Provision
	for _, d := range a.plugins.Descriptors() {
		provisions = append(provisions, config.Provision{
			Moniker: "plugins/" + d.ID + "/settings",
			Content: d.Defaults,
		})
	}
	for _, d := range a.sources.Descriptors() {
		provisions = append(provisions, config.Provision{
			Moniker: "datasources/" + d.ID + "/settings",
			Content: d.Defaults,
		})
	}
	return a.cm.HardReset(template, provisions)
}

// onDisplaySettings fans the panel's settings out to the layers, then
// kicks off their configuration.
func (a *Application) onDisplaySettings(ds message.DisplaySettings) error {
	a.logger.Info("display ready", "name", ds.Name, "width", ds.Width, "height", ds.Height)
	ts := a.clk.Now()
	for _, l := range []message.Sink{a.playlist, a.timerL} {
		if err := l.Accept(ds); err != nil {
			return err
		}
		if err := l.Accept(message.ConfigureEvent{Token: uuid.New(), NotifyTo: a, TS: ts}); err != nil {
			return err
		}
	}
	return nil
}

// onConfigureNotify tracks configuration completion. The mesh is ready
// when both layers have reported.
func (a *Application) onConfigureNotify(n message.ConfigureNotify) error {
	if n.Err != nil {
		a.logger.Error("configure failed", "source", n.Source, "error", n.Err)
		a.finish(fmt.Errorf("configure %s: %w", n.Source, n.Err))
		return nil
	}
	a.logger.Info("configured", "source", n.Source)
	a.notified[n.Source] = true
	if a.notified["playlist-layer"] && a.notified["timer-layer"] {
		a.finish(nil)
	}
	return nil
}

// finish resolves Run exactly once.
func (a *Application) finish(err error) {
	a.readyOnce.Do(func() {
		a.startErr = err
		close(a.ready)
	})
}

// onQuit stops the mesh in reverse dependency order.
func (a *Application) onQuit(q message.Quit) {
	ts := q.TS
	if ts.IsZero() {
		ts = a.clk.Now()
	}
	if a.timerL != nil {
		_ = a.timerL.Accept(message.Quit{TS: ts})
		<-a.timerL.Done()
	}
	if a.playlist != nil {
		_ = a.playlist.Accept(message.Quit{TS: ts})
		<-a.playlist.Done()
	}
	if a.disp != nil {
		a.disp.Stop(ts)
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	a.finish(fmt.Errorf("app: stopped before ready: %w", errs.ErrCancelled))
	a.logger.Info("stopped")
}
