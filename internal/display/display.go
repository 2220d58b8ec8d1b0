// Package display is the frame sink actor. Configure resolves the
// backend's identity and resolution and replies with DisplaySettings;
// DisplayImage messages hand the frame to the backend. Both layers post
// to the display topic; the mailbox serializes their frames.
package display

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
)

// Backend is a physical or simulated panel.
type Backend interface {
	// Describe returns the panel's identity and resolution.
	Describe() message.DisplaySettings

	// Show presents one frame.
	Show(img image.Image, title string, ts time.Time) error
}

// Display is the actor in front of a Backend.
type Display struct {
	cfg     Config
	logger  *slog.Logger
	mailbox *message.Mailbox

	configured bool
	frames     int
}

var _ message.Sink = (*Display)(nil)

// Config configures a Display.
type Config struct {
	// Backend presents the frames. Required.
	Backend Backend

	// Config supplies the display settings document. Required.
	Config *config.Manager

	// Router carries the DisplaySettings broadcast.  Required.
	Router *message.Router

	// Clock is the logical clock. Zero value means unscaled system time.
	Clock clock.Clock

	// Logger for lifecycle events. Nil discards.
	Logger *slog.Logger
}

// New creates the display actor and starts its worker.
func New(cfg Config) (*Display, error) {
	missing := ""
	switch {
	case cfg.Backend == nil:
		missing = "backend"
	case cfg.Config == nil:
		missing = "configuration manager"
	case cfg.Router == nil:
		missing = "router"
	}
	if missing != "" {
		return nil, fmt.Errorf("display: %s is required: %w", missing, errs.ErrInvalidInput)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System(nil)
	}
	cfg.Logger = logging.Default(cfg.Logger).With("component", "display")

	d := &Display{cfg: cfg, logger: cfg.Logger}
	disp := message.NewDispatcher()
	message.On(disp, d.onConfigure)
	message.On(disp, d.onImage)
	d.mailbox = message.NewMailbox(message.MailboxConfig{
		Name:       "display",
		Dispatcher: disp,
		Logger:     cfg.Logger,
	})
	return d, nil
}

// Name implements message.Sink.
func (d *Display) Name() string { return "display" }

// Accept implements message.Sink.
func (d *Display) Accept(msg message.Message) error { return d.mailbox.Accept(msg) }

// Done is closed when the worker has exited.
func (d *Display) Done() <-chan struct{} { return d.mailbox.Done() }

// Stop shuts the actor down and waits for the worker.
func (d *Display) Stop(ts time.Time) { d.mailbox.Stop(ts) }

// onConfigure resolves the panel's settings and broadcasts them. The
// display-settings document may override the backend's dimensions.
func (d *Display) onConfigure(ev message.ConfigureEvent) error {
	settings := d.cfg.Backend.Describe()

	_, content, err := d.cfg.Config.Settings().Get("display")
	if err != nil {
		d.logger.Warn("display settings unavailable", "error", err)
	} else if content != nil {
		if name, ok := content["name"].(string); ok && name != "" {
			settings.Name = name
		}
		if w, ok := content["width"].(float64); ok && w > 0 {
			settings.Width = int(w)
		}
		if h, ok := content["height"].(float64); ok && h > 0 {
			settings.Height = int(h)
		}
	}

	d.configured = true
	d.logger.Info("display configured", "name", settings.Name, "width", settings.Width, "height", settings.Height)
	d.cfg.Router.Send(message.TopicDisplaySettings, settings)

	if ev.NotifyTo != nil {
		_ = ev.NotifyTo.Accept(message.ConfigureNotify{
			Token:  ev.Token,
			Source: "display",
			TS:     d.cfg.Clock.Now(),
		})
	}
	return nil
}

func (d *Display) onImage(ev message.DisplayImage) error {
	if !d.configured {
		d.logger.Debug("dropping frame before configure", "title", ev.Title)
		return nil
	}
	if ev.Img == nil {
		return fmt.Errorf("display: nil frame %q: %w", ev.Title, errs.ErrInvalidInput)
	}
	if err := d.cfg.Backend.Show(ev.Img, ev.Title, ev.TS); err != nil {
		return fmt.Errorf("display: show %q: %w", ev.Title, err)
	}
	d.frames++
	d.logger.Debug("frame shown", "title", ev.Title, "frames", d.frames)
	return nil
}
