// Package debug is the simplest possible plugin: it renders one banner
// frame for its track, posts it to the display, and immediately yields
// the slot with a NextTrack.
package debug

import (
	"fmt"
	"log/slog"

	"github.com/escape-llc/eink-billboard/internal/datasource/banner"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/services"
)

// ID is the stable registry id.
const ID = "debug"

// Plugin renders a single banner frame per track.
type Plugin struct {
	logger *slog.Logger
}

var _ plugin.Plugin = (*Plugin)(nil)

// New constructs the plugin.
func New(logger *slog.Logger) plugin.Plugin {
	return &Plugin{logger: logging.Default(logger).With("plugin", ID)}
}

// Describe implements plugin.Plugin.
func (p *Plugin) Describe() plugin.Descriptor {
	return plugin.Descriptor{
		ID:   ID,
		Name: "Debug Banner",
		Defaults: map[string]any{
			"text": "",
		},
	}
}

// Start renders the track's banner and yields. The banner text defaults
// to the track title when the content gives none.
func (p *Plugin) Start(ctx *services.ExecutionContext, track plugin.Track) error {
	params := map[string]any{}
	for k, v := range track.Content {
		params[k] = v
	}
	if _, ok := params["text"]; !ok && track.Title != "" {
		params["text"] = track.Title
	}

	child := ctx.ForDataSource(banner.ID)
	state, err := ctx.Services.Sources.Open(child, banner.ID, params)
	if err != nil {
		return fmt.Errorf("debug plugin: open banner: %w", err)
	}
	img, err := ctx.Services.Sources.Render(child, banner.ID, params, state)
	if err != nil {
		return fmt.Errorf("debug plugin: render banner: %w", err)
	}

	ctx.Services.Router.Send(message.TopicDisplay, message.DisplayImage{
		Title: track.Title,
		Img:   img,
		TS:    ctx.ScheduleTS,
	})
	p.logger.Debug("frame posted", "track", track.ID)

	return ctx.Services.Local.Accept(message.NextTrack{TS: ctx.ScheduleTS})
}

// Stop implements plugin.Plugin. Nothing is held between calls.
func (p *Plugin) Stop(ctx *services.ExecutionContext, track plugin.Track) error {
	return nil
}

// Receive implements plugin.Plugin. The debug plugin expects no messages.
func (p *Plugin) Receive(ctx *services.ExecutionContext, track plugin.Track, msg message.Message) error {
	p.logger.Debug("ignoring message", "type", fmt.Sprintf("%T", msg))
	return nil
}
