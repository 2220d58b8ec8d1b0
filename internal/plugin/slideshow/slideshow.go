// Package slideshow plays the images of a folder one by one. Opening the
// folder runs off-worker as a future; each slide is rendered on demand
// and a per-slide timer advances the index. The current index persists
// in the plugin's state document so a restart resumes where it left off.
package slideshow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/escape-llc/eink-billboard/internal/datasource/folder"
	"github.com/escape-llc/eink-billboard/internal/future"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/services"
	"github.com/escape-llc/eink-billboard/internal/timer"
)

// ID is the stable registry id.
const ID = "slideshow"

// DefaultSlideSeconds paces the show when the track gives no slideSeconds.
const DefaultSlideSeconds = 10

// slideTick is the timer payload advancing to the next slide.
type slideTick struct{}

// Plugin is the slideshow. All fields are mutated only on the owning
// layer's worker; the future and timer post back through the layer
// mailbox rather than touching state directly.
type Plugin struct {
	logger *slog.Logger

	items        []any
	index        int
	futureCancel future.CancelFunc
	timerCancel  timer.CancelFunc
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
		Name: "Folder Slideshow",
		Defaults: map[string]any{
			"path":           "",
			"slideSeconds":   DefaultSlideSeconds,
			"timeoutSeconds": 10,
		},
	}
}

func (p *Plugin) params(track plugin.Track) map[string]any {
	params := map[string]any{}
	for k, v := range p.Describe().Defaults {
		params[k] = v
	}
	for k, v := range track.Content {
		params[k] = v
	}
	return params
}

// Start submits the folder scan. Playback begins when the matching
// FutureCompleted arrives through Receive.
func (p *Plugin) Start(ctx *services.ExecutionContext, track plugin.Track) error {
	p.items = nil
	p.index = 0
	params := p.params(track)
	child := ctx.ForDataSource(folder.ID)

	_, cancel, err := ctx.Services.Futures.Submit(
		func(cancelled func() bool) (any, error) {
			return ctx.Services.Sources.Open(child, folder.ID, params)
		},
		func(token uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{
				PluginName: ID,
				Token:      token,
				Cancelled:  cancelled,
				Result:     result,
				Err:        err,
			}
		})
	if err != nil {
		return fmt.Errorf("slideshow: submit folder scan: %w", err)
	}
	p.futureCancel = cancel
	return nil
}

// Stop cancels the outstanding timer and future. Idempotent.
func (p *Plugin) Stop(ctx *services.ExecutionContext, track plugin.Track) error {
	if p.timerCancel != nil {
		p.timerCancel()
		p.timerCancel = nil
	}
	if p.futureCancel != nil {
		p.futureCancel()
		p.futureCancel = nil
	}
	return nil
}

// Receive drives the show: the folder scan completion starts it, each
// timer tick advances it.
func (p *Plugin) Receive(ctx *services.ExecutionContext, track plugin.Track, msg message.Message) error {
	switch m := msg.(type) {
	case message.FutureCompleted:
		return p.onScanned(ctx, track, m)
	case message.PluginReceive:
		if _, ok := m.Payload.(slideTick); ok {
			return p.onTick(ctx, track)
		}
	}
	p.logger.Debug("ignoring message", "type", fmt.Sprintf("%T", msg))
	return nil
}

func (p *Plugin) onScanned(ctx *services.ExecutionContext, track plugin.Track, m message.FutureCompleted) error {
	p.futureCancel = nil
	if m.Cancelled {
		return nil
	}
	if m.Err != nil {
		return fmt.Errorf("slideshow: folder scan: %w", m.Err)
	}
	items, _ := m.Result.([]any)
	if len(items) == 0 {
		p.logger.Info("folder is empty, yielding", "track", track.ID)
		return ctx.Services.Local.Accept(message.NextTrack{TS: ctx.ScheduleTS})
	}
	p.items = items
	p.index = p.restoreIndex(ctx) % len(items)
	return p.show(ctx, track)
}

func (p *Plugin) onTick(ctx *services.ExecutionContext, track plugin.Track) error {
	p.timerCancel = nil
	p.index++
	if p.index >= len(p.items) {
		p.persistIndex(ctx, 0)
		return ctx.Services.Local.Accept(message.NextTrack{TS: ctx.ScheduleTS})
	}
	return p.show(ctx, track)
}

// show renders the current slide, posts it, persists the index, and arms
// the advance timer.
func (p *Plugin) show(ctx *services.ExecutionContext, track plugin.Track) error {
	params := p.params(track)
	child := ctx.ForDataSource(folder.ID)

	img, err := ctx.Services.Sources.Render(child, folder.ID, params, p.items[p.index])
	if err != nil {
		return fmt.Errorf("slideshow: render slide %d: %w", p.index, err)
	}
	if img != nil {
		ctx.Services.Router.Send(message.TopicDisplay, message.DisplayImage{
			Title: fmt.Sprintf("%s (%d/%d)", track.Title, p.index+1, len(p.items)),
			Img:   img,
			TS:    ctx.ScheduleTS,
		})
	}
	p.persistIndex(ctx, p.index)

	delta := slideDelay(params)
	_, cancel, err := ctx.Services.Timers.Create(delta, ctx.Services.Local, message.PluginReceive{
		PluginName: ID,
		Payload:    slideTick{},
	})
	if err != nil {
		return fmt.Errorf("slideshow: arm slide timer: %w", err)
	}
	p.timerCancel = cancel
	return nil
}

// restoreIndex reads the persisted slide index. Anything unreadable
// restarts at zero.
func (p *Plugin) restoreIndex(ctx *services.ExecutionContext) int {
	_, content, err := ctx.Services.Config.Plugins().StateObject(ID).Get()
	if err != nil || content == nil {
		return 0
	}
	if v, ok := content["index"].(float64); ok && v >= 0 {
		return int(v)
	}
	return 0
}

// persistIndex saves the slide index. A concurrent edit loses this save;
// the show carries on from memory either way.
func (p *Plugin) persistIndex(ctx *services.ExecutionContext, index int) {
	obj := ctx.Services.Config.Plugins().StateObject(ID)
	hash, _, err := obj.Get()
	if err != nil {
		p.logger.Warn("state load failed", "error", err)
		return
	}
	if ok, _, err := obj.Save(hash, map[string]any{"index": index}); err != nil || !ok {
		p.logger.Warn("state save skipped", "ok", err == nil, "error", err)
	}
}

// slideDelay reads slideSeconds from params. JSON numbers decode as
// float64.
func slideDelay(params map[string]any) time.Duration {
	switch v := params["slideSeconds"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return DefaultSlideSeconds * time.Second
}
