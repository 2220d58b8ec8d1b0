package layer

import (
	"fmt"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/schedule"
	"github.com/escape-llc/eink-billboard/internal/telemetry"
)

// PlaylistLayer plays the playlist selected by the master schedule,
// advancing linearly and re-evaluating the schedule when a playlist is
// exhausted.
type PlaylistLayer struct {
	base
}

var _ message.Sink = (*PlaylistLayer)(nil)

// NewPlaylist creates the layer and starts its worker.
func NewPlaylist(cfg Config) (*PlaylistLayer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Logger = logging.Default(cfg.Logger).With("component", cfg.Name)

	l := &PlaylistLayer{base: newBase(cfg)}
	d := message.NewDispatcher()
	message.On(d, l.onConfigure)
	message.On(d, l.onStartPlayback)
	message.On(d, l.onNextTrack)
	message.On(d, l.onFutureCompleted)
	message.On(d, l.onPluginReceive)
	message.On(d, l.onDisplaySettings)
	l.mailbox = message.NewMailbox(message.MailboxConfig{
		Name:       cfg.Name,
		Dispatcher: d,
		OnQuit:     l.quit,
		Logger:     cfg.Logger,
	})
	return l, nil
}

// Name implements message.Sink.
func (l *PlaylistLayer) Name() string { return l.cfg.Name }

// Accept implements message.Sink.
func (l *PlaylistLayer) Accept(msg message.Message) error { return l.mailbox.Accept(msg) }

// Done is closed when the worker has exited.
func (l *PlaylistLayer) Done() <-chan struct{} { return l.mailbox.Done() }

func (l *PlaylistLayer) onConfigure(ev message.ConfigureEvent) error {
	err := l.configure()
	if ev.NotifyTo != nil {
		_ = ev.NotifyTo.Accept(message.ConfigureNotify{
			Token:  ev.Token,
			Source: l.cfg.Name,
			Err:    err,
			TS:     l.cfg.Clock.Now(),
		})
	}
	if err != nil {
		l.fail(ev.TS, err)
		return nil
	}
	l.publish(ev.TS)
	return l.mailbox.Accept(message.StartPlayback{TS: ev.TS})
}

func (l *PlaylistLayer) onStartPlayback(ev message.StartPlayback) error {
	if l.state != telemetry.StateLoaded && l.state != telemetry.StatePlaying {
		l.logger.Debug("ignoring StartPlayback", "state", l.state)
		return nil
	}
	ts := ev.TS
	if ts.IsZero() {
		ts = l.cfg.Clock.Now()
	}
	if !l.enterPlaylist(ts) {
		return nil
	}
	l.startTrack(ts)
	return nil
}

// enterPlaylist resolves the master schedule at ts into the current run.
// Returns false when nothing is scheduled; the layer stops.
func (l *PlaylistLayer) enterPlaylist(ts time.Time) bool {
	pl, err := l.resolvePlaylist(ts)
	if err != nil {
		l.fail(ts, err)
		return false
	}
	if pl == nil || len(pl.Items) == 0 {
		l.logger.Info("nothing scheduled", "at", ts)
		l.state = telemetry.StateStopped
		l.lastErr = "no playlist scheduled"
		l.publish(ts)
		return false
	}
	tracks := make([]plugin.Track, 0, len(pl.Items))
	for _, item := range pl.Items {
		tracks = append(tracks, plugin.TrackFromPlaylist(item))
	}
	name := pl.Name
	if name == "" {
		name = pl.ID
	}
	l.run = &run{name: name, tracks: tracks}
	l.lastErr = ""
	return true
}

// resolvePlaylist walks master schedule to timed schedule to playlist.
// The timed item names its playlist in content["playlist"]; absent that,
// the item id doubles as the playlist reference.
func (l *PlaylistLayer) resolvePlaylist(ts time.Time) (*schedule.Playlist, error) {
	master := l.set.Master
	if master == nil {
		return nil, fmt.Errorf("%s: no master schedule: %w", l.cfg.Name, errs.ErrUnavailable)
	}
	ref := master.Evaluate(ts)
	if ref == "" {
		return nil, nil
	}
	timed := l.set.TimedByRef(ref)
	if timed == nil {
		return nil, fmt.Errorf("%s: master references unknown schedule %q: %w", l.cfg.Name, ref, errs.ErrNotFound)
	}
	item := timed.Current(ts)
	if item == nil {
		return nil, nil
	}
	plRef, _ := item.Content["playlist"].(string)
	if plRef == "" {
		plRef = item.ID
	}
	pl := l.set.PlaylistByRef(plRef)
	if pl == nil {
		return nil, fmt.Errorf("%s: timed item %q references unknown playlist %q: %w",
			l.cfg.Name, item.ID, plRef, errs.ErrNotFound)
	}
	return pl, nil
}

func (l *PlaylistLayer) onNextTrack(ev message.NextTrack) error {
	if l.state != telemetry.StatePlaying || l.run == nil {
		l.logger.Debug("ignoring NextTrack", "state", l.state)
		return nil
	}
	ts := ev.TS
	if ts.IsZero() {
		ts = l.cfg.Clock.Now()
	}
	if !l.stopActive(ts) {
		return nil
	}
	l.run.index++
	if l.run.index >= len(l.run.tracks) {
		if !l.enterPlaylist(ts) {
			return nil
		}
	}
	l.startTrack(ts)
	return nil
}

func (l *PlaylistLayer) onFutureCompleted(ev message.FutureCompleted) error {
	return l.forward(ev.PluginName, l.cfg.Clock.Now(), ev)
}

func (l *PlaylistLayer) onPluginReceive(ev message.PluginReceive) error {
	return l.forward(ev.PluginName, l.cfg.Clock.Now(), ev)
}

func (l *PlaylistLayer) onDisplaySettings(ev message.DisplaySettings) error {
	if ev.Width > 0 && ev.Height > 0 {
		l.width, l.height = ev.Width, ev.Height
	}
	return nil
}
