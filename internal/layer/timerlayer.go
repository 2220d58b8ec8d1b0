package layer

import (
	"time"

	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/schedule"
	"github.com/escape-llc/eink-billboard/internal/telemetry"
	"github.com/escape-llc/eink-billboard/internal/timer"
)

// TimerLayer plays timer tasks. Unlike the playlist layer its tracks are
// selected by trigger firing: on startup it plays the on_startup tasks,
// then sleeps until the earliest upcoming trigger and plays the tasks
// tied on that instant.
type TimerLayer struct {
	base

	armed       *run
	armedTarget time.Time
	cancelTimer timer.CancelFunc
}

var _ message.Sink = (*TimerLayer)(nil)

// NewTimer creates the layer and starts its worker.
func NewTimer(cfg Config) (*TimerLayer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Logger = logging.Default(cfg.Logger).With("component", cfg.Name)

	l := &TimerLayer{base: newBase(cfg)}
	d := message.NewDispatcher()
	message.On(d, l.onConfigure)
	message.On(d, l.onStartPlayback)
	message.On(d, l.onTimerExpired)
	message.On(d, l.onNextTrack)
	message.On(d, l.onFutureCompleted)
	message.On(d, l.onPluginReceive)
	message.On(d, l.onDisplaySettings)
	l.mailbox = message.NewMailbox(message.MailboxConfig{
		Name:       cfg.Name,
		Dispatcher: d,
		OnQuit:     l.onQuit,
		Logger:     cfg.Logger,
	})
	return l, nil
}

// Name implements message.Sink.
func (l *TimerLayer) Name() string { return l.cfg.Name }

// Accept implements message.Sink.
func (l *TimerLayer) Accept(msg message.Message) error { return l.mailbox.Accept(msg) }

// Done is closed when the worker has exited.
func (l *TimerLayer) Done() <-chan struct{} { return l.mailbox.Done() }

func (l *TimerLayer) onConfigure(ev message.ConfigureEvent) error {
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

func (l *TimerLayer) onStartPlayback(ev message.StartPlayback) error {
	if l.state != telemetry.StateLoaded {
		l.logger.Debug("ignoring StartPlayback", "state", l.state)
		return nil
	}
	ts := ev.TS
	if ts.IsZero() {
		ts = l.cfg.Clock.Now()
	}
	if startup := l.startupRun(); startup != nil {
		l.run = startup
		l.startTrack(ts)
		return nil
	}
	l.schedule(ts)
	return nil
}

// startupRun packs the enabled on_startup tasks into a run, or nil when
// there are none.
func (l *TimerLayer) startupRun() *run {
	var tracks []plugin.Track
	for _, item := range l.set.EnabledTasks() {
		if item.Trigger != nil && item.Trigger.OnStartup {
			tracks = append(tracks, plugin.TrackFromTask(item))
		}
	}
	if len(tracks) == 0 {
		return nil
	}
	return &run{name: "startup", tracks: tracks}
}

// schedule computes the next scheduled run: the enabled tasks whose
// earliest upcoming fire time is the global minimum, tied on the exact
// instant in declaration order. Due targets play immediately; future
// targets arm a timer and enter waiting.
func (l *TimerLayer) schedule(ts time.Time) {
	var (
		target time.Time
		tracks []plugin.Track
	)
	for _, item := range l.set.EnabledTasks() {
		next, ok := schedule.NextFire(ts, item.Trigger)
		if !ok {
			continue
		}
		switch {
		case tracks == nil || next.Before(target):
			target = next
			tracks = []plugin.Track{plugin.TrackFromTask(item)}
		case next.Equal(target):
			tracks = append(tracks, plugin.TrackFromTask(item))
		}
	}
	if len(tracks) == 0 {
		l.logger.Info("no tasks scheduled", "at", ts)
		l.run = nil
		l.state = telemetry.StateStopped
		l.lastErr = "no tasks scheduled"
		l.publish(ts)
		return
	}

	next := &run{name: "scheduled " + target.Format(time.RFC3339), tracks: tracks}
	if !target.After(ts) {
		l.run = next
		l.startTrack(target)
		return
	}

	_, cancel, err := l.timers.Create(target.Sub(ts), l.mailbox, message.TimerExpired{Target: target})
	if err != nil {
		l.fail(ts, err)
		return
	}
	l.armed = next
	l.armedTarget = target
	l.cancelTimer = cancel
	l.state = telemetry.StateWaiting
	l.lastErr = ""
	l.publish(target)
}

func (l *TimerLayer) onTimerExpired(ev message.TimerExpired) error {
	if l.state != telemetry.StateWaiting || l.armed == nil {
		l.logger.Debug("ignoring TimerExpired", "state", l.state)
		return nil
	}
	l.run = l.armed
	l.armed = nil
	l.cancelTimer = nil
	l.startTrack(ev.Target)
	return nil
}

func (l *TimerLayer) onNextTrack(ev message.NextTrack) error {
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
	if l.run.index < len(l.run.tracks) {
		l.startTrack(ts)
		return nil
	}
	l.schedule(ts)
	return nil
}

func (l *TimerLayer) onFutureCompleted(ev message.FutureCompleted) error {
	return l.forward(ev.PluginName, l.cfg.Clock.Now(), ev)
}

func (l *TimerLayer) onPluginReceive(ev message.PluginReceive) error {
	return l.forward(ev.PluginName, l.cfg.Clock.Now(), ev)
}

func (l *TimerLayer) onDisplaySettings(ev message.DisplaySettings) error {
	if ev.Width > 0 && ev.Height > 0 {
		l.width, l.height = ev.Width, ev.Height
	}
	return nil
}

func (l *TimerLayer) onQuit(q message.Quit) {
	if l.cancelTimer != nil {
		l.cancelTimer()
		l.cancelTimer = nil
	}
	l.quit(q)
}
