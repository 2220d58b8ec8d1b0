package layer

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/config/memory"
	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/message"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/schedule"
	"github.com/escape-llc/eink-billboard/internal/services"
	"github.com/escape-llc/eink-billboard/internal/telemetry"
)

// Monday.
var baseTS = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// scriptPlugin records lifecycle calls and otherwise does nothing; the
// tests drive advancement by posting NextTrack themselves.
type scriptPlugin struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (s *scriptPlugin) Describe() plugin.Descriptor {
	return plugin.Descriptor{ID: "script", Name: "Scripted"}
}

func (s *scriptPlugin) Start(ctx *services.ExecutionContext, track plugin.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, track.ID)
	return nil
}

func (s *scriptPlugin) Stop(ctx *services.ExecutionContext, track plugin.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, track.ID)
	return nil
}

func (s *scriptPlugin) Receive(ctx *services.ExecutionContext, track plugin.Track, msg message.Message) error {
	return nil
}

// frameSink records telemetry frames and wakes waiters.
type frameSink struct {
	mu     sync.Mutex
	frames []message.Telemetry
	got    chan message.Telemetry
}

func newFrameSink() *frameSink {
	return &frameSink{got: make(chan message.Telemetry, 64)}
}

func (s *frameSink) Name() string { return "telemetry" }

func (s *frameSink) Accept(msg message.Message) error {
	t, ok := msg.(message.Telemetry)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.frames = append(s.frames, t)
	s.mu.Unlock()
	s.got <- t
	return nil
}

// waitFor returns the first incoming frame matching pred.
func (s *frameSink) waitFor(t *testing.T, pred func(message.Telemetry) bool) message.Telemetry {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-s.got:
			if pred(f) {
				return f
			}
		case <-deadline:
			t.Fatal("telemetry frame never arrived")
			return message.Telemetry{}
		}
	}
}

func stateIs(state string) func(message.Telemetry) bool {
	return func(f message.Telemetry) bool {
		return f.Values[telemetry.KeyState] == state
	}
}

func playingAt(index int) func(message.Telemetry) bool {
	return func(f message.Telemetry) bool {
		return f.Values[telemetry.KeyState] == telemetry.StatePlaying &&
			f.Values[telemetry.KeyTrackIndex] == index
	}
}

func seedDocs(t *testing.T, store *memory.Store, moniker string, v any) {
	t.Helper()
	doc, err := schedule.Document(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(moniker, doc); err != nil {
		t.Fatal(err)
	}
}

type harness struct {
	cm     *config.Manager
	store  *memory.Store
	router *message.Router
	frames *frameSink
	script *scriptPlugin
	cfg    Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	cm, err := config.NewManager(config.ManagerConfig{Storage: store})
	if err != nil {
		t.Fatal(err)
	}

	script := &scriptPlugin{}
	plugins := plugin.NewRegistry()
	if err := plugins.Register(func(l *slog.Logger) plugin.Plugin { return script }); err != nil {
		t.Fatal(err)
	}

	frames := newFrameSink()
	router := message.NewRouter(nil)
	router.Add(message.TopicTelemetry, frames)

	return &harness{
		cm:     cm,
		store:  store,
		router: router,
		frames: frames,
		script: script,
		cfg: Config{
			Config:  cm,
			Plugins: plugins,
			Sources: datasource.NewRegistry(),
			Router:  router,
			Clock:   clock.System(nil),
			Wall:    clockwork.NewFakeClock(),
		},
	}
}

// seedPlaylistSchedules installs a master schedule with a morning and an
// afternoon slot, each naming its playlist.
func (h *harness) seedPlaylistSchedules(t *testing.T) {
	t.Helper()
	seedDocs(t, h.store, config.MasterScheduleMoniker, schedule.MasterSchedule{
		Type:            schedule.TypeMaster,
		DefaultSchedule: "weekday",
	})
	seedDocs(t, h.store, "schedules/weekday", schedule.TimedSchedule{
		Type: schedule.TypeTimed,
		ID:   "weekday",
		Items: []schedule.PluginSchedule{
			{PluginName: "script", ID: "morning", StartMinutes: 0, DurationMinutes: 720,
				Content: map[string]any{"playlist": "pl-one"}},
			{PluginName: "script", ID: "afternoon", StartMinutes: 720, DurationMinutes: 720,
				Content: map[string]any{"playlist": "pl-two"}},
		},
	})
	seedDocs(t, h.store, "schedules/pl-one", schedule.Playlist{
		Type: schedule.TypePlaylist,
		ID:   "pl-one",
		Name: "morning loop",
		Items: []schedule.PlaylistSchedule{
			{PluginName: "script", ID: "a", Title: "A"},
			{PluginName: "script", ID: "b", Title: "B"},
			{PluginName: "script", ID: "c", Title: "C"},
		},
	})
	seedDocs(t, h.store, "schedules/pl-two", schedule.Playlist{
		Type: schedule.TypePlaylist,
		ID:   "pl-two",
		Name: "afternoon loop",
		Items: []schedule.PlaylistSchedule{
			{PluginName: "script", ID: "x", Title: "X"},
		},
	})
}

func TestPlaylistLayer_HappyPath(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.seedPlaylistSchedules(t)

	l, err := NewPlaylist(h.cfg.named("playlist-layer"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		l.Accept(message.Quit{TS: baseTS})
		<-l.Done()
	}()

	notify := newFrameSink()
	if err := l.Accept(message.ConfigureEvent{Token: uuid.New(), NotifyTo: notify, TS: baseTS}); err != nil {
		t.Fatal(err)
	}

	f := h.frames.waitFor(t, playingAt(0))
	if f.Values[telemetry.KeyCurrentPlaylist] != "morning loop" {
		t.Errorf("playlist = %v, want morning loop", f.Values[telemetry.KeyCurrentPlaylist])
	}
	if f.Values[telemetry.KeyCurrentTrack] != "A" {
		t.Errorf("track = %v, want A", f.Values[telemetry.KeyCurrentTrack])
	}

	// Advance through the morning playlist.
	l.Accept(message.NextTrack{TS: baseTS.Add(time.Minute)})
	h.frames.waitFor(t, playingAt(1))
	l.Accept(message.NextTrack{TS: baseTS.Add(2 * time.Minute)})
	h.frames.waitFor(t, playingAt(2))

	// Past the end in the afternoon: the master schedule re-evaluates to
	// the next playlist.
	l.Accept(message.NextTrack{TS: baseTS.Add(4 * time.Hour)})
	f = h.frames.waitFor(t, playingAt(0))
	if f.Values[telemetry.KeyCurrentPlaylist] != "afternoon loop" {
		t.Errorf("playlist = %v, want afternoon loop", f.Values[telemetry.KeyCurrentPlaylist])
	}

	h.script.mu.Lock()
	defer h.script.mu.Unlock()
	wantStarted := []string{"a", "b", "c", "x"}
	if len(h.script.started) != len(wantStarted) {
		t.Fatalf("started = %v, want %v", h.script.started, wantStarted)
	}
	for i, id := range wantStarted {
		if h.script.started[i] != id {
			t.Errorf("started[%d] = %q, want %q", i, h.script.started[i], id)
		}
	}
}

func TestPlaylistLayer_MissingPluginIsNonFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	seedDocs(t, h.store, config.MasterScheduleMoniker, schedule.MasterSchedule{
		Type:            schedule.TypeMaster,
		DefaultSchedule: "weekday",
	})
	seedDocs(t, h.store, "schedules/weekday", schedule.TimedSchedule{
		Type: schedule.TypeTimed,
		ID:   "weekday",
		Items: []schedule.PluginSchedule{
			{PluginName: "ghost", ID: "slot", StartMinutes: 0, DurationMinutes: 1440,
				Content: map[string]any{"playlist": "pl"}},
		},
	})
	seedDocs(t, h.store, "schedules/pl", schedule.Playlist{
		Type:  schedule.TypePlaylist,
		ID:    "pl",
		Items: []schedule.PlaylistSchedule{{PluginName: "ghost", ID: "g1", Title: "G"}},
	})

	l, err := NewPlaylist(h.cfg.named("playlist-layer"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		l.Accept(message.Quit{TS: baseTS})
		<-l.Done()
	}()

	l.Accept(message.ConfigureEvent{Token: uuid.New(), TS: baseTS})

	f := h.frames.waitFor(t, func(f message.Telemetry) bool {
		_, ok := f.Values[telemetry.KeyMessage]
		return ok
	})
	if f.Values[telemetry.KeyState] == telemetry.StateError {
		t.Errorf("missing plugin escalated to error state: %v", f.Values)
	}
}

func TestPlaylistLayer_NothingScheduledStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	seedDocs(t, h.store, config.MasterScheduleMoniker, schedule.MasterSchedule{
		Type:            schedule.TypeMaster,
		DefaultSchedule: "empty",
	})
	seedDocs(t, h.store, "schedules/empty", schedule.TimedSchedule{
		Type: schedule.TypeTimed,
		ID:   "empty",
	})

	l, err := NewPlaylist(h.cfg.named("playlist-layer"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		l.Accept(message.Quit{TS: baseTS})
		<-l.Done()
	}()

	l.Accept(message.ConfigureEvent{Token: uuid.New(), TS: baseTS})
	h.frames.waitFor(t, stateIs(telemetry.StateStopped))
}

func TestTimerLayer_StartupTaskThenWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	seedDocs(t, h.store, config.MasterScheduleMoniker, schedule.MasterSchedule{
		Type:            schedule.TypeMaster,
		DefaultSchedule: "weekday",
	})
	seedDocs(t, h.store, "schedules/weekday", schedule.TimedSchedule{
		Type: schedule.TypeTimed,
		ID:   "weekday",
	})
	seedDocs(t, h.store, "schedules/tasks", schedule.TimerTasks{
		Type: schedule.TypeTasks,
		ID:   "tasks",
		Items: []schedule.TimerTaskItem{
			{
				ID: "boot", Title: "Boot", Enabled: true,
				Task:    schedule.TimerTask{PluginName: "script", DurationMinutes: 1},
				Trigger: &schedule.Trigger{OnStartup: true},
			},
			{
				ID: "hourly", Title: "Hourly", Enabled: true,
				Task: schedule.TimerTask{PluginName: "script", DurationMinutes: 1},
				Trigger: &schedule.Trigger{
					Time: &schedule.TimeTrigger{Type: schedule.TimeTypeHourly, Minutes: []int{0}},
				},
			},
		},
	})

	l, err := NewTimer(h.cfg.named("timer-layer"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		l.Accept(message.Quit{TS: baseTS})
		<-l.Done()
	}()

	l.Accept(message.ConfigureEvent{Token: uuid.New(), TS: baseTS})

	// The startup task plays first.
	f := h.frames.waitFor(t, stateIs(telemetry.StatePlaying))
	if f.Values[telemetry.KeyCurrentPlaylist] != "startup" {
		t.Errorf("playlist = %v, want startup", f.Values[telemetry.KeyCurrentPlaylist])
	}

	// Exhausting the startup run arms the 11:00 hourly trigger.
	l.Accept(message.NextTrack{TS: baseTS.Add(time.Minute)})
	f = h.frames.waitFor(t, stateIs(telemetry.StateWaiting))
	target, ok := f.Values[telemetry.KeyScheduleTS].(time.Time)
	if !ok {
		t.Fatalf("schedule_ts = %v", f.Values[telemetry.KeyScheduleTS])
	}
	want := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Errorf("armed target = %v, want %v", target, want)
	}

	// Firing the armed target resumes playback.
	l.Accept(message.TimerExpired{Target: target})
	f = h.frames.waitFor(t, stateIs(telemetry.StatePlaying))
	if f.Values[telemetry.KeyCurrentTrack] != "Hourly" {
		t.Errorf("track = %v, want Hourly", f.Values[telemetry.KeyCurrentTrack])
	}
}

func TestTimerLayer_NoTasksStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	seedDocs(t, h.store, config.MasterScheduleMoniker, schedule.MasterSchedule{
		Type:            schedule.TypeMaster,
		DefaultSchedule: "weekday",
	})
	seedDocs(t, h.store, "schedules/weekday", schedule.TimedSchedule{
		Type: schedule.TypeTimed,
		ID:   "weekday",
	})

	l, err := NewTimer(h.cfg.named("timer-layer"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		l.Accept(message.Quit{TS: baseTS})
		<-l.Done()
	}()

	l.Accept(message.ConfigureEvent{Token: uuid.New(), TS: baseTS})
	h.frames.waitFor(t, stateIs(telemetry.StateStopped))
}

// named copies the config with a fresh actor name.
func (c Config) named(name string) Config {
	c.Name = name
	return c
}
