// Package timer implements delayed message delivery: after a logical
// delay, a message is accepted by a sink exactly once, unless the timer
// is cancelled first.
//
// Delays are expressed in logical time and mapped to real time through
// the injected clock's scale, so a test running at 60x asks for a
// 60-second timer and waits about one real second.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
)

// Result is the resolved value of one timer: the delivered message after
// it fires, or nil if it was cancelled.
type Result struct {
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	value message.Message
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Done is closed once the timer has fired or been cancelled.
func (r *Result) Done() <-chan struct{} { return r.done }

// Value returns the delivered message, nil before resolution and after
// cancellation.
func (r *Result) Value() message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *Result) resolve(v message.Message) {
	r.once.Do(func() {
		r.mu.Lock()
		r.value = v
		r.mu.Unlock()
		close(r.done)
	})
}

// CancelFunc cancels a pending timer. Idempotent; after it returns, the
// sink has either already been called or never will be.
type CancelFunc func()

// Service schedules one-shot deliveries on a shared gocron scheduler.
type Service struct {
	clk    clock.Clock
	wall   clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	sched   gocron.Scheduler
	pending map[uuid.UUID]*pendingTimer
	closed  bool
}

type pendingTimer struct {
	res   *Result
	jobID uuid.UUID
}

// Config configures a Service.
type Config struct {
	// Clock supplies logical time and the scale applied to delays.
	// Required.
	Clock clock.Clock

	// Wall drives the underlying scheduler. Nil uses the real clock;
	// tests pass a clockwork fake.
	Wall clockwork.Clock

	// Logger for delivery failures. Nil discards.
	Logger *slog.Logger
}

// New creates and starts the service.
func New(cfg Config) (*Service, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("timer service: clock is required: %w", errs.ErrInvalidInput)
	}
	wall := cfg.Wall
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(wall))
	if err != nil {
		return nil, fmt.Errorf("timer service: create scheduler: %w", err)
	}
	s := &Service{
		clk:     cfg.Clock,
		wall:    wall,
		logger:  logging.Default(cfg.Logger).With("component", "timer"),
		sched:   sched,
		pending: make(map[uuid.UUID]*pendingTimer),
	}
	s.sched.Start()
	return s, nil
}

// Create arms a timer that delivers msg to sink after delta of logical
// time. The returned Result resolves to msg on fire or nil on cancel.
func (s *Service) Create(delta time.Duration, sink message.Sink, msg message.Message) (*Result, CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, fmt.Errorf("timer service: %w", errs.ErrClosed)
	}

	id := uuid.New()
	res := newResult()
	fire := func() {
		s.mu.Lock()
		p, live := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if !live {
			return
		}
		if err := sink.Accept(msg); err != nil {
			s.logger.Warn("timer delivery failed", "sink", sink.Name(), "error", err)
		}
		p.res.resolve(msg)
	}

	// Register before the job exists so an immediate fire still finds
	// its entry; fire blocks on s.mu until this method returns.
	s.pending[id] = &pendingTimer{res: res}

	start := gocron.OneTimeJobStartImmediately()
	if real := clock.RealDelta(s.clk, delta); real > 0 {
		start = gocron.OneTimeJobStartDateTime(s.wall.Now().Add(real))
	}
	job, err := s.sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(fire),
		gocron.WithName("timer-"+id.String()),
	)
	if err != nil {
		delete(s.pending, id)
		return nil, nil, fmt.Errorf("timer service: create job: %w", err)
	}
	s.pending[id].jobID = job.ID()

	cancel := func() {
		s.mu.Lock()
		p, ok := s.pending[id]
		delete(s.pending, id)
		sched := s.sched
		s.mu.Unlock()
		if !ok {
			return
		}
		if err := sched.RemoveJob(p.jobID); err != nil {
			s.logger.Debug("remove cancelled job", "error", err)
		}
		p.res.resolve(nil)
	}
	return res, cancel, nil
}

// Outstanding reports the number of armed timers.
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown cancels every outstanding timer and blocks until the
// scheduler has stopped its carrier tasks. Idempotent.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancelled := make([]*pendingTimer, 0, len(s.pending))
	for id, p := range s.pending {
		cancelled = append(cancelled, p)
		delete(s.pending, id)
	}
	sched := s.sched
	s.mu.Unlock()

	for _, p := range cancelled {
		p.res.resolve(nil)
	}
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("timer service: shutdown: %w", err)
	}
	return nil
}
