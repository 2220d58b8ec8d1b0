// Package future runs long work off the actor workers. A submission is a
// work function plus a continuation; however the work ends, the
// continuation produces an optional message that is posted back to the
// owner's mailbox. Only that message ever crosses into the owner;
// results and errors stay on the submitter's workers.
package future

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/message"
)

// Work is the off-worker function. It receives a cancel check and should
// return early (with any values) once the check reports true.
type Work func(cancelled func() bool) (any, error)

// Continuation receives the outcome and returns the message to post to
// the owner, or nil for none. It runs on the submitter's worker.
type Continuation func(token uuid.UUID, cancelled bool, result any, err error) message.Message

// CancelFunc requests cooperative cancellation of one submission.
// Idempotent.
type CancelFunc func()

// Submitter owns a fixed worker pool fed by an unbounded queue.
type Submitter struct {
	name   string
	owner  message.Sink
	logger *slog.Logger

	mu       sync.Mutex
	queue    []*job
	inflight map[uuid.UUID]*job
	closed   bool

	wake  chan struct{}
	quit  chan struct{}
	group errgroup.Group
}

type job struct {
	token     uuid.UUID
	work      Work
	cont      Continuation
	cancelled atomic.Bool
}

// Config configures a Submitter.
type Config struct {
	// Name identifies the submitter in logs.
	Name string

	// Owner receives the messages returned by continuations. Required.
	Owner message.Sink

	// Workers sizes the pool. Defaults to 2.
	Workers int

	// Logger for suppressed panics and delivery failures. Nil discards.
	Logger *slog.Logger
}

// New creates the submitter and starts its workers.
func New(cfg Config) (*Submitter, error) {
	if cfg.Owner == nil {
		return nil, fmt.Errorf("future submitter: owner is required: %w", errs.ErrInvalidInput)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s := &Submitter{
		name:     cfg.Name,
		owner:    cfg.Owner,
		logger:   logging.Default(cfg.Logger).With("component", "future", "submitter", cfg.Name),
		inflight: make(map[uuid.UUID]*job),
		wake:     make(chan struct{}, workers),
		quit:     make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s.group.Go(s.worker)
	}
	return s, nil
}

// Submit queues work. The returned token appears as the continuation's
// first argument so owners can correlate the posted message.
func (s *Submitter) Submit(work Work, cont Continuation) (uuid.UUID, CancelFunc, error) {
	if work == nil || cont == nil {
		return uuid.Nil, nil, fmt.Errorf("future submitter: work and continuation are required: %w", errs.ErrInvalidInput)
	}
	j := &job{token: uuid.New(), work: work, cont: cont}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, nil, fmt.Errorf("future submitter %s: %w", s.name, errs.ErrClosed)
	}
	s.queue = append(s.queue, j)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	cancel := func() { j.cancelled.Store(true) }
	return j.token, cancel, nil
}

// Shutdown flags every queued and in-flight job cancelled and waits for
// the workers to drain the queue and exit. Idempotent.
func (s *Submitter) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.group.Wait()
		return
	}
	s.closed = true
	for _, j := range s.queue {
		j.cancelled.Store(true)
	}
	for _, j := range s.inflight {
		j.cancelled.Store(true)
	}
	s.mu.Unlock()

	close(s.quit)
	s.group.Wait()
}

func (s *Submitter) worker() error {
	for {
		j := s.pop()
		if j != nil {
			s.run(j)
			continue
		}
		select {
		case <-s.wake:
		case <-s.quit:
			// Drain what remains; everything is already flagged
			// cancelled, so continuations run quickly.
			for {
				j := s.pop()
				if j == nil {
					return nil
				}
				s.run(j)
			}
		}
	}
}

func (s *Submitter) pop() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	j := s.queue[0]
	s.queue = s.queue[1:]
	s.inflight[j.token] = j
	return j
}

// run executes one job end to end: work, continuation, post. The
// continuation runs exactly once no matter how the work ends.
func (s *Submitter) run(j *job) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, j.token)
		s.mu.Unlock()
	}()

	var result any
	var err error
	if !j.cancelled.Load() {
		result, err = s.invokeWork(j)
	}
	cancelled := j.cancelled.Load()

	msg := s.invokeContinuation(j, cancelled, result, err)
	if msg == nil {
		return
	}
	if err := s.owner.Accept(msg); err != nil {
		s.logger.Warn("post to owner failed", "token", j.token, "error", err)
	}
}

func (s *Submitter) invokeWork(j *job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work panic: %v: %w", r, errs.ErrInternal)
		}
	}()
	return j.work(j.cancelled.Load)
}

func (s *Submitter) invokeContinuation(j *job, cancelled bool, result any, err error) (msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("continuation panic", "token", j.token, "panic", r)
			msg = nil
		}
	}()
	return j.cont(j.token, cancelled, result, err)
}
