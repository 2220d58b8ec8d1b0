package message

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/escape-llc/eink-billboard/internal/errs"
	"github.com/escape-llc/eink-billboard/internal/logging"
)

// Mailbox is an actor: an unbounded FIFO queue drained by a single worker
// goroutine. Handlers run strictly in order; a panic or error in one
// handler is logged and the worker keeps going. A Quit message shuts the
// actor down.
type Mailbox struct {
	name   string
	disp   *Dispatcher
	onQuit func(Quit)
	logger *slog.Logger

	mu     sync.Mutex
	queue  []Message
	closed bool

	wake chan struct{}
	done chan struct{}
}

// MailboxConfig configures a Mailbox.
type MailboxConfig struct {
	// Name identifies the actor in logs and router wiring.
	Name string

	// Dispatcher holds the handler table. Required.
	Dispatcher *Dispatcher

	// OnQuit, when non-nil, runs on the worker when a Quit message is
	// reached, before queued messages are discarded.
	OnQuit func(Quit)

	// Logger for lifecycle and error events. Nil discards.
	Logger *slog.Logger
}

// NewMailbox creates the mailbox and starts its worker.
func NewMailbox(cfg MailboxConfig) *Mailbox {
	m := &Mailbox{
		name:   cfg.Name,
		disp:   cfg.Dispatcher,
		onQuit: cfg.OnQuit,
		logger: logging.Default(cfg.Logger).With("component", "mailbox", "actor", cfg.Name),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Name implements Sink.
func (m *Mailbox) Name() string { return m.name }

// Accept enqueues msg. It never blocks. After the actor has processed a
// Quit, Accept fails with errs.ErrClosed.
func (m *Mailbox) Accept(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mailbox %s: %w", m.name, errs.ErrClosed)
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed when the worker has exited.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

// Stop enqueues a Quit and waits for the worker to exit. It is a
// convenience for owners that shut the actor down synchronously; waiting
// is bounded by the caller.
func (m *Mailbox) Stop(ts time.Time) {
	if err := m.Accept(Quit{TS: ts}); err != nil {
		return
	}
	<-m.done
}

func (m *Mailbox) run() {
	defer close(m.done)
	for {
		msg, ok := m.next()
		if !ok {
			return
		}
		if q, isQuit := msg.(Quit); isQuit {
			m.shutdown(q)
			return
		}
		m.handle(msg)
	}
}

// next blocks until a message is available.
func (m *Mailbox) next() (Message, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, true
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, false
		}
		<-m.wake
	}
}

// handle dispatches one message, containing panics and logging errors so
// the worker survives.
func (m *Mailbox) handle(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("handler panic", "type", fmt.Sprintf("%T", msg), "panic", r)
		}
	}()
	handled, err := m.disp.Dispatch(msg)
	switch {
	case err != nil:
		m.logger.Error("handler error", "type", fmt.Sprintf("%T", msg), "error", err)
	case !handled:
		m.logger.Debug("no handler", "type", fmt.Sprintf("%T", msg))
	}
}

// shutdown runs the quit hook, then discards whatever is still queued.
func (m *Mailbox) shutdown(q Quit) {
	if m.onQuit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("quit hook panic", "panic", r)
				}
			}()
			m.onQuit(q)
		}()
	}

	m.mu.Lock()
	m.closed = true
	dropped := len(m.queue)
	m.queue = nil
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Debug("discarded queued messages", "count", dropped)
	}
	m.logger.Debug("stopped")
}
