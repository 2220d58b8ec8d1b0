package future

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/escape-llc/eink-billboard/internal/message"
)

type recordSink struct {
	mu   sync.Mutex
	msgs []message.Message
	got  chan message.Message
}

func newRecordSink() *recordSink {
	return &recordSink{got: make(chan message.Message, 16)}
}

func (s *recordSink) Name() string { return "owner" }

func (s *recordSink) Accept(msg message.Message) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	s.got <- msg
	return nil
}

func (s *recordSink) wait(t *testing.T) message.Message {
	t.Helper()
	select {
	case msg := <-s.got:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message posted to owner")
		return nil
	}
}

func TestSubmitter_Success(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Name: "test", Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	token, _, err := s.Submit(
		func(cancelled func() bool) (any, error) { return 42, nil },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{Token: tok, Cancelled: cancelled, Result: result, Err: err}
		})
	if err != nil {
		t.Fatal(err)
	}

	msg := owner.wait(t)
	fc, ok := msg.(message.FutureCompleted)
	if !ok {
		t.Fatalf("posted %T, want FutureCompleted", msg)
	}
	if fc.Token != token {
		t.Errorf("token = %v, want %v", fc.Token, token)
	}
	if fc.Cancelled || fc.Err != nil || fc.Result != 42 {
		t.Errorf("outcome = (%v, %v, %v), want (false, 42, nil)", fc.Cancelled, fc.Result, fc.Err)
	}
}

func TestSubmitter_WorkError(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	boom := errors.New("boom")
	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) { return nil, boom },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{Token: tok, Cancelled: cancelled, Result: result, Err: err}
		})
	if err != nil {
		t.Fatal(err)
	}

	fc := owner.wait(t).(message.FutureCompleted)
	if !errors.Is(fc.Err, boom) {
		t.Errorf("err = %v, want boom", fc.Err)
	}
	if fc.Cancelled {
		t.Error("cancelled = true for failed work")
	}
}

func TestSubmitter_WorkPanicBecomesError(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) { panic("kaboom") },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{Token: tok, Cancelled: cancelled, Result: result, Err: err}
		})
	if err != nil {
		t.Fatal(err)
	}

	fc := owner.wait(t).(message.FutureCompleted)
	if fc.Err == nil {
		t.Fatal("panic did not surface as an error")
	}
}

func TestSubmitter_Cancel(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	_, cancel, err := s.Submit(
		func(cancelled func() bool) (any, error) {
			close(started)
			<-release
			for !cancelled() {
				time.Sleep(time.Millisecond)
			}
			return nil, nil
		},
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{Token: tok, Cancelled: cancelled, Result: result, Err: err}
		})
	if err != nil {
		t.Fatal(err)
	}

	<-started
	cancel()
	cancel() // harmless
	close(release)

	fc := owner.wait(t).(message.FutureCompleted)
	if !fc.Cancelled {
		t.Error("cancelled = false after cancel request")
	}
}

func TestSubmitter_NilMessageNotPosted(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) { return nil, nil },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			close(done)
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	<-done
	s.Shutdown()

	owner.mu.Lock()
	defer owner.mu.Unlock()
	if len(owner.msgs) != 0 {
		t.Errorf("owner received %d messages, want 0", len(owner.msgs))
	}
}

func TestSubmitter_ContinuationPanicSuppressed(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	done := make(chan struct{})
	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) { return 1, nil },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			defer close(done)
			panic("continuation")
		})
	if err != nil {
		t.Fatal(err)
	}
	<-done

	// The submitter must survive; the next job still runs.
	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) { return 2, nil },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
			return message.FutureCompleted{Token: tok, Result: result}
		})
	if err != nil {
		t.Fatal(err)
	}
	fc := owner.wait(t).(message.FutureCompleted)
	if fc.Result != 2 {
		t.Errorf("result = %v, want 2", fc.Result)
	}
}

func TestSubmitter_ShutdownCancelsQueued(t *testing.T) {
	owner := newRecordSink()
	s, err := New(Config{Owner: owner, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}

	// Occupy the single worker so further submissions stay queued.
	started := make(chan struct{})
	release := make(chan struct{})
	_, _, err = s.Submit(
		func(cancelled func() bool) (any, error) {
			close(started)
			<-release
			return nil, nil
		},
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message { return nil })
	if err != nil {
		t.Fatal(err)
	}
	<-started

	var queuedMu sync.Mutex
	queuedOutcomes := make([]bool, 0, 3)
	for i := 0; i < 3; i++ {
		_, _, err := s.Submit(
			func(cancelled func() bool) (any, error) { return nil, nil },
			func(tok uuid.UUID, cancelled bool, result any, err error) message.Message {
				queuedMu.Lock()
				queuedOutcomes = append(queuedOutcomes, cancelled)
				queuedMu.Unlock()
				return nil
			})
		if err != nil {
			t.Fatal(err)
		}
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	s.Shutdown()

	queuedMu.Lock()
	defer queuedMu.Unlock()
	if len(queuedOutcomes) != 3 {
		t.Fatalf("continuations ran %d times, want 3", len(queuedOutcomes))
	}
	for i, cancelled := range queuedOutcomes {
		if !cancelled {
			t.Errorf("queued job %d: cancelled = false after shutdown", i)
		}
	}

	if _, _, err := s.Submit(
		func(cancelled func() bool) (any, error) { return nil, nil },
		func(tok uuid.UUID, cancelled bool, result any, err error) message.Message { return nil },
	); err == nil {
		t.Error("Submit after shutdown succeeded")
	}
}
