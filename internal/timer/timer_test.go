package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/message"
)

type recordSink struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (s *recordSink) Name() string { return "record" }

func (s *recordSink) Accept(msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type ping struct{ n int }

func waitResolved(t *testing.T, res *Result) message.Message {
	t.Helper()
	select {
	case <-res.Done():
		return res.Value()
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not resolve")
		return nil
	}
}

func TestService_FiresOnce(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc, err := New(Config{Clock: clock.System(fake), Wall: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown()

	sink := &recordSink{}
	res, _, err := svc.Create(time.Minute, sink, ping{n: 1})
	if err != nil {
		t.Fatal(err)
	}
	if sink.count() != 0 {
		t.Fatal("sink called before expiration")
	}

	fake.Advance(time.Minute + time.Second)
	got := waitResolved(t, res)
	if got != (ping{n: 1}) {
		t.Errorf("resolved value = %v, want ping{1}", got)
	}

	// Nothing further should arrive.
	fake.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 1 {
		t.Errorf("sink called %d times, want 1", sink.count())
	}
}

func TestService_Cancel(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc, err := New(Config{Clock: clock.System(fake), Wall: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown()

	sink := &recordSink{}
	res, cancel, err := svc.Create(time.Minute, sink, ping{n: 2})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel() // idempotent

	if got := waitResolved(t, res); got != nil {
		t.Errorf("cancelled timer resolved to %v, want nil", got)
	}
	fake.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("sink called %d times after cancel, want 0", sink.count())
	}
}

func TestService_ScaledTime(t *testing.T) {
	// At 60x, a logical minute is one real second; use a short real
	// window to keep the test quick.
	scaled := clock.Scaled(nil, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 60)
	svc, err := New(Config{Clock: scaled})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown()

	sink := &recordSink{}
	started := time.Now()
	res, _, err := svc.Create(6*time.Second, sink, ping{n: 3})
	if err != nil {
		t.Fatal(err)
	}
	got := waitResolved(t, res)
	elapsed := time.Since(started)

	if got != (ping{n: 3}) {
		t.Errorf("resolved value = %v, want ping{3}", got)
	}
	if elapsed > 2*time.Second {
		t.Errorf("scaled 6s timer took %v real time", elapsed)
	}
	if sink.count() != 1 {
		t.Errorf("sink called %d times, want 1", sink.count())
	}
}

func TestService_ScaledCancel(t *testing.T) {
	scaled := clock.Scaled(nil, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 60)
	svc, err := New(Config{Clock: scaled})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown()

	sink := &recordSink{}
	res, cancel, err := svc.Create(time.Minute, sink, ping{n: 4})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	cancel()

	if got := waitResolved(t, res); got != nil {
		t.Errorf("cancelled timer resolved to %v, want nil", got)
	}
	if sink.count() != 0 {
		t.Errorf("sink called %d times after cancel, want 0", sink.count())
	}
}

func TestService_IndependentFirings(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc, err := New(Config{Clock: clock.System(fake), Wall: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown()

	sink := &recordSink{}
	resA, _, _ := svc.Create(time.Minute, sink, ping{n: 1})
	resB, cancelB, _ := svc.Create(2*time.Minute, sink, ping{n: 2})
	resC, _, _ := svc.Create(3*time.Minute, sink, ping{n: 3})
	cancelB()

	fake.Advance(4 * time.Minute)
	waitResolved(t, resA)
	waitResolved(t, resC)
	if got := waitResolved(t, resB); got != nil {
		t.Errorf("cancelled timer resolved to %v", got)
	}
	if sink.count() != 2 {
		t.Errorf("sink called %d times, want 2", sink.count())
	}
}

func TestService_Shutdown(t *testing.T) {
	fake := clockwork.NewFakeClock()
	svc, err := New(Config{Clock: clock.System(fake), Wall: fake})
	if err != nil {
		t.Fatal(err)
	}

	sink := &recordSink{}
	res, _, err := svc.Create(time.Hour, sink, ping{n: 9})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if got := waitResolved(t, res); got != nil {
		t.Errorf("timer resolved to %v after shutdown, want nil", got)
	}
	if svc.Outstanding() != 0 {
		t.Errorf("outstanding = %d after shutdown", svc.Outstanding())
	}

	if _, _, err := svc.Create(time.Second, sink, ping{n: 1}); err == nil {
		t.Error("Create after shutdown succeeded")
	}

	// Second shutdown is a no-op.
	if err := svc.Shutdown(); err != nil {
		t.Fatal(err)
	}
}
