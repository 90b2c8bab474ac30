package delivery_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/delivery"
)

// scriptedSender returns canned results in order, repeating the last one.
type scriptedSender struct {
	mu      sync.Mutex
	results []delivery.Result
	calls   int
}

func (s *scriptedSender) Send(_ context.Context, _ *delivery.Task) delivery.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[len(s.results)-1]
	if s.calls < len(s.results) {
		r = s.results[s.calls]
	}
	s.calls++
	return r
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastRetry() backoff.Policy {
	return backoff.Config{
		Retry:           true,
		InitialInterval: time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Minute,
	}.New()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerDeliversOnce(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{{StatusCode: 200}}}
	var sent atomic.Int32
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		AfterSend: func(_ context.Context, task *delivery.Task, result delivery.Result) {
			if result.Success() && task.Attempt == 1 {
				sent.Add(1)
			}
		},
	}, nil)
	defer sched.Shutdown(context.Background())

	task := newTestTask("http://unused.invalid")
	sched.Schedule(task, 0)

	waitFor(t, time.Second, func() bool { return sent.Load() == 1 })
	if sender.callCount() != 1 {
		t.Fatalf("expected 1 send, got %d", sender.callCount())
	}
}

func TestSchedulerRetriesUntilSuccess(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{
		{StatusCode: 500, Error: "unexpected status 500"},
		{StatusCode: 500, Error: "unexpected status 500"},
		{StatusCode: 200},
	}}
	var attempts []int
	var mu sync.Mutex
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		AfterSend: func(_ context.Context, task *delivery.Task, _ delivery.Result) {
			mu.Lock()
			attempts = append(attempts, task.Attempt)
			mu.Unlock()
		},
	}, nil)
	defer sched.Shutdown(context.Background())

	task := newTestTask("http://unused.invalid")
	task.Policy = fastRetry()
	sched.Schedule(task, 0)

	waitFor(t, 2*time.Second, func() bool { return sender.callCount() == 3 })

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Fatalf("expected three recorded attempts, got %v", attempts)
	}
}

func TestSchedulerGivesUpWhenPolicyExhausted(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{
		{StatusCode: 503, Error: "unexpected status 503"},
	}}
	var gaveUp atomic.Int32
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		GiveUp: func(_ context.Context, _ *delivery.Task, result delivery.Result) {
			if result.StatusCode == 503 {
				gaveUp.Add(1)
			}
		},
	}, nil)
	defer sched.Shutdown(context.Background())

	task := newTestTask("http://unused.invalid")
	task.Policy = backoff.NoRetry()
	sched.Schedule(task, 0)

	waitFor(t, time.Second, func() bool { return gaveUp.Load() == 1 })
	if sender.callCount() != 1 {
		t.Fatalf("no-retry policy allows exactly one attempt, got %d", sender.callCount())
	}
}

func TestSchedulerTerminalFailureSkipsRetry(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{
		{Error: "sign payload: unsupported algorithm", Terminal: true},
	}}
	var gaveUp atomic.Int32
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		GiveUp: func(_ context.Context, _ *delivery.Task, _ delivery.Result) {
			gaveUp.Add(1)
		},
	}, nil)
	defer sched.Shutdown(context.Background())

	task := newTestTask("http://unused.invalid")
	task.Policy = fastRetry() // would allow retries, terminal must override
	sched.Schedule(task, 0)

	waitFor(t, time.Second, func() bool { return gaveUp.Load() == 1 })
	if sender.callCount() != 1 {
		t.Fatalf("terminal failure must not retry, got %d attempts", sender.callCount())
	}
}

func TestSchedulerHonorsDelay(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{{StatusCode: 200}}}
	var done atomic.Int32
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		AfterSend: func(_ context.Context, _ *delivery.Task, _ delivery.Result) { done.Add(1) },
	}, nil)
	defer sched.Shutdown(context.Background())

	start := time.Now()
	sched.Schedule(newTestTask("http://unused.invalid"), 50*time.Millisecond)

	waitFor(t, time.Second, func() bool { return done.Load() == 1 })
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("send fired before its delay: %v", elapsed)
	}
}

func TestSchedulerDropsAfterShutdown(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{{StatusCode: 200}}}
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{}, nil)

	if err := sched.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	sched.Schedule(newTestTask("http://unused.invalid"), 0)
	time.Sleep(50 * time.Millisecond)

	if sender.callCount() != 0 {
		t.Fatal("sends scheduled after shutdown must be dropped")
	}
}

func TestSchedulerShutdownDiscardsPendingTimers(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{{StatusCode: 200}}}
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{}, nil)

	sched.Schedule(newTestTask("http://unused.invalid"), time.Hour)

	done := make(chan error, 1)
	go func() { done <- sched.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown must not wait for unfired timers")
	}
	if sender.callCount() != 0 {
		t.Fatal("unfired timer must be discarded")
	}
}

func TestSchedulerPanicInHookIsContained(t *testing.T) {
	sender := &scriptedSender{results: []delivery.Result{{StatusCode: 200}}}
	var second atomic.Int32
	sched := delivery.NewScheduler(sender, delivery.SchedulerConfig{
		AfterSend: func(_ context.Context, task *delivery.Task, _ delivery.Result) {
			if second.Add(1) == 1 {
				panic("hook bug")
			}
		},
	}, nil)
	defer sched.Shutdown(context.Background())

	sched.Schedule(newTestTask("http://unused.invalid"), 0)
	waitFor(t, time.Second, func() bool { return second.Load() == 1 })

	// The scheduler survives the panic and processes further work.
	sched.Schedule(newTestTask("http://unused.invalid"), 0)
	waitFor(t, time.Second, func() bool { return second.Load() == 2 })
}
