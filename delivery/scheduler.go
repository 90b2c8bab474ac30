package delivery

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hooklab/emitter/backoff"
	"github.com/hooklab/emitter/observability"
	"github.com/hooklab/emitter/ratelimit"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Workers caps concurrent send attempts. Defaults to the CPU count.
	Workers int

	// Limiter throttles per-webhook send rates. Optional.
	Limiter *ratelimit.Limiter

	// Metrics records send outcomes. Optional.
	Metrics *observability.Metrics

	// Tracer traces send attempts. Optional.
	Tracer *observability.Tracer

	// AfterSend runs after every attempt, before the retry decision. Used
	// for durable outcome bookkeeping.
	AfterSend func(ctx context.Context, task *Task, result Result)

	// GiveUp runs once when a task is abandoned: the failure was terminal
	// or the backoff policy is exhausted.
	GiveUp func(ctx context.Context, task *Task, result Result)
}

// Scheduler runs send attempts on timers. Each task carries its own backoff
// policy; a failed attempt re-arms a timer with the policy's next delay
// instead of going through a durable queue.
type Scheduler struct {
	sender Sender
	config SchedulerConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewScheduler creates a scheduler around a sender.
func NewScheduler(sender Sender, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sender: sender,
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, cfg.Workers),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Schedule arms a timer to attempt the task after delay. Tasks scheduled
// after shutdown are dropped with a warning; there is no durable queue to
// park them in.
func (s *Scheduler) Schedule(task *Task, delay time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("scheduler stopped, dropping send",
			"uid", task.UID, "webhook_id", task.WebhookID, "event_type", task.EventType)
		return
	}
	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		s.run(task)
	})
	s.timers[timer] = struct{}{}
	s.mu.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.PendingSends.Inc()
	}
}

// Shutdown stops accepting work, discards not-yet-fired timers and waits for
// in-flight attempts until the context expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := 0
	for timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
			dropped++
		}
	}
	s.timers = make(map[*time.Timer]struct{})
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warn("dropping scheduled sends on shutdown", "count", dropped)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		// Abort whatever is still in flight.
		s.cancel()
		return ctx.Err()
	}
}

// run performs one attempt and decides what happens next.
func (s *Scheduler) run(task *Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("send attempt panicked",
				"uid", task.UID, "webhook_id", task.WebhookID, "panic", r)
		}
	}()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	if s.config.Metrics != nil {
		s.config.Metrics.PendingSends.Dec()
	}

	ctx := s.ctx
	if s.config.Limiter != nil && !task.WebhookID.IsNil() {
		if err := s.config.Limiter.Wait(ctx, task.WebhookID.String(), task.RateLimit); err != nil {
			s.logger.Warn("rate limit wait aborted", "uid", task.UID, "error", err)
			return
		}
	}

	var span trace.Span
	if s.config.Tracer != nil {
		ctx, span = s.config.Tracer.StartSendSpan(ctx, task.UID.String(), task.WebhookID.String(), task.EventType)
	}

	task.Attempt++
	result := s.sender.Send(ctx, task)

	if span != nil {
		s.config.Tracer.EndSendSpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}

	// Decide before the hook runs, so the hook records the attempt's true
	// finality. An exhausted policy turns the failure terminal.
	var retryDelay time.Duration
	willRetry := false
	if result.Retryable() {
		if delay := task.Policy.NextDelay(); delay != backoff.Stop {
			willRetry, retryDelay = true, delay
		} else {
			result.Terminal = true
		}
	}

	s.afterSend(ctx, task, result)

	switch {
	case result.Success():
		if s.config.Metrics != nil {
			s.config.Metrics.RecordSend("delivered", float64(result.LatencyMs)/1000.0)
		}
		s.logger.DebugContext(ctx, "delivered",
			"uid", task.UID, "webhook_id", task.WebhookID,
			"status", result.StatusCode, "latency_ms", result.LatencyMs, "attempt", task.Attempt)

	case willRetry:
		if s.config.Metrics != nil {
			s.config.Metrics.RecordSend("retried", float64(result.LatencyMs)/1000.0)
		}
		s.logger.DebugContext(ctx, "retry scheduled",
			"uid", task.UID, "webhook_id", task.WebhookID,
			"attempt", task.Attempt, "delay", retryDelay, "error", result.Error)
		s.Schedule(task, retryDelay)

	default:
		if s.config.Metrics != nil {
			s.config.Metrics.RecordSend("failed", float64(result.LatencyMs)/1000.0)
		}
		s.logger.WarnContext(ctx, "send abandoned",
			"uid", task.UID, "webhook_id", task.WebhookID,
			"attempts", task.Attempt, "error", result.Error)
		s.giveUp(ctx, task, result)
	}
}

func (s *Scheduler) afterSend(ctx context.Context, task *Task, result Result) {
	if s.config.AfterSend == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("after-send hook panicked", "uid", task.UID, "panic", r)
		}
	}()
	s.config.AfterSend(ctx, task, result)
}

func (s *Scheduler) giveUp(ctx context.Context, task *Task, result Result) {
	if s.config.GiveUp == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("give-up hook panicked", "uid", task.UID, "panic", r)
		}
	}()
	s.config.GiveUp(ctx, task, result)
}
