package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Task is one unit of background work. Errors are logged and the poller
// keeps going; only context cancellation stops the loop.
type Task func(ctx context.Context) error

// Poller invokes a task on a fixed interval.
type Poller struct {
	name     string
	interval time.Duration
	task     Task
	logger   *slog.Logger
	runNow   bool
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithLogger sets the poller's logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithImmediateRun makes the first invocation happen at startup instead of
// after the first interval. Provisioning and webhook retry want this so a
// restart drains the backlog right away.
func WithImmediateRun() PollerOption {
	return func(p *Poller) {
		p.runNow = true
	}
}

// NewPoller creates a poller. The name tags every log record so the four
// platform loops stay distinguishable in aggregate logs.
func NewPoller(name string, interval time.Duration, task Task, opts ...PollerOption) *Poller {
	p := &Poller{
		name:     name,
		interval: interval,
		task:     task,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("worker", name))
	return p
}

// Run loops until ctx is cancelled. The in-flight task invocation is
// allowed to finish: cancellation is observed between runs and inside the
// task through its own ctx.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker started", slog.Duration("interval", p.interval))

	if p.runNow {
		p.invoke(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "worker stopped")
			return ctx.Err()
		case <-ticker.C:
			p.invoke(ctx)
		}
	}
}

func (p *Poller) invoke(ctx context.Context) {
	start := time.Now()
	if err := p.task(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.ErrorContext(ctx, "worker run failed",
			slog.Any("error", err),
			slog.Duration("took", time.Since(start)))
		return
	}
	p.logger.DebugContext(ctx, "worker run finished", slog.Duration("took", time.Since(start)))
}
