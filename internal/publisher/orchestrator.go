// Package publisher runs the per-job provider fan-out.
//
// Every accepted job gets one goroutine per requested provider. Adapters
// run independently: a slow or failing provider never delays the others.
// The orchestrator owns the job's lifecycle from running to terminal; the
// originating HTTP request has already returned by the time any of this
// happens, so all work runs on a detached context.
package publisher

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"socialpub/internal/broadcast"
	"socialpub/internal/dispatcher"
	"socialpub/internal/job"
	"socialpub/internal/observability"
	"socialpub/internal/provider"
)

// defaultProviderTimeout bounds one adapter's publish attempt.
const defaultProviderTimeout = 30 * time.Second

// Orchestrator fans a publish job out to its requested providers and
// resolves the terminal status once every provider has an outcome.
type Orchestrator struct {
	store       job.Store
	registry    *provider.Registry
	broadcaster broadcast.Broadcaster
	notifier    *dispatcher.Notifier
	metrics     *observability.Metrics
	logger      *slog.Logger
	timeout     time.Duration

	wg sync.WaitGroup
}

// New creates the orchestrator. notifier and metrics may be nil; a
// non-positive timeout uses the default.
func New(store job.Store, registry *provider.Registry, broadcaster broadcast.Broadcaster, notifier *dispatcher.Notifier, metrics *observability.Metrics, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Orchestrator{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		notifier:    notifier,
		metrics:     metrics,
		logger:      slog.With("component", "publisher"),
		timeout:     timeout,
	}
}

// Start launches the fan-out for an accepted job and returns immediately.
func (o *Orchestrator) Start(j *job.Job) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(j.Clone())
	}()
}

// Wait blocks until all in-flight jobs have finished or the context
// expires. Used on shutdown to drain before the process exits.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(j *job.Job) {
	// Detached from the originating request: the job must finish even if
	// the client disconnected right after the 202.
	ctx := context.Background()
	start := time.Now()

	if len(j.Providers) == 0 {
		// The endpoint rejects empty provider sets before a job exists;
		// if one slips through, fail it immediately.
		o.finish(ctx, j, job.StatusFailed, start)
		return
	}

	if err := o.store.MarkRunning(ctx, j.ID); err != nil {
		o.logger.Warn("Marking job running failed", "jobId", j.ID, "error", err)
	}

	var mu sync.Mutex
	outcomes := make(map[string]job.Outcome, len(j.Providers))

	var wg sync.WaitGroup
	for _, name := range j.Providers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			attemptStart := time.Now()
			out := o.attempt(ctx, j, name)
			o.recordOutcome(ctx, j, out)

			if o.metrics != nil {
				o.metrics.RecordProviderOutcome(ctx, name, out.OK, time.Since(attemptStart).Seconds())
			}

			mu.Lock()
			outcomes[name] = out
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	j.Outcomes = outcomes
	o.finish(ctx, j, job.ResolveTerminal(j.Providers, outcomes), start)
}

// attempt runs one adapter under the per-provider timeout with panic
// isolation. It always produces an outcome: a hung adapter times out, a
// panicking adapter fails, an unregistered provider fails.
func (o *Orchestrator) attempt(ctx context.Context, j *job.Job, name string) job.Outcome {
	p, ok := o.registry.Get(name)
	if !ok {
		// Validation checks registration at accept time, so this only
		// happens if an adapter was deregistered in between.
		return provider.Failure(name, "provider_not_available", nil)
	}

	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan job.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Provider adapter panicked",
					"jobId", j.ID, "provider", name, "panic", r, "stack", string(debug.Stack()))
				done <- provider.Failure(name, "internal_error", nil)
			}
		}()
		done <- p.Publish(pctx, j.OwnerID, j.Content)
	}()

	select {
	case out := <-done:
		return out
	case <-pctx.Done():
		// The adapter goroutine is abandoned; if it eventually returns,
		// the buffered channel absorbs the send.
		return provider.Failure(name, "timeout", nil)
	}
}

// recordOutcome persists one provider outcome (one retry on store errors)
// and emits the progress frame and callback event. Broadcast and callback
// failures never block or fail the store write.
func (o *Orchestrator) recordOutcome(ctx context.Context, j *job.Job, out job.Outcome) {
	if err := o.store.RecordOutcome(ctx, j.ID, out.Provider, out); err != nil {
		o.logger.Warn("Recording outcome failed, retrying", "jobId", j.ID, "provider", out.Provider, "error", err)
		if err := o.store.RecordOutcome(ctx, j.ID, out.Provider, out); err != nil {
			o.logger.Error("Recording outcome failed", "jobId", j.ID, "provider", out.Provider, "error", err)
		}
	}

	if o.broadcaster != nil {
		if err := o.broadcaster.Publish(ctx, j.ID, broadcast.Progress(j.ID, out)); err != nil {
			o.logger.Warn("Broadcasting progress failed", "jobId", j.ID, "provider", out.Provider, "error", err)
		}
	}
	if o.notifier != nil {
		o.notifier.JobProgress(j, out)
	}
}

// finish marks the job terminal and emits the done frame and callback.
func (o *Orchestrator) finish(ctx context.Context, j *job.Job, status string, start time.Time) {
	if err := o.store.MarkTerminal(ctx, j.ID, status); err != nil {
		o.logger.Error("Marking job terminal failed", "jobId", j.ID, "status", status, "error", err)
	}
	j.Status = status
	now := time.Now().UTC()
	j.CompletedAt = &now

	if o.broadcaster != nil {
		if err := o.broadcaster.Publish(ctx, j.ID, broadcast.Done(j)); err != nil {
			o.logger.Warn("Broadcasting done frame failed", "jobId", j.ID, "error", err)
		}
	}
	if o.notifier != nil {
		o.notifier.JobDone(j)
	}
	if o.metrics != nil {
		o.metrics.RecordJobTerminal(ctx, status, time.Since(start).Seconds())
	}

	o.logger.Info("Publish job finished",
		"jobId", j.ID,
		"status", status,
		"providers", len(j.Providers),
		"durationMs", time.Since(start).Milliseconds(),
	)
}

var _ job.Starter = (*Orchestrator)(nil)
