package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livecapture/livecapture/internal/source"
	"github.com/livecapture/livecapture/internal/stopsignal"
)

const (
	DefaultStagger     = time.Second
	DefaultJoinTimeout = 5 * time.Second
)

// Orchestrator runs one Task per target and owns the stop signal shared
// by all of them.
type Orchestrator struct {
	cfg    JobConfig
	src    source.Source
	post   PostProcessor
	reader ResolutionReader
	signal *stopsignal.Signal

	stagger     time.Duration
	joinTimeout time.Duration

	mu    sync.RWMutex
	tasks []*Task
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithStagger sets the delay between two task starts.
func WithStagger(d time.Duration) Option {
	return func(o *Orchestrator) { o.stagger = d }
}

// WithJoinTimeout bounds how long shutdown waits for each task.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.joinTimeout = d }
}

// WithResolutionReader enables resolution restarts for the targets that ask for it.
func WithResolutionReader(p ResolutionReader) Option {
	return func(o *Orchestrator) { o.reader = p }
}

func NewOrchestrator(cfg JobConfig, src source.Source, post PostProcessor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		src:         src,
		post:        post,
		signal:      stopsignal.New(),
		stagger:     DefaultStagger,
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stop asks every task to wind down. Safe to call from any goroutine.
func (o *Orchestrator) Stop() bool {
	return o.signal.Set()
}

// Stopping reports whether a stop was requested.
func (o *Orchestrator) Stopping() bool {
	return o.signal.IsSet()
}

// Status returns the published state of every started task.
func (o *Orchestrator) Status() []TaskStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]TaskStatus, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t.Status())
	}
	return out
}

// Run records targets until every task is terminal. Cancelling ctx is
// treated as an operator interrupt: the stop signal is set and each task
// gets the join timeout to finish. Task failures are only logged.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) (err error) {
	if len(targets) == 0 {
		return ErrNoTargets
	}

	duration := "unlimited"
	if o.cfg.MaxDuration > 0 {
		duration = o.cfg.MaxDuration.String()
	}
	slog.Info("Multi-stream recording setup", "streams", len(targets), "mode", o.cfg.Mode, "duration", duration)
	for i, t := range targets {
		slog.Info("Target stream", "index", i+1, "target", t.String())
	}

	var (
		wg      sync.WaitGroup
		workers []chan struct{}
		started []*Task
	)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Unexpected error in multi-stream recorder", "error", r)
			o.shutdown(workers, started)
			err = fmt.Errorf("orchestrator panicked: %v", r)
		}
	}()

	multi := len(targets) > 1
	taskCtx := context.WithoutCancel(ctx)
	interrupted := false

	for i, target := range targets {
		if i > 0 && o.waitStagger(ctx) {
			interrupted = true
			break
		}

		task := NewTask(i, target, o.cfg, multi, o.src, o.post, o.signal)
		task.reader = o.reader
		o.mu.Lock()
		o.tasks = append(o.tasks, task)
		o.mu.Unlock()

		done := make(chan struct{})
		workers = append(workers, done)
		started = append(started, task)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done)
			task.Run(taskCtx)
		}()
		slog.Info("Started recording task", "task", task.Label())
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	if !interrupted {
		select {
		case <-allDone:
			slog.Info("All recordings finished")
			return nil
		case <-ctx.Done():
			slog.Info("Received interrupt signal, stopping all recordings...")
		case <-o.signal.Done():
			slog.Info("Stop requested, stopping all recordings...")
		}
	} else {
		slog.Info("Interrupted while starting tasks, stopping all recordings...")
	}

	o.shutdown(workers, started)
	return nil
}

// waitStagger sleeps between task starts and reports an interruption.
func (o *Orchestrator) waitStagger(ctx context.Context) bool {
	if o.stagger <= 0 {
		return ctx.Err() != nil || o.signal.IsSet()
	}
	timer := time.NewTimer(o.stagger)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	case <-o.signal.Done():
		return true
	}
}

// shutdown sets the stop signal and joins every worker. A worker that
// misses the join timeout is abandoned, not killed. Post-processing runs
// detached from the stop signal, so an abandoned task may leave its raw
// file behind when the process exits.
func (o *Orchestrator) shutdown(workers []chan struct{}, tasks []*Task) {
	o.signal.Set()

	for i, done := range workers {
		timer := time.NewTimer(o.joinTimeout)
		select {
		case <-done:
		case <-timer.C:
			st := tasks[i].Status()
			if st.PostProcessing {
				slog.Warn("Abandoning recording task during post-processing, the file may be left unprocessed",
					"task", st.Label, "output", st.OutputFile, "timeout", o.joinTimeout)
			} else {
				slog.Warn("Recording task did not stop in time, abandoning it", "task", st.Label, "timeout", o.joinTimeout)
			}
		}
		timer.Stop()
	}

	slog.Info("All recordings stopped.")
}
