package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/livecapture/livecapture/internal/source"
	"github.com/livecapture/livecapture/internal/stopsignal"
)

// emptyStreamBackoff throttles reconnects when a live room keeps handing
// out streams that end without data.
const emptyStreamBackoff = time.Second

// PostProcessor handles a recording once its file is closed.
type PostProcessor interface {
	Process(ctx context.Context, path string) error
}

// Result is the terminal outcome of a task.
type Result struct {
	Phase Phase
	Err   error
}

// attempt is the outcome of one RECORDING phase.
type attempt struct {
	phase   Phase
	err     error
	path    string
	written int64
	// restart asks for a new file right away, the stream resolution changed.
	restart bool
}

// Task records one target. All of its mutable state belongs to the
// goroutine calling Run.
type Task struct {
	label  string
	target Target
	cfg    JobConfig
	multi  bool

	src    source.Source
	post   PostProcessor
	reader ResolutionReader
	stop   *stopsignal.Signal
	log    *slog.Logger
	status *statusBoard
	now    func() time.Time

	username string
	roomID   string
	// byUser is set when the room id can be re-resolved from username.
	byUser bool
}

// NewTask builds the task for the index-th target of a run. multi tells
// whether sibling tasks record at the same time.
func NewTask(index int, target Target, cfg JobConfig, multi bool, src source.Source, post PostProcessor, stop *stopsignal.Signal) *Task {
	target = target.Normalize()
	label := target.Label(index)
	return &Task{
		label:  label,
		target: target,
		cfg:    cfg,
		multi:  multi,
		src:    src,
		post:   post,
		stop:   stop,
		log:    slog.Default().With("task", label),
		status: newStatusBoard(label, target),
		now:    time.Now,
	}
}

func (t *Task) Label() string { return t.label }

// Status returns a snapshot of the published task state.
func (t *Task) Status() TaskStatus { return t.status.snapshot() }

// Run drives the task to a terminal phase. Errors never escape: they are
// logged and reported in the Result.
func (t *Task) Run(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Phase: PhaseFailed, Err: fmt.Errorf("recording task panicked: %v", r)}
		}
		t.status.update(func(s *TaskStatus) {
			s.Phase = res.Phase
			if res.Err != nil {
				s.LastError = res.Err.Error()
			}
		})
		t.logResult(res)
	}()

	t.log.Info("Initializing recorder", "target", t.target.String(), "mode", t.cfg.Mode)

	if err := t.identify(ctx); err != nil {
		return Result{Phase: PhaseFailed, Err: err}
	}

	ctx, cancel := t.stop.Context(ctx)
	defer cancel()

	if t.cfg.Mode == ModeAutomatic {
		return t.runAutomatic(ctx)
	}
	return t.runManual(ctx)
}

func (t *Task) logResult(res Result) {
	switch {
	case res.Err == nil:
		t.log.Info("Recording task ended", "phase", res.Phase)
	case errors.Is(res.Err, ErrTargetNotLive):
		t.log.Info("User is not currently live", "user", t.username)
	default:
		t.log.Error("Recording task failed", "phase", res.Phase, "error", res.Err)
	}
}

// identify works out who is being recorded from the target alone.
func (t *Task) identify(ctx context.Context) error {
	if err := t.target.Validate(); err != nil {
		return err
	}

	switch {
	case t.target.Username != "":
		t.username = t.target.Username
		t.byUser = true
	case t.target.URL != "":
		user, err := usernameFromURL(t.target.URL)
		if err != nil {
			return err
		}
		t.username = user
		t.byUser = true
	default:
		t.roomID = t.target.RoomID
		user, err := t.src.Username(ctx, t.roomID)
		if err != nil {
			t.log.Warn("Could not look up room owner, naming files after the room", "room_id", t.roomID, "error", err)
			t.username = t.roomID
		} else {
			t.username = user
			t.byUser = true
		}
	}

	t.status.update(func(s *TaskStatus) {
		s.Username = t.username
		s.RoomID = t.roomID
	})
	return nil
}

func (t *Task) runManual(ctx context.Context) Result {
	if t.stop.IsSet() {
		return Result{Phase: PhaseStopped}
	}

	if t.roomID == "" {
		if err := t.resolve(ctx); err != nil {
			return t.failOrStop(err)
		}
	}

	liveURL, err := t.checkLive(ctx)
	if err != nil {
		return t.failOrStop(err)
	}

	for {
		a := t.record(ctx, liveURL)
		if !a.restart {
			return Result{Phase: a.phase, Err: a.err}
		}
		if liveURL, err = t.checkLive(ctx); err != nil {
			t.log.Info("Stream not available after resolution change", "error", err)
			return Result{Phase: PhaseFinished}
		}
	}
}

func (t *Task) runAutomatic(ctx context.Context) Result {
	reportedNotLive := false

	for {
		if t.stop.IsSet() {
			return Result{Phase: PhaseStopped}
		}

		err := t.resolve(ctx)
		if err == nil {
			var liveURL string
			liveURL, err = t.checkLive(ctx)
			if err == nil {
				reportedNotLive = false
				a := t.record(ctx, liveURL)
				switch {
				case a.phase == PhaseStopped:
					return Result{Phase: a.phase, Err: a.err}
				case a.phase == PhaseFinished:
					// Look for the next broadcast right away.
					continue
				case !Retryable(a.err):
					return Result{Phase: a.phase, Err: a.err}
				}
				err = a.err
			}
		}

		if t.stop.IsSet() {
			return Result{Phase: PhaseStopped}
		}
		if !Retryable(err) {
			return Result{Phase: PhaseFailed, Err: err}
		}

		if errors.Is(err, ErrTargetNotLive) {
			if !reportedNotLive {
				t.log.Info("User is not currently live, waiting before recheck", "user", t.username, "interval", t.pollInterval())
				reportedNotLive = true
			} else {
				t.log.Debug("Still not live", "user", t.username)
			}
		} else {
			t.log.Warn("Attempt failed, will retry", "error", err, "interval", t.pollInterval())
		}
		t.status.setError(err)

		t.status.setPhase(PhaseWaitingRetry)
		if t.stop.Wait(t.pollInterval()) {
			return Result{Phase: PhaseStopped}
		}
	}
}

func (t *Task) pollInterval() time.Duration {
	if t.cfg.PollInterval <= 0 {
		return time.Minute
	}
	return t.cfg.PollInterval
}

// failOrStop reports a stop instead of a failure when err was caused by
// the stop signal cancelling an in-flight call.
func (t *Task) failOrStop(err error) Result {
	if t.stop.IsSet() && !errors.Is(err, ErrTargetNotLive) {
		return Result{Phase: PhaseStopped}
	}
	return Result{Phase: PhaseFailed, Err: err}
}

// resolve refreshes the room id from the username.
func (t *Task) resolve(ctx context.Context) error {
	if !t.byUser {
		return nil
	}
	t.status.setPhase(PhaseResolving)

	roomID, err := t.src.RoomID(ctx, t.username)
	if err != nil {
		return fmt.Errorf("failed to resolve room id of @%s: %w", t.username, err)
	}
	if roomID != t.roomID {
		t.log.Debug("Resolved room id", "user", t.username, "room_id", roomID)
	}
	t.roomID = roomID
	t.status.update(func(s *TaskStatus) { s.RoomID = roomID })
	return nil
}

// checkLive returns the stream URL when the room is live.
func (t *Task) checkLive(ctx context.Context) (string, error) {
	t.status.setPhase(PhaseCheckLive)

	live, err := t.src.IsLive(ctx, t.roomID)
	if err != nil {
		return "", fmt.Errorf("liveness check failed: %w", err)
	}
	if !live {
		return "", fmt.Errorf("@%s: %w", t.username, ErrTargetNotLive)
	}

	liveURL, err := t.src.LiveURL(ctx, t.roomID)
	if err != nil {
		return "", fmt.Errorf("failed to get live url: %w", err)
	}
	if liveURL == "" {
		return "", fmt.Errorf("room %s: %w", t.roomID, ErrNoLiveURL)
	}
	return liveURL, nil
}

// stopReason is polled by the streaming loop. Duration wins over the stop
// signal when both hold.
func (t *Task) stopReason(start time.Time) StopReason {
	if t.cfg.MaxDuration > 0 && t.now().Sub(start) >= t.cfg.MaxDuration {
		return StopDuration
	}
	if t.stop.IsSet() {
		return StopCancelled
	}
	return StopNone
}

func (t *Task) record(ctx context.Context, liveURL string) attempt {
	start := t.now()
	path := nextFreePath(OutputPath(t.cfg.OutputDir, t.username, start, t.label, t.multi, t.cfg.extension()))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return attempt{phase: PhaseFailed, err: fmt.Errorf("%w: failed to create output directory: %v", ErrSink, err)}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return attempt{phase: PhaseFailed, err: fmt.Errorf("%w: failed to open output file: %v", ErrSink, err)}
	}

	t.status.update(func(s *TaskStatus) {
		s.Phase = PhaseRecording
		s.OutputFile = path
		s.StartedAt = start
		s.BytesWritten = 0
		s.LastError = ""
		s.Recordings++
	})
	t.log.Info("Started recording", "output", path)

	a := t.stream(ctx, f, liveURL, start)
	a.path = path

	if err := f.Close(); err != nil && a.err == nil {
		a.phase = PhaseFailed
		a.err = fmt.Errorf("%w: close: %v", ErrSink, err)
	}

	t.log.Info("Recording finished",
		"output", path,
		"outcome", a.phase,
		"size", humanize.Bytes(uint64(a.written)),
		"elapsed", t.now().Sub(start).Round(time.Second))

	if t.shouldPostProcess(a) {
		t.postProcess(path)
	}
	return a
}

// stream runs the fetch cycles of one recording into f.
func (t *Task) stream(ctx context.Context, f *os.File, liveURL string, start time.Time) attempt {
	w := NewStreamWriter(f, FlushThreshold)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	changed := t.watchResolution(watchCtx, liveURL)
	stop := func() StopReason {
		if r := t.stopReason(start); r != StopNone {
			return r
		}
		if changed.Load() {
			return StopResolutionChange
		}
		return StopNone
	}

	done := func(phase Phase, err error) attempt {
		t.status.update(func(s *TaskStatus) { s.BytesWritten = w.Written() })
		return attempt{phase: phase, err: err, written: w.Written()}
	}
	restart := func() attempt {
		a := done(PhaseFinished, nil)
		a.restart = true
		return a
	}
	sourceFailure := func(err error) attempt {
		switch stop() {
		case StopDuration:
			return done(PhaseFinished, nil)
		case StopCancelled:
			return done(PhaseStopped, nil)
		}
		return done(PhaseFailed, err)
	}

	for {
		switch stop() {
		case StopDuration:
			t.log.Info("Maximum duration reached", "duration", t.cfg.MaxDuration)
			return done(PhaseFinished, nil)
		case StopCancelled:
			return done(PhaseStopped, nil)
		case StopResolutionChange:
			return restart()
		}

		live, err := t.src.IsLive(ctx, t.roomID)
		if err != nil {
			return sourceFailure(fmt.Errorf("liveness check failed: %w", err))
		}
		if !live {
			t.log.Info("User is no longer live, stopping recording", "user", t.username)
			return done(PhaseFinished, nil)
		}

		chunks, err := t.src.Chunks(ctx, liveURL)
		if err != nil {
			return sourceFailure(fmt.Errorf("failed to open stream: %w", err))
		}

		before := w.Written()
		reason, err := w.WriteStream(chunks, stop)
		chunks.Close()
		t.status.update(func(s *TaskStatus) { s.BytesWritten = w.Written() })

		switch reason {
		case StopEndOfStream:
			if w.Written() == before && t.stop.Wait(emptyStreamBackoff) {
				return done(PhaseStopped, nil)
			}
		case StopDuration:
			t.log.Info("Maximum duration reached", "duration", t.cfg.MaxDuration)
			return done(PhaseFinished, nil)
		case StopCancelled:
			return done(PhaseStopped, nil)
		case StopResolutionChange:
			return restart()
		default:
			if errors.Is(err, ErrSink) {
				return done(PhaseFailed, err)
			}
			return sourceFailure(err)
		}
	}
}

func (t *Task) shouldPostProcess(a attempt) bool {
	if t.post == nil {
		return false
	}
	switch a.phase {
	case PhaseFinished:
		return true
	case PhaseStopped:
		return t.cfg.PostProcessOnStop
	case PhaseFailed:
		return a.written > 0 && !errors.Is(a.err, ErrSink)
	}
	return false
}

// postProcess is best effort and never changes the recording outcome.
// It gets its own context so that a stop request does not abort it.
func (t *Task) postProcess(path string) {
	t.status.update(func(s *TaskStatus) { s.PostProcessing = true })
	defer t.status.update(func(s *TaskStatus) { s.PostProcessing = false })

	if err := t.post.Process(context.Background(), path); err != nil {
		t.log.Error("Post-processing error", "output", path, "error", err)
		return
	}
	t.log.Debug("Post-processing completed", "output", path)
}
