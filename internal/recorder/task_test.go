package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecapture/livecapture/internal/source"
	"github.com/livecapture/livecapture/internal/stopsignal"
)

func manualConfig(dir string) JobConfig {
	return JobConfig{Mode: ModeManual, OutputDir: dir, Extension: "mp4", PostProcessOnStop: true}
}

func runTask(t *testing.T, task *Task) <-chan Result {
	t.Helper()
	out := make(chan Result, 1)
	go func() { out <- task.Run(context.Background()) }()
	return out
}

func waitResult(t *testing.T, results <-chan Result, within time.Duration) Result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(within):
		t.Fatalf("task did not finish within %v", within)
	}
	return Result{}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestTask_ManualNotLiveFails(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	post := &recordingPost{}

	task := NewTask(0, UserTarget("@alice"), manualConfig(dir), false, src, post, stopsignal.New())
	res := task.Run(context.Background())

	assert.Equal(t, PhaseFailed, res.Phase)
	assert.True(t, errors.Is(res.Err, ErrTargetNotLive), "got %v", res.Err)
	assert.Empty(t, listFiles(t, dir), "no output file is created")
	assert.Empty(t, post.processed())

	st := task.Status()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "alice", st.Username)
	assert.Equal(t, "100", st.RoomID)
}

func TestTask_ManualRecordsUntilStreamEnds(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(call int) (bool, error) { return call <= 2, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &sliceStream{chunks: [][]byte{
				bytes.Repeat([]byte{1}, 200*kib),
				bytes.Repeat([]byte{2}, 200*kib),
				bytes.Repeat([]byte{3}, 200*kib),
			}}, nil
		},
	}
	post := &recordingPost{}

	task := NewTask(0, UserTarget("alice"), manualConfig(dir), false, src, post, stopsignal.New())
	res := task.Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, PhaseFinished, res.Phase)

	files := listFiles(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "alice"), filepath.Dir(files[0]))
	base := filepath.Base(files[0])
	assert.True(t, strings.HasPrefix(base, "TK_alice_"), base)
	assert.True(t, strings.HasSuffix(base, "_flv.mp4"), base)

	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Equal(t, int64(600*kib), info.Size())

	assert.Equal(t, []string{files[0]}, post.processed())

	st := task.Status()
	assert.Equal(t, PhaseFinished, st.Phase)
	assert.Equal(t, int64(600*kib), st.BytesWritten)
	assert.Equal(t, 1, st.Recordings)
	assert.Equal(t, files[0], st.OutputFile)
}

func TestTask_MaxDurationEndsRecording(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(int) (bool, error) { return true, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &endlessStream{size: kib, delay: 5 * time.Millisecond}, nil
		},
	}
	post := &recordingPost{}
	cfg := manualConfig(dir)
	cfg.MaxDuration = 100 * time.Millisecond

	start := time.Now()
	task := NewTask(0, UserTarget("alice"), cfg, false, src, post, stopsignal.New())
	res := waitResult(t, runTask(t, task), 5*time.Second)

	require.NoError(t, res.Err)
	assert.Equal(t, PhaseFinished, res.Phase)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Len(t, post.processed(), 1, "duration-limited recordings are post-processed")
}

func TestTask_StopDuringRecording(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(int) (bool, error) { return true, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &endlessStream{size: kib, delay: 2 * time.Millisecond}, nil
		},
	}
	post := &recordingPost{}
	cfg := manualConfig(dir)
	cfg.PostProcessOnStop = false
	stop := stopsignal.New()

	task := NewTask(0, UserTarget("alice"), cfg, false, src, post, stop)
	results := runTask(t, task)

	require.Eventually(t, func() bool { return task.Status().Phase == PhaseRecording }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stop.Set()

	res := waitResult(t, results, 2*time.Second)
	require.NoError(t, res.Err)
	assert.Equal(t, PhaseStopped, res.Phase)
	assert.Empty(t, post.processed(), "stopped recordings are kept as is when on_stop is off")

	files := listFiles(t, dir)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0), "buffered bytes are flushed on stop")
	assert.Zero(t, info.Size()%kib, "only whole chunks are written")
	assert.Equal(t, info.Size(), task.Status().BytesWritten)
}

func TestTask_StopPostProcessesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(int) (bool, error) { return true, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &endlessStream{size: kib, delay: 2 * time.Millisecond}, nil
		},
	}
	post := &recordingPost{}
	stop := stopsignal.New()

	task := NewTask(0, UserTarget("alice"), manualConfig(dir), false, src, post, stop)
	results := runTask(t, task)

	require.Eventually(t, func() bool { return task.Status().Phase == PhaseRecording }, 2*time.Second, 5*time.Millisecond)
	stop.Set()

	res := waitResult(t, results, 2*time.Second)
	assert.Equal(t, PhaseStopped, res.Phase)
	assert.Len(t, post.processed(), 1)
}

func TestTask_AutomaticWaitsThenStops(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	stop := stopsignal.New()
	cfg := JobConfig{Mode: ModeAutomatic, PollInterval: time.Minute, OutputDir: dir}

	task := NewTask(0, UserTarget("alice"), cfg, false, src, nil, stop)
	results := runTask(t, task)

	require.Eventually(t, func() bool { return task.Status().Phase == PhaseWaitingRetry }, 2*time.Second, 5*time.Millisecond)
	start := time.Now()
	stop.Set()

	res := waitResult(t, results, 2*time.Second)
	require.NoError(t, res.Err)
	assert.Equal(t, PhaseStopped, res.Phase)
	assert.Less(t, time.Since(start), time.Second, "the retry wait is interruptible")

	resolves, lives, chunks := src.calls()
	assert.Equal(t, 1, resolves)
	assert.Equal(t, 1, lives)
	assert.Zero(t, chunks)
	assert.Empty(t, listFiles(t, dir))
}

func TestTask_AutomaticStartsRecordingOnceLive(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		// Not live for two polls, then one broadcast, then offline again.
		isLive: func(call int) (bool, error) { return call == 3 || call == 4, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &sliceStream{chunks: [][]byte{[]byte("FLV\x01")}}, nil
		},
	}
	post := &recordingPost{}
	stop := stopsignal.New()
	cfg := JobConfig{Mode: ModeAutomatic, PollInterval: 20 * time.Millisecond, OutputDir: dir}

	task := NewTask(0, UserTarget("alice"), cfg, false, src, post, stop)
	results := runTask(t, task)

	require.Eventually(t, func() bool { return len(post.processed()) == 1 }, 3*time.Second, 5*time.Millisecond)
	stop.Set()

	res := waitResult(t, results, 2*time.Second)
	assert.Equal(t, PhaseStopped, res.Phase)

	st := task.Status()
	assert.Equal(t, 1, st.Recordings)
	files := listFiles(t, dir)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "FLV\x01", string(data))

	resolves, _, _ := src.calls()
	assert.GreaterOrEqual(t, resolves, 3, "room id is re-resolved on every poll")
}

func TestTask_MalformedTargetNeverRetries(t *testing.T) {
	cfg := JobConfig{Mode: ModeAutomatic, PollInterval: time.Millisecond, OutputDir: t.TempDir()}

	for name, target := range map[string]Target{
		"empty":      {},
		"two fields": {Username: "alice", RoomID: "1"},
		"no user":    URLTarget("https://www.tiktok.com/live"),
	} {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{}
			task := NewTask(0, target, cfg, false, src, nil, stopsignal.New())
			res := waitResult(t, runTask(t, task), 2*time.Second)

			assert.Equal(t, PhaseFailed, res.Phase)
			assert.True(t, errors.Is(res.Err, ErrMalformedTarget), "got %v", res.Err)
			resolves, lives, _ := src.calls()
			assert.Zero(t, resolves+lives)
		})
	}
}

func TestTask_URLTargetUsesUsernameFromPath(t *testing.T) {
	src := &fakeSource{}
	task := NewTask(0, URLTarget("https://www.tiktok.com/@bob.live/live"), manualConfig(t.TempDir()), false, src, nil, stopsignal.New())
	res := task.Run(context.Background())

	assert.True(t, errors.Is(res.Err, ErrTargetNotLive))
	assert.Equal(t, "bob.live", task.Status().Username)
}

func TestTask_RoomTargetFallsBackToRoomID(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		username: func(string) (string, error) { return "", source.ErrUnavailable },
		isLive:   func(call int) (bool, error) { return call <= 2, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &sliceStream{chunks: [][]byte{[]byte("data")}}, nil
		},
	}

	task := NewTask(0, RoomTarget("7"), manualConfig(dir), false, src, nil, stopsignal.New())
	res := task.Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, PhaseFinished, res.Phase)
	files := listFiles(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "7"), filepath.Dir(files[0]))

	resolves, _, _ := src.calls()
	assert.Zero(t, resolves, "a room id target is never re-resolved")
}

func TestTask_SinkFailureIsNotRetried(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	src := &fakeSource{isLive: func(int) (bool, error) { return true, nil }}
	cfg := JobConfig{Mode: ModeAutomatic, PollInterval: time.Millisecond, OutputDir: blocker}

	task := NewTask(0, UserTarget("alice"), cfg, false, src, nil, stopsignal.New())
	res := waitResult(t, runTask(t, task), 2*time.Second)

	assert.Equal(t, PhaseFailed, res.Phase)
	assert.True(t, errors.Is(res.Err, ErrSink), "got %v", res.Err)
}

func TestTask_FailedRecordingIsSalvaged(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(int) (bool, error) { return true, nil },
		chunks: func(int) (source.ChunkStream, error) { return &failingStream{}, nil },
	}
	post := &recordingPost{}

	task := NewTask(0, UserTarget("alice"), manualConfig(dir), false, src, post, stopsignal.New())
	res := task.Run(context.Background())

	assert.Equal(t, PhaseFailed, res.Phase)
	require.Error(t, res.Err)
	assert.True(t, Retryable(res.Err))
	assert.Len(t, post.processed(), 1, "partial recordings are still post-processed")
}

func TestTask_StopBeforeStart(t *testing.T) {
	stop := stopsignal.New()
	stop.Set()
	src := &fakeSource{}

	task := NewTask(0, UserTarget("alice"), manualConfig(t.TempDir()), false, src, nil, stop)
	res := task.Run(context.Background())

	assert.Equal(t, PhaseStopped, res.Phase)
	resolves, lives, _ := src.calls()
	assert.Zero(t, resolves+lives)
}

func TestTask_LiveWithoutStreamURL(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		phase Phase
	}{
		{"manual fails", ModeManual, PhaseFailed},
		{"automatic waits and retries", ModeAutomatic, PhaseStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := &fakeSource{
				isLive:  func(int) (bool, error) { return true, nil },
				liveURL: func(string) (string, error) { return "", nil },
			}
			stop := stopsignal.New()
			cfg := JobConfig{Mode: tt.mode, PollInterval: 10 * time.Millisecond, OutputDir: dir}

			task := NewTask(0, UserTarget("alice"), cfg, false, src, nil, stop)
			results := runTask(t, task)

			if tt.mode == ModeAutomatic {
				require.Eventually(t, func() bool {
					_, lives, _ := src.calls()
					return lives >= 3
				}, 2*time.Second, 5*time.Millisecond, "the liveness check is repeated")
				assert.Contains(t, task.Status().LastError, ErrNoLiveURL.Error())
				stop.Set()
			}

			res := waitResult(t, results, 2*time.Second)
			assert.Equal(t, tt.phase, res.Phase)
			if tt.mode == ModeManual {
				assert.True(t, errors.Is(res.Err, ErrNoLiveURL), "got %v", res.Err)
			}
			_, _, chunks := src.calls()
			assert.Zero(t, chunks)
			assert.Empty(t, listFiles(t, dir))
		})
	}
}

func TestTask_AutomaticResolveFailureIsRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", source.ErrNotFound},
		{"unavailable", source.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			src.roomID = func(string) (string, error) {
				if resolves, _, _ := src.calls(); resolves == 1 {
					return "", tt.err
				}
				return "100", nil
			}
			stop := stopsignal.New()
			cfg := JobConfig{Mode: ModeAutomatic, PollInterval: 10 * time.Millisecond, OutputDir: t.TempDir()}

			task := NewTask(0, UserTarget("alice"), cfg, false, src, nil, stop)
			results := runTask(t, task)

			require.Eventually(t, func() bool {
				_, lives, _ := src.calls()
				return lives >= 1
			}, 2*time.Second, 5*time.Millisecond, "the task resolves again after a failed resolution")
			stop.Set()

			res := waitResult(t, results, 2*time.Second)
			require.NoError(t, res.Err)
			assert.Equal(t, PhaseStopped, res.Phase)
			resolves, lives, _ := src.calls()
			assert.GreaterOrEqual(t, resolves, 2)
			assert.Less(t, lives, resolves, "no liveness check follows the failed resolution")
			assert.Equal(t, "100", task.Status().RoomID)
		})
	}
}

func TestTask_DurationWinsOverStop(t *testing.T) {
	tests := []struct {
		name        string
		maxDuration time.Duration
		phase       Phase
	}{
		{"duration reached with stop", time.Second, PhaseFinished},
		{"stop alone", 0, PhaseStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			stop := stopsignal.New()
			clock := time.Date(2024, 3, 9, 21, 4, 5, 0, time.Local)

			src := &fakeSource{
				isLive: func(int) (bool, error) { return true, nil },
				chunks: func(int) (source.ChunkStream, error) {
					return &funcStream{next: func() ([]byte, error) {
						// Both conditions become true before the next check.
						clock = clock.Add(2 * time.Second)
						stop.Set()
						return []byte("late"), nil
					}}, nil
				},
			}
			post := &recordingPost{}
			cfg := manualConfig(dir)
			cfg.MaxDuration = tt.maxDuration

			task := NewTask(0, UserTarget("alice"), cfg, false, src, post, stop)
			task.now = func() time.Time { return clock }
			res := task.Run(context.Background())

			require.NoError(t, res.Err)
			assert.Equal(t, tt.phase, res.Phase)
			assert.Len(t, post.processed(), 1)

			files := listFiles(t, dir)
			require.Len(t, files, 1)
			info, err := os.Stat(files[0])
			require.NoError(t, err)
			assert.Zero(t, info.Size(), "a chunk arriving after the stop condition is not written")
		})
	}
}

func TestTask_StopReasonPrefersDuration(t *testing.T) {
	stop := stopsignal.New()
	cfg := manualConfig(t.TempDir())
	cfg.MaxDuration = time.Minute
	task := NewTask(0, UserTarget("alice"), cfg, false, &fakeSource{}, nil, stop)

	start := time.Now()
	task.now = func() time.Time { return start.Add(30 * time.Second) }
	assert.Equal(t, StopNone, task.stopReason(start))

	stop.Set()
	assert.Equal(t, StopCancelled, task.stopReason(start))

	task.now = func() time.Time { return start.Add(time.Minute) }
	assert.Equal(t, StopDuration, task.stopReason(start))
}

func TestTask_BlankFieldsAreIgnored(t *testing.T) {
	src := &fakeSource{}
	task := NewTask(0, Target{Username: " ", RoomID: " 7 "}, manualConfig(t.TempDir()), false, src, nil, stopsignal.New())
	res := task.Run(context.Background())

	assert.True(t, errors.Is(res.Err, ErrTargetNotLive), "got %v", res.Err)
	st := task.Status()
	assert.Equal(t, "7", st.RoomID)
	assert.Equal(t, "owner", st.Username)
	assert.Equal(t, "Stream-1-7", task.Label())
	resolves, _, _ := src.calls()
	assert.Zero(t, resolves, "the room id is used as given")

	task = NewTask(0, Target{Username: "  "}, manualConfig(t.TempDir()), false, src, nil, stopsignal.New())
	res = task.Run(context.Background())
	assert.True(t, errors.Is(res.Err, ErrMalformedTarget), "got %v", res.Err)
}

func TestTask_ResolutionChangeStartsNewFile(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		isLive: func(int) (bool, error) { return true, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &endlessStream{size: kib, delay: 2 * time.Millisecond}, nil
		},
	}
	reader := &fakeResolutions{size: func(call int) Resolution {
		if call < 3 {
			return Resolution{Width: 720, Height: 1280}
		}
		return Resolution{Width: 1080, Height: 1920}
	}}
	post := &recordingPost{}
	stop := stopsignal.New()
	cfg := manualConfig(dir)
	cfg.Resolution = ResolutionWatch{Restart: true, Interval: 10 * time.Millisecond}

	task := NewTask(0, UserTarget("alice"), cfg, false, src, post, stop)
	task.reader = reader
	results := runTask(t, task)

	require.Eventually(t, func() bool {
		st := task.Status()
		return st.Recordings == 2 && st.Phase == PhaseRecording
	}, 3*time.Second, 5*time.Millisecond)
	stop.Set()

	res := waitResult(t, results, 2*time.Second)
	require.NoError(t, res.Err)
	assert.Equal(t, PhaseStopped, res.Phase)

	files := listFiles(t, dir)
	require.Len(t, files, 2, "the first file is kept")
	assert.Len(t, post.processed(), 2, "the first file is finished, the second is stopped")
	assert.Equal(t, 2, task.Status().Recordings)
}

func TestTask_ResolutionWatchNeedsOptIn(t *testing.T) {
	src := &fakeSource{
		isLive: func(call int) (bool, error) { return call <= 2, nil },
		chunks: func(int) (source.ChunkStream, error) {
			return &sliceStream{chunks: [][]byte{[]byte("data")}, delay: 20 * time.Millisecond}, nil
		},
	}
	reader := &fakeResolutions{size: func(call int) Resolution { return Resolution{Width: call, Height: call} }}
	cfg := manualConfig(t.TempDir())
	cfg.Resolution = ResolutionWatch{Interval: time.Millisecond}

	task := NewTask(0, UserTarget("alice"), cfg, false, src, nil, stopsignal.New())
	task.reader = reader
	res := task.Run(context.Background())

	assert.Equal(t, PhaseFinished, res.Phase)
	assert.Equal(t, 1, task.Status().Recordings)
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Zero(t, reader.calls)
}
