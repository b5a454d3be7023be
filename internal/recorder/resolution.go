package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultResolutionCheckInterval is used when a watch has no interval.
const DefaultResolutionCheckInterval = 30 * time.Second

// Resolution is the video size of a stream.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) IsZero() bool { return r.Width == 0 || r.Height == 0 }

func (r Resolution) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// ResolutionReader reads the current video size of a live stream.
type ResolutionReader interface {
	Resolution(ctx context.Context, url string) (Resolution, error)
}

// ResolutionWatch restarts a recording in a new file when the video size
// of the stream changes.
type ResolutionWatch struct {
	Restart  bool
	Interval time.Duration
}

// resolutionWatch picks the room override, then the user override, then
// the job default.
func (c JobConfig) resolutionWatch(username, roomID string) ResolutionWatch {
	if w, ok := c.RoomResolution[roomID]; ok && roomID != "" {
		return w
	}
	if w, ok := c.UserResolution[strings.ToLower(username)]; ok {
		return w
	}
	return c.Resolution
}

// watchResolution checks liveURL until ctx ends and raises the returned
// flag on the first size change. The flag is never lowered.
func (t *Task) watchResolution(ctx context.Context, liveURL string) *atomic.Bool {
	changed := &atomic.Bool{}
	w := t.cfg.resolutionWatch(t.username, t.roomID)
	if t.reader == nil || !w.Restart {
		return changed
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultResolutionCheckInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var initial Resolution
		for {
			res, err := t.reader.Resolution(ctx, liveURL)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil || res.IsZero():
				t.log.Debug("Resolution check failed", "error", err)
			case initial.IsZero():
				initial = res
				t.log.Debug("Initial resolution", "resolution", res)
			case res != initial:
				t.log.Info("Resolution changed, restarting recording", "from", initial, "to", res)
				changed.Store(true)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return changed
}
