package mediainfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/livecapture/livecapture/internal/recorder"
)

const defaultTimeout = 15 * time.Second

// ErrNoVideo is returned when ffprobe finds no video stream.
var ErrNoVideo = errors.New("no video stream")

// Available reports whether ffprobe can be found on PATH.
func Available() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// FFprobe reads stream resolutions with ffprobe.
type FFprobe struct {
	// Timeout bounds a single ffprobe run. Zero means 15s.
	Timeout time.Duration
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Resolution reads the size of the first video stream of url.
func (p FFprobe) Resolution(ctx context.Context, url string) (recorder.Resolution, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return recorder.Resolution{}, err
	}

	out, err := ffmpeg.ProbeWithTimeout(url, timeout, ffmpeg.KwArgs{"select_streams": "v:0"})
	if err != nil {
		return recorder.Resolution{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseResolution(out)
}

func parseResolution(out string) (recorder.Resolution, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return recorder.Resolution{}, fmt.Errorf("unexpected ffprobe output: %w", err)
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return recorder.Resolution{Width: s.Width, Height: s.Height}, nil
		}
	}
	return recorder.Resolution{}, ErrNoVideo
}
