package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// rawMarker tags files written straight from the FLV stream.
const rawMarker = "_flv."

// RemuxedPath maps <x>_flv.<ext> to <x>.<ext>. Other paths are returned
// unchanged.
func RemuxedPath(path string) string {
	i := strings.LastIndex(path, rawMarker)
	if i < 0 {
		return path
	}
	return path[:i] + "." + path[i+len(rawMarker):]
}

// Remuxer copies the streams of a raw recording into a proper container.
type Remuxer struct {
	binary string
}

func NewRemuxer(binary string) *Remuxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Remuxer{binary: binary}
}

func (r *Remuxer) stream(in, out string) *ffmpeg.Stream {
	return ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{"c": "copy"}).
		GlobalArgs("-hide_banner", "-nostats", "-nostdin", "-loglevel", "error").
		OverWriteOutput()
}

// args is the ffmpeg command line without the binary.
func (r *Remuxer) args(in, out string) []string {
	return r.stream(in, out).GetArgs()
}

// Remux writes RemuxedPath(in) and removes in once ffmpeg succeeded.
func (r *Remuxer) Remux(ctx context.Context, in string) (string, error) {
	out := RemuxedPath(in)
	if out == in {
		return "", fmt.Errorf("not a raw recording: %s", in)
	}
	if _, err := os.Stat(in); err != nil {
		return "", fmt.Errorf("input file not found: %s", in)
	}

	cmd := exec.CommandContext(ctx, r.binary, r.args(in, out)...)
	slog.Debug("Running FFmpeg for remux", "command", strings.Join(cmd.Args, " "))

	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("FFmpeg remux failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("output file not created: %s", out)
	}

	if err := os.Remove(in); err != nil {
		slog.Warn("Could not remove raw recording", "file", in, "error", err)
	}
	slog.Info("Remuxed recording saved to", "file", out)
	return out, nil
}
