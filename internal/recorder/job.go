package recorder

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects between one-shot and polling recording.
type Mode int

const (
	// ModeManual records once if the target is live right now.
	ModeManual Mode = iota
	// ModeAutomatic polls until live, records, and starts polling again.
	ModeAutomatic
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "MANUAL"
	case ModeAutomatic:
		return "AUTOMATIC"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "manual" or "automatic" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ModeManual, nil
	case "automatic", "auto":
		return ModeAutomatic, nil
	}
	return ModeManual, fmt.Errorf("invalid mode %q (valid: manual, automatic)", s)
}

// JobConfig is shared read-only by every task of a run.
type JobConfig struct {
	Mode Mode
	// PollInterval is the automatic mode wait between liveness checks.
	PollInterval time.Duration
	// MaxDuration stops a recording after this long. Zero means unlimited.
	MaxDuration time.Duration
	Proxy       string
	OutputDir   string
	// Extension of recorded files, without the dot.
	Extension string
	Upload    bool
	Cookies   map[string]string

	// PostProcessOnStop controls whether operator-stopped recordings are
	// remuxed and uploaded like naturally finished ones.
	PostProcessOnStop bool

	// Resolution applies to every target without an override below.
	Resolution ResolutionWatch
	// UserResolution is keyed by lower case username.
	UserResolution map[string]ResolutionWatch
	RoomResolution map[string]ResolutionWatch
}

func (c JobConfig) extension() string {
	if c.Extension == "" {
		return "mp4"
	}
	return strings.TrimPrefix(c.Extension, ".")
}
