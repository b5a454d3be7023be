package recorder

import (
	"errors"
)

var (
	// ErrNoTargets is returned by Run when there is nothing to record.
	ErrNoTargets = errors.New("no targets to record")
	// ErrTargetNotLive means the broadcaster is not live right now.
	ErrTargetNotLive = errors.New("target is not currently live")
	// ErrMalformedTarget can never succeed and stops the task.
	ErrMalformedTarget = errors.New("malformed target")
	// ErrNoLiveURL means the room is live but offers no stream URL.
	ErrNoLiveURL = errors.New("could not retrieve live url")
	// ErrSink wraps I/O failures on the output file.
	ErrSink = errors.New("output write failed")
)

// Retryable reports whether an automatic mode task may try again after err.
func Retryable(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, ErrMalformedTarget) && !errors.Is(err, ErrSink)
}
