// Package stopsignal provides a process-wide stop latch shared by all
// recording workers.
package stopsignal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Signal is a write-once boolean latch. Once set it never resets.
// The zero value is not usable, use New.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// New creates an unset signal
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set latches the signal. It returns true only for the call that actually
// flipped it.
func (s *Signal) Set() bool {
	flipped := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		flipped = true
	})
	return flipped
}

// IsSet reports whether the signal has been latched. It never blocks.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel that is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks for up to d and returns true if the signal was set before
// the wait elapsed.
func (s *Signal) Wait(d time.Duration) bool {
	if s.IsSet() {
		return true
	}
	if d <= 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
		return s.IsSet()
	}
}

// Context derives a context from parent that is cancelled when the signal
// is set.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
