package recorder

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/livecapture/livecapture/internal/source"
)

// FlushThreshold is the buffered size that triggers a write to the sink.
const FlushThreshold = 512 * 1024

// StopReason tells why a stream writer returned.
type StopReason int

const (
	StopNone StopReason = iota
	StopEndOfStream
	StopDuration
	StopCancelled
	StopError
	StopResolutionChange
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopEndOfStream:
		return "end-of-stream"
	case StopDuration:
		return "duration"
	case StopCancelled:
		return "cancelled"
	case StopError:
		return "error"
	case StopResolutionChange:
		return "resolution-change"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// StopFunc is polled by the writer around every chunk. Returning anything
// but StopNone ends the stream.
type StopFunc func() StopReason

type syncer interface {
	Sync() error
}

// StreamWriter buffers chunks and writes them to the sink in batches of
// threshold bytes. A writer owns its buffer and must not be shared.
type StreamWriter struct {
	sink      io.Writer
	threshold int
	buf       []byte

	written int64
	flushes int
}

func NewStreamWriter(sink io.Writer, threshold int) *StreamWriter {
	if threshold <= 0 {
		threshold = FlushThreshold
	}
	return &StreamWriter{
		sink:      sink,
		threshold: threshold,
		buf:       make([]byte, 0, threshold),
	}
}

// Written is the number of bytes handed to the sink so far.
func (w *StreamWriter) Written() int64 { return w.written }

// Flushes counts buffer writes to the sink.
func (w *StreamWriter) Flushes() int { return w.flushes }

// WriteStream consumes stream until it ends, stop returns a reason, or an
// error occurs. Whatever was appended to the buffer is written to the sink
// and the sink is synced before returning, on every path.
func (w *StreamWriter) WriteStream(stream source.ChunkStream, stop StopFunc) (reason StopReason, err error) {
	defer func() {
		if ferr := w.finish(); ferr != nil {
			err = multierror.Append(err, ferr).ErrorOrNil()
			reason = StopError
		}
	}()

	for {
		if r := stop(); r != StopNone {
			return r, nil
		}

		chunk, nerr := stream.Next()
		if len(chunk) > 0 {
			// The chunk may have taken a while to arrive.
			if r := stop(); r != StopNone {
				return r, nil
			}
			if err := w.append(chunk); err != nil {
				return StopError, err
			}
		}

		if nerr != nil {
			if errors.Is(nerr, io.EOF) {
				return StopEndOfStream, nil
			}
			return StopError, fmt.Errorf("stream read failed: %w", nerr)
		}
	}
}

func (w *StreamWriter) append(chunk []byte) error {
	w.buf = append(w.buf, chunk...)
	if len(w.buf) >= w.threshold {
		return w.flush()
	}
	return nil
}

func (w *StreamWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	n, err := w.sink.Write(w.buf)
	w.written += int64(n)
	w.flushes++
	w.buf = w.buf[:0]
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSink, err)
	}
	return nil
}

// finish writes what is left in the buffer and syncs the sink.
func (w *StreamWriter) finish() error {
	var result error
	if err := w.flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if s, ok := w.sink.(syncer); ok {
		if err := s.Sync(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: sync: %v", ErrSink, err))
		}
	}
	return result
}
