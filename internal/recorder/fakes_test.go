package recorder

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/livecapture/livecapture/internal/source"
)

// fakeSource scripts the external platform. Zero-valued hooks fall back to
// "room 100, never live".
type fakeSource struct {
	mu sync.Mutex

	roomID   func(user string) (string, error)
	username func(roomID string) (string, error)
	isLive   func(call int) (bool, error)
	liveURL  func(roomID string) (string, error)
	chunks   func(call int) (source.ChunkStream, error)

	resolveCalls int
	liveCalls    int
	chunkCalls   int
}

func (f *fakeSource) RoomID(ctx context.Context, user string) (string, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	if f.roomID != nil {
		return f.roomID(user)
	}
	return "100", nil
}

func (f *fakeSource) Username(ctx context.Context, roomID string) (string, error) {
	if f.username != nil {
		return f.username(roomID)
	}
	return "owner", nil
}

func (f *fakeSource) IsLive(ctx context.Context, roomID string) (bool, error) {
	f.mu.Lock()
	f.liveCalls++
	n := f.liveCalls
	f.mu.Unlock()
	if f.isLive != nil {
		return f.isLive(n)
	}
	return false, nil
}

func (f *fakeSource) LiveURL(ctx context.Context, roomID string) (string, error) {
	if f.liveURL != nil {
		return f.liveURL(roomID)
	}
	return "http://live/" + roomID + ".flv", nil
}

func (f *fakeSource) Chunks(ctx context.Context, url string) (source.ChunkStream, error) {
	f.mu.Lock()
	f.chunkCalls++
	n := f.chunkCalls
	f.mu.Unlock()
	if f.chunks != nil {
		return f.chunks(n)
	}
	return &sliceStream{}, nil
}

func (f *fakeSource) calls() (resolve, live, chunks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.liveCalls, f.chunkCalls
}

// sliceStream yields fixed chunks then io.EOF.
type sliceStream struct {
	chunks [][]byte
	delay  time.Duration
	idx    int
	closed bool
}

func (s *sliceStream) Next() ([]byte, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.idx >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// endlessStream yields size-byte chunks every delay until closed.
type endlessStream struct {
	size  int
	delay time.Duration
	sent  int64
}

func (s *endlessStream) Next() ([]byte, error) {
	time.Sleep(s.delay)
	s.sent += int64(s.size)
	return make([]byte, s.size), nil
}

func (s *endlessStream) Close() error { return nil }

// blockingStream never yields, simulating a stalled source.
type blockingStream struct {
	release chan struct{}
}

func (s *blockingStream) Next() ([]byte, error) {
	<-s.release
	return nil, io.EOF
}

func (s *blockingStream) Close() error { return nil }

// recordingPost remembers every processed path.
type recordingPost struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (p *recordingPost) Process(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return p.err
}

func (p *recordingPost) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

// funcStream yields whatever next returns.
type funcStream struct {
	next func() ([]byte, error)
}

func (s *funcStream) Next() ([]byte, error) { return s.next() }

func (s *funcStream) Close() error { return nil }

// postFunc adapts a function to PostProcessor.
type postFunc func(ctx context.Context, path string) error

func (f postFunc) Process(ctx context.Context, path string) error { return f(ctx, path) }

// fakeResolutions scripts the video size seen on each check.
type fakeResolutions struct {
	mu    sync.Mutex
	calls int
	size  func(call int) Resolution
}

func (p *fakeResolutions) Resolution(ctx context.Context, url string) (Resolution, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	return p.size(n), nil
}
