package source

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a username or room does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps network and upstream API failures.
	ErrUnavailable = errors.New("source unavailable")
)

// Source is the external broadcast platform as seen by the recorder.
type Source interface {
	// RoomID resolves the current room of a broadcaster.
	RoomID(ctx context.Context, username string) (string, error)
	// Username returns the broadcaster owning a room.
	Username(ctx context.Context, roomID string) (string, error)
	// IsLive reports whether the room is broadcasting right now.
	IsLive(ctx context.Context, roomID string) (bool, error)
	// LiveURL returns the pull URL of the live stream, or "" when none is offered.
	LiveURL(ctx context.Context, roomID string) (string, error)
	// Chunks opens the byte stream behind a live URL. The stream is finite
	// and cannot be restarted: call Chunks again to resume.
	Chunks(ctx context.Context, url string) (ChunkStream, error)
}

// ChunkStream yields the bytes of a live stream one chunk at a time.
// Next returns io.EOF once the broadcast ends.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}
