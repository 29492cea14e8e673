// Package transport adapts external blob stores to the chunk engine. A
// Transport is opened once per process and shared by every request.
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrTransportUnavailable = errors.New("blob transport unavailable")
	ErrTransportRejected    = errors.New("blob transport rejected payload")
	ErrHandleNotFound       = errors.New("remote chunk not found")
	ErrDeleteFailed         = errors.New("remote chunk delete failed")
	ErrClosed               = errors.New("blob transport session closed")
)

// Chunk is one payload handed to the transport.
type Chunk struct {
	DisplayName string
	Caption     string
	Payload     []byte
}

// Transport stores opaque chunks and resolves them by handle. Implementations
// are safe for concurrent use.
type Transport interface {
	// PutChunk stores the payload and returns its remote handle.
	PutChunk(ctx context.Context, chunk Chunk) (string, error)
	// ChunkLocation resolves a handle to a short-lived fetchable URL for
	// callers outside the engine that fetch chunks themselves. Downloads read
	// through FetchChunk, which resolves the location internally.
	ChunkLocation(ctx context.Context, handle string) (string, error)
	// FetchChunk resolves the handle and opens the chunk bytes.
	FetchChunk(ctx context.Context, handle string) (io.ReadCloser, error)
	// DeleteChunk removes the remote chunk. A handle that is already gone is not an error.
	DeleteChunk(ctx context.Context, handle string) error
	// MaxChunkBytes is the per-payload ceiling of the backing channel.
	MaxChunkBytes() int64
	Close() error
}
