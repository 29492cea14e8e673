package download

import (
	"context"
	"io"

	"chunkdrive/internal/domain/file"
)

type FileReader interface {
	GetByID(ctx context.Context, id string) (*file.Record, error)
}

// ChunkFetcher opens the bytes behind a remote handle.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, handle string) (io.ReadCloser, error)
}
