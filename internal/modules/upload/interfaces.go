package upload

import (
	"context"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/progress"
	"chunkdrive/internal/transport"
)

// FileRepository is the part of the File Record Store the orchestrator needs.
type FileRepository interface {
	Create(ctx context.Context, params file.CreateParams) (*file.Record, error)
	GetByID(ctx context.Context, id string) (*file.Record, error)
	SetChunkHandle(ctx context.Context, id string, chunkIndex int, remoteHandle string) error
}

// OrphanRecorder keeps remote chunks that lost their index entry.
type OrphanRecorder interface {
	Add(ctx context.Context, o *file.OrphanedChunk) error
}

// ChunkStore is the part of the blob transport used for uploads.
type ChunkStore interface {
	PutChunk(ctx context.Context, chunk transport.Chunk) (string, error)
	DeleteChunk(ctx context.Context, handle string) error
	MaxChunkBytes() int64
}

// ProgressPublisher receives an event every time a slot is filled.
type ProgressPublisher interface {
	Publish(ev progress.Event) int
}
