package deletion

import (
	"context"

	"chunkdrive/internal/domain/file"
)

type FileRepository interface {
	GetByID(ctx context.Context, id string) (*file.Record, error)
	Delete(ctx context.Context, id string) error
}

type ChunkDeleter interface {
	DeleteChunk(ctx context.Context, handle string) error
}

type OrphanRecorder interface {
	Add(ctx context.Context, o *file.OrphanedChunk) error
}
