package files

import (
	"context"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/deletion"
	"chunkdrive/internal/modules/download"
	"chunkdrive/internal/modules/upload"

	"github.com/gin-gonic/gin"
)

type FileLister interface {
	GetByID(ctx context.Context, id string) (*file.Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*file.Record, error)
}

type Uploader interface {
	InitUpload(ctx context.Context, req upload.InitRequest) (*file.Record, error)
	UploadChunk(ctx context.Context, req upload.ChunkRequest) (*upload.ChunkResult, error)
}

type Reconstructor interface {
	Reconstruct(ctx context.Context, id string) (*download.Stream, error)
}

type Deleter interface {
	DeleteMany(ctx context.Context, ids []string, requesterID string) (*deletion.Report, error)
}

// ProgressSubscriber upgrades a request into a progress feed for :fileId.
type ProgressSubscriber interface {
	Subscribe(c *gin.Context)
}
