package files

import (
	"time"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/upload"
)

type InitUploadRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	FileSize    int64  `json:"file_size" validate:"required,gt=0"`
	FileType    string `json:"file_type" validate:"required,max=255"`
	TotalChunks int    `json:"total_chunks" validate:"required,gt=0"`
}

type InitUploadResponse struct {
	FileID      string `json:"file_id"`
	TotalChunks int    `json:"total_chunks"`
}

type UploadChunkResponse struct {
	RemoteHandle   string `json:"remote_handle"`
	ChunkIndex     int    `json:"chunk_index"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

func chunkResponse(r *upload.ChunkResult) UploadChunkResponse {
	return UploadChunkResponse{
		RemoteHandle:   r.RemoteHandle,
		ChunkIndex:     r.ChunkIndex,
		UploadedChunks: r.UploadedChunks,
		TotalChunks:    r.TotalChunks,
		Complete:       r.Complete,
	}
}

type DeleteFilesRequest struct {
	FileIDs []string `json:"file_ids" validate:"required,min=1,max=500"`
}

type FileDataRequest struct {
	FileID string `json:"file_id" validate:"required"`
}

// FileSummary is one file as shown in listings and metadata lookups.
// UploadedChunks and Complete are recomputed from the slots on every call.
type FileSummary struct {
	FileID         string    `json:"file_id"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	FileType       string    `json:"file_type"`
	TotalChunks    int       `json:"total_chunks"`
	UploadedChunks int       `json:"uploaded_chunks"`
	Complete       bool      `json:"complete"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
}

func summaryOf(rec *file.Record) FileSummary {
	return FileSummary{
		FileID:         rec.ID,
		FileName:       rec.FileName,
		FileSize:       rec.FileSize,
		FileType:       rec.FileType,
		TotalChunks:    rec.TotalChunks,
		UploadedChunks: rec.UploadedChunks(),
		Complete:       rec.IsComplete(),
		State:          string(upload.StateOf(rec)),
		CreatedAt:      rec.CreatedAt,
	}
}
