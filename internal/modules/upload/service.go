package upload

import (
	"context"
	"log/slog"
	"strings"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/progress"
	"chunkdrive/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultMaxTotalChunks caps the slot count a single upload may declare.
const DefaultMaxTotalChunks = 10000

var chunkUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chunkdrive_chunk_uploads_total",
		Help: "Chunk submissions by outcome.",
	},
	[]string{"result"},
)

// State is the upload lifecycle of a file. It is always derived from the
// record's slots and never stored.
type State string

const (
	StateInitialized State = "initialized"
	StateUploading   State = "uploading"
	StateCompleted   State = "completed"
	// StateFailed applies to one chunk submission, never to the whole file.
	StateFailed State = "failed"
)

// StateOf derives the file-level state from its slots.
func StateOf(rec *file.Record) State {
	switch n := rec.UploadedChunks(); {
	case rec.IsComplete():
		return StateCompleted
	case n == 0:
		return StateInitialized
	default:
		return StateUploading
	}
}

// Service is the upload orchestrator: it allocates records and turns each
// chunk submission into one transport put followed by one slot write.
type Service struct {
	files          FileRepository
	orphans        OrphanRecorder
	chunks         ChunkStore
	progress       ProgressPublisher
	maxTotalChunks int
	logger         *slog.Logger
}

func NewService(files FileRepository, orphans OrphanRecorder, chunks ChunkStore, progress ProgressPublisher, maxTotalChunks int, logger *slog.Logger) *Service {
	if maxTotalChunks <= 0 {
		maxTotalChunks = DefaultMaxTotalChunks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		files:          files,
		orphans:        orphans,
		chunks:         chunks,
		progress:       progress,
		maxTotalChunks: maxTotalChunks,
		logger:         logger.With(slog.String("component", "upload")),
	}
}

// InitUpload creates the record with every slot empty and returns at once.
func (s *Service) InitUpload(ctx context.Context, req InitRequest) (*file.Record, error) {
	req.FileName = strings.TrimSpace(req.FileName)
	req.FileType = strings.TrimSpace(req.FileType)

	switch {
	case req.FileName == "":
		return nil, file.InvalidInput("file_name is required")
	case req.FileSize <= 0:
		return nil, file.InvalidInput("file_size must be positive")
	case req.FileType == "":
		return nil, file.InvalidInput("file_type is required")
	case req.TotalChunks <= 0:
		return nil, file.InvalidInput("total_chunks must be positive")
	case req.TotalChunks > s.maxTotalChunks:
		return nil, file.InvalidInput("total_chunks exceeds the per-file limit")
	case int64(req.TotalChunks) > req.FileSize:
		return nil, file.InvalidInput("total_chunks exceeds file_size")
	}
	if limit := s.chunks.MaxChunkBytes(); limit > 0 && req.FileSize > limit*int64(req.TotalChunks) {
		return nil, file.InvalidInput("file_size does not fit in total_chunks chunks")
	}

	rec, err := s.files.Create(ctx, file.CreateParams{
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		FileType:    req.FileType,
		OwnerID:     req.OwnerID,
		TotalChunks: req.TotalChunks,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("upload initialized",
		slog.String("file_id", rec.ID),
		slog.String("file_name", rec.FileName),
		slog.Int64("file_size", rec.FileSize),
		slog.Int("total_chunks", rec.TotalChunks),
	)
	return rec, nil
}

// UploadChunk stores one chunk and records its handle. Submissions for the
// same file may arrive in any order; each touches only its own slot.
func (s *Service) UploadChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if strings.TrimSpace(req.FileID) == "" {
		return nil, file.InvalidInput("file_id is required")
	}
	if len(req.Payload) == 0 {
		return nil, file.InvalidInput("chunk payload is empty")
	}

	rec, err := s.files.GetByID(ctx, req.FileID)
	if err != nil {
		return nil, err
	}
	if req.TotalChunks != 0 && req.TotalChunks != rec.TotalChunks {
		return nil, file.InvalidInput("total_chunks does not match the upload")
	}
	if !rec.ValidIndex(req.ChunkIndex) {
		chunkUploadsTotal.WithLabelValues("invalid_index").Inc()
		return nil, &ChunkError{FileID: rec.ID, ChunkIndex: req.ChunkIndex, Err: file.ErrInvalidChunkIndex}
	}
	previous, _ := rec.Slot(req.ChunkIndex)

	handle, err := s.chunks.PutChunk(ctx, transport.Chunk{
		DisplayName: file.ChunkDisplayName(rec.FileName, req.ChunkIndex),
		Caption:     file.ChunkCaption(rec.FileName, req.ChunkIndex),
		Payload:     req.Payload,
	})
	if err != nil {
		chunkUploadsTotal.WithLabelValues("transport_error").Inc()
		s.logger.Error("chunk put failed",
			slog.String("file_id", rec.ID),
			slog.Int("chunk_index", req.ChunkIndex),
			slog.String("error", err.Error()),
		)
		return nil, &ChunkError{FileID: rec.ID, ChunkIndex: req.ChunkIndex, Err: err}
	}

	if err := s.files.SetChunkHandle(ctx, rec.ID, req.ChunkIndex, handle); err != nil {
		chunkUploadsTotal.WithLabelValues("index_error").Inc()
		s.logger.Error("chunk index write failed, removing remote chunk",
			slog.String("file_id", rec.ID),
			slog.Int("chunk_index", req.ChunkIndex),
			slog.String("remote_handle", handle),
			slog.String("error", err.Error()),
		)
		s.compensate(ctx, rec.ID, req.ChunkIndex, handle)
		return nil, &ChunkError{FileID: rec.ID, ChunkIndex: req.ChunkIndex, Err: err}
	}

	if previous.Filled() && previous.RemoteHandle != handle {
		s.recordOrphan(ctx, rec.ID, req.ChunkIndex, previous.RemoteHandle, file.OrphanOverwritten)
	}

	uploaded := rec.UploadedChunks()
	if !previous.Filled() {
		uploaded++
	}
	result := &ChunkResult{
		FileID:         rec.ID,
		ChunkIndex:     req.ChunkIndex,
		RemoteHandle:   handle,
		UploadedChunks: uploaded,
		TotalChunks:    rec.TotalChunks,
		Complete:       uploaded == rec.TotalChunks,
	}

	chunkUploadsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("chunk stored",
		slog.String("file_id", rec.ID),
		slog.Int("chunk_index", req.ChunkIndex),
		slog.String("remote_handle", handle),
	)
	if result.Complete {
		s.logger.Info("upload completed", slog.String("file_id", rec.ID), slog.Int("total_chunks", rec.TotalChunks))
	}
	if s.progress != nil {
		s.progress.Publish(progress.Event{
			FileID:         rec.ID,
			ChunkIndex:     result.ChunkIndex,
			UploadedChunks: result.UploadedChunks,
			TotalChunks:    result.TotalChunks,
			Complete:       result.Complete,
		})
	}
	return result, nil
}

// compensate deletes a remote chunk whose slot write failed. It runs even if
// the caller has gone away; a failed delete is parked in the orphan ledger.
func (s *Service) compensate(ctx context.Context, fileID string, chunkIndex int, handle string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.chunks.DeleteChunk(ctx, handle); err != nil {
		s.logger.Error("compensating delete failed",
			slog.String("file_id", fileID),
			slog.Int("chunk_index", chunkIndex),
			slog.String("remote_handle", handle),
			slog.String("error", err.Error()),
		)
		s.recordOrphan(ctx, fileID, chunkIndex, handle, file.OrphanCompensationFailed)
	}
}

func (s *Service) recordOrphan(ctx context.Context, fileID string, chunkIndex int, handle string, reason file.OrphanReason) {
	if s.orphans == nil {
		return
	}
	err := s.orphans.Add(context.WithoutCancel(ctx), &file.OrphanedChunk{
		RemoteHandle: handle,
		FileID:       fileID,
		ChunkIndex:   chunkIndex,
		Reason:       reason,
	})
	if err != nil {
		s.logger.Error("orphaned chunk not recorded",
			slog.String("remote_handle", handle),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
}
