package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chunkdrive/internal/domain/file"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reasons reported per id.
const (
	ReasonNotFound    = "NOT_FOUND"
	ReasonPersistence = "PERSISTENCE_FAILURE"
)

var remoteCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunkdrive_remote_cleanup_failures_total",
	Help: "Remote chunk deletes that failed during file deletion.",
})

// Failure names one id the batch could not delete and why.
type Failure struct {
	FileID string `json:"file_id"`
	Reason string `json:"reason"`
}

// Report is the partial-success result of a batch delete.
type Report struct {
	Deleted []string  `json:"deleted"`
	Failed  []Failure `json:"failed"`
}

// Coordinator removes files: remote chunks best-effort, the record authoritatively.
type Coordinator struct {
	files   FileRepository
	chunks  ChunkDeleter
	orphans OrphanRecorder
	logger  *slog.Logger
}

func NewCoordinator(files FileRepository, chunks ChunkDeleter, orphans OrphanRecorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		files:   files,
		chunks:  chunks,
		orphans: orphans,
		logger:  logger.With(slog.String("component", "deletion")),
	}
}

// DeleteMany deletes every id owned by requesterID. All records are loaded and
// checked before anything is deleted, so one foreign id fails the whole batch
// with file.ErrUnauthorized and leaves every file untouched.
func (c *Coordinator) DeleteMany(ctx context.Context, ids []string, requesterID string) (*Report, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, file.InvalidInput("file_ids must not be empty")
	}

	report := &Report{Deleted: []string{}, Failed: []Failure{}}
	records := make([]*file.Record, 0, len(ids))

	for _, id := range ids {
		rec, err := c.files.GetByID(ctx, id)
		switch {
		case errors.Is(err, file.ErrNotFound):
			report.Failed = append(report.Failed, Failure{FileID: id, Reason: ReasonNotFound})
			continue
		case err != nil:
			return nil, err
		}
		if !rec.OwnedBy(requesterID) {
			c.logger.Warn("batch delete rejected",
				slog.String("file_id", id),
				slog.String("requester_id", requesterID),
			)
			return nil, fmt.Errorf("%w: %s", file.ErrUnauthorized, id)
		}
		records = append(records, rec)
	}

	for _, rec := range records {
		c.cleanupRemote(ctx, rec)

		if err := c.files.Delete(ctx, rec.ID); err != nil {
			reason := ReasonPersistence
			if errors.Is(err, file.ErrNotFound) {
				reason = ReasonNotFound
			}
			c.logger.Error("file record delete failed", slog.String("file_id", rec.ID), slog.String("error", err.Error()))
			report.Failed = append(report.Failed, Failure{FileID: rec.ID, Reason: reason})
			continue
		}
		report.Deleted = append(report.Deleted, rec.ID)
	}

	c.logger.Info("batch delete finished",
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// cleanupRemote walks the slots in index order. A failed delete is logged and
// parked in the orphan ledger; it never stops the walk.
func (c *Coordinator) cleanupRemote(ctx context.Context, rec *file.Record) {
	for _, slot := range rec.OrderedChunks() {
		if !slot.Filled() {
			continue
		}
		err := c.chunks.DeleteChunk(ctx, slot.RemoteHandle)
		if err == nil {
			continue
		}

		remoteCleanupFailures.Inc()
		c.logger.Warn("remote chunk delete failed",
			slog.String("file_id", rec.ID),
			slog.Int("chunk_index", slot.ChunkIndex),
			slog.String("remote_handle", slot.RemoteHandle),
			slog.String("error", err.Error()),
		)
		if c.orphans == nil {
			continue
		}
		if err := c.orphans.Add(context.WithoutCancel(ctx), &file.OrphanedChunk{
			RemoteHandle: slot.RemoteHandle,
			FileID:       rec.ID,
			ChunkIndex:   slot.ChunkIndex,
			Reason:       file.OrphanDeleteFailed,
		}); err != nil {
			c.logger.Error("orphaned chunk not recorded", slog.String("remote_handle", slot.RemoteHandle), slog.String("error", err.Error()))
		}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
