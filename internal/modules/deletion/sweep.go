package deletion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chunkdrive/internal/domain/file"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunkdrive_orphan_sweep_removed_total",
		Help: "Orphaned remote chunks removed by the sweep.",
	})
	sweepFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunkdrive_orphan_sweep_failed_total",
		Help: "Orphaned remote chunks the sweep could not remove.",
	})
)

// OrphanLedger is the sweep's view of the orphaned-chunk table.
type OrphanLedger interface {
	List(ctx context.Context, limit int) ([]*file.OrphanedChunk, error)
	Remove(ctx context.Context, id int64) error
	Referenced(ctx context.Context, remoteHandle string) (bool, error)
}

// SweepResult summarizes one RunOnce pass over the ledger.
type SweepResult struct {
	Scanned  int
	Removed  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Sweeper drains the orphan ledger by deleting each remote chunk and then its
// ledger row. A failed delete keeps the row for the next run.
type Sweeper struct {
	ledger OrphanLedger
	chunks ChunkDeleter
	logger *slog.Logger

	mu sync.Mutex
}

func NewSweeper(ledger OrphanLedger, chunks ChunkDeleter, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		ledger: ledger,
		chunks: chunks,
		logger: logger.With(slog.String("component", "orphan_sweep")),
	}
}

// RunOnce processes up to limit ledger entries, oldest first. Handles that a
// chunk slot points to again are dropped from the ledger without a remote delete.
func (s *Sweeper) RunOnce(ctx context.Context, limit int) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	entries, err := s.ledger.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(entries)}
	for _, o := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		live, err := s.ledger.Referenced(ctx, o.RemoteHandle)
		if err != nil {
			return result, err
		}
		if live {
			result.Skipped++
		} else {
			if err := s.chunks.DeleteChunk(ctx, o.RemoteHandle); err != nil {
				result.Failed++
				sweepFailedTotal.Inc()
				s.logger.Warn("orphaned chunk delete failed",
					slog.Int64("orphan_id", o.ID),
					slog.String("remote_handle", o.RemoteHandle),
					slog.String("reason", string(o.Reason)),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.Removed++
			sweepRemovedTotal.Inc()
		}

		if err := s.ledger.Remove(ctx, o.ID); err != nil {
			return result, err
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info("orphan sweep finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("removed", result.Removed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}
