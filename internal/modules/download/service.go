package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"chunkdrive/internal/domain/file"
)

var (
	// ErrSizeMismatch ends a stream whose chunks add up to a different length
	// than the recorded file size.
	ErrSizeMismatch = errors.New("reconstructed size does not match file size")
	ErrStreamClosed = errors.New("stream closed")
)

// Service is the Download Reconstructor.
type Service struct {
	files  FileReader
	chunks ChunkFetcher
	logger *slog.Logger
}

func NewService(files FileReader, chunks ChunkFetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		files:  files,
		chunks: chunks,
		logger: logger.With(slog.String("component", "download")),
	}
}

// Reconstruct checks the record and returns a stream that replays its chunks
// in ascending index order. No chunk is fetched until Prime or the first Read.
func (s *Service) Reconstruct(ctx context.Context, id string) (*Stream, error) {
	if id == "" {
		return nil, file.InvalidInput("file_id is required")
	}

	rec, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.IsComplete() {
		return nil, fmt.Errorf("%w: %d of %d chunks uploaded", file.ErrIncompleteFile, rec.UploadedChunks(), rec.TotalChunks)
	}

	return &Stream{
		ctx:    ctx,
		record: rec,
		stages: rec.OrderedChunks(),
		chunks: s.chunks,
		logger: s.logger.With(slog.String("file_id", rec.ID)),
	}, nil
}

// Stream is one reconstruction in progress. Each stage is one chunk; a stage
// is opened only after the previous one reached EOF. Any failure is sticky:
// every later Read returns the same error.
type Stream struct {
	ctx    context.Context
	record *file.Record
	stages []file.ChunkSlot
	chunks ChunkFetcher
	logger *slog.Logger

	next    int
	current io.ReadCloser
	emitted int64
	err     error
	closed  bool
}

// Record is the file being reconstructed.
func (s *Stream) Record() *file.Record { return s.record }

// Emitted is the number of bytes returned so far.
func (s *Stream) Emitted() int64 { return s.emitted }

func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.err != nil {
		return 0, s.err
	}

	for {
		if s.current != nil {
			n, err := s.current.Read(p)
			s.emitted += int64(n)
			if s.emitted > s.record.FileSize {
				return n, s.fail(fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, s.record.FileSize))
			}
			if err == io.EOF {
				_ = s.current.Close()
				s.current = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			if err != nil {
				return n, s.fail(fmt.Errorf("chunk %d: %w", s.stages[s.next-1].ChunkIndex, err))
			}
			return n, nil
		}

		if s.next >= len(s.stages) {
			if s.emitted != s.record.FileSize {
				return 0, s.fail(fmt.Errorf("%w: got %d of %d bytes", ErrSizeMismatch, s.emitted, s.record.FileSize))
			}
			return 0, io.EOF
		}

		if err := s.openNext(); err != nil {
			return 0, err
		}
	}
}

// Prime opens the first chunk without consuming it, so a caller can learn
// that the stream cannot start before committing to a response.
func (s *Stream) Prime() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.err != nil {
		return s.err
	}
	if s.current != nil || s.next > 0 || len(s.stages) == 0 {
		return nil
	}
	return s.openNext()
}

func (s *Stream) openNext() error {
	if err := s.ctx.Err(); err != nil {
		return s.fail(err)
	}
	stage := s.stages[s.next]
	rc, err := s.chunks.FetchChunk(s.ctx, stage.RemoteHandle)
	if err != nil {
		return s.fail(fmt.Errorf("chunk %d: %w", stage.ChunkIndex, err))
	}
	s.current = rc
	s.next++
	return nil
}

func (s *Stream) fail(err error) error {
	s.err = err
	if s.current != nil {
		_ = s.current.Close()
		s.current = nil
	}
	s.logger.Error("reconstruction aborted",
		slog.Int("chunk_stage", s.next),
		slog.Int64("bytes_emitted", s.emitted),
		slog.String("error", err.Error()),
	)
	return err
}

func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current != nil {
		err := s.current.Close()
		s.current = nil
		return err
	}
	return nil
}
