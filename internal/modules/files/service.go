package files

import (
	"context"
	"strings"

	"chunkdrive/internal/domain/file"
)

// Service answers read-only questions about stored files.
type Service struct {
	files FileLister
}

func NewService(files FileLister) *Service {
	return &Service{files: files}
}

// ListFiles returns the owner's files, newest first. An empty owner lists
// the unowned files of a single-tenant deployment.
func (s *Service) ListFiles(ctx context.Context, ownerID string) ([]FileSummary, error) {
	recs, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]FileSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summaryOf(rec))
	}
	return out, nil
}

// GetFileMetadata is a public lookup by id; it does not check ownership.
func (s *Service) GetFileMetadata(ctx context.Context, id string) (*FileSummary, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, file.InvalidInput("file_id is required")
	}

	rec, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := summaryOf(rec)
	return &summary, nil
}
