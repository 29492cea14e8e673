package upload

import "fmt"

// ChunkError marks a single chunk as failed. Sibling chunks already stored
// stay in place, so the caller can resubmit this index with the same file id.
type ChunkError struct {
	FileID     string
	ChunkIndex int
	Err        error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d of file %s: %v", e.ChunkIndex, e.FileID, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
