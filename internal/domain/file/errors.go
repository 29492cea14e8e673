package file

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("file not found")
	ErrUnauthorized   = errors.New("requester does not own this file")
	ErrInvalidInput   = errors.New("invalid input")
	ErrIncompleteFile = errors.New("file has chunks that were never uploaded")
	ErrPersistence    = errors.New("metadata store failure")

	ErrInvalidChunkIndex = fmt.Errorf("%w: chunk index out of range", ErrInvalidInput)
)

// InvalidInput wraps ErrInvalidInput with a field-level reason.
func InvalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
