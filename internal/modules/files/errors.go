package files

import (
	"errors"
	"net/http"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/upload"
	"chunkdrive/internal/pkg/response"
	"chunkdrive/internal/transport"

	"github.com/gin-gonic/gin"
)

type httpError struct {
	status  int
	code    string
	message string
}

// classify maps the engine's error taxonomy onto HTTP.
func classify(err error) httpError {
	switch {
	case errors.Is(err, file.ErrNotFound):
		return httpError{http.StatusNotFound, "NOT_FOUND", "File not found"}
	case errors.Is(err, file.ErrUnauthorized):
		return httpError{http.StatusForbidden, "FORBIDDEN", "You do not own every requested file"}
	case errors.Is(err, file.ErrInvalidChunkIndex):
		return httpError{http.StatusBadRequest, "INVALID_CHUNK_INDEX", err.Error()}
	case errors.Is(err, file.ErrInvalidInput):
		return httpError{http.StatusBadRequest, "INVALID_INPUT", err.Error()}
	case errors.Is(err, file.ErrIncompleteFile):
		return httpError{http.StatusConflict, "INCOMPLETE_FILE", err.Error()}
	case errors.Is(err, transport.ErrTransportRejected):
		return httpError{http.StatusRequestEntityTooLarge, "TRANSPORT_REJECTED", "Chunk rejected by blob transport"}
	case errors.Is(err, transport.ErrHandleNotFound):
		return httpError{http.StatusNotFound, "CHUNK_NOT_FOUND", "Remote chunk not found"}
	case errors.Is(err, transport.ErrTransportUnavailable), errors.Is(err, transport.ErrClosed):
		return httpError{http.StatusBadGateway, "TRANSPORT_UNAVAILABLE", "Blob transport unavailable"}
	default:
		return httpError{http.StatusInternalServerError, "INTERNAL", "Internal error"}
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	he := classify(err)

	var chunkErr *upload.ChunkError
	if errors.As(err, &chunkErr) {
		response.ErrorWithDetails(c, he.status, he.code, he.message, gin.H{
			"file_id":     chunkErr.FileID,
			"chunk_index": chunkErr.ChunkIndex,
			"state":       upload.StateFailed,
		})
		return
	}
	response.Error(c, he.status, he.code, he.message)
}
