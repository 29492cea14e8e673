package files

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chunkdrive/internal/middleware"
	"chunkdrive/internal/modules/upload"
	"chunkdrive/internal/pkg/response"
	"chunkdrive/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is the room left for form fields around a chunk.
const multipartOverhead = 1 << 20

// Handler is the HTTP boundary of the chunk engine.
type Handler struct {
	files         *Service
	uploads       Uploader
	downloads     Reconstructor
	deletions     Deleter
	progress      ProgressSubscriber
	maxChunkBytes int64
	logger        *slog.Logger
}

type HandlerDeps struct {
	Files         *Service
	Uploads       Uploader
	Downloads     Reconstructor
	Deletions     Deleter
	Progress      ProgressSubscriber
	MaxChunkBytes int64
	Logger        *slog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		files:         deps.Files,
		uploads:       deps.Uploads,
		downloads:     deps.Downloads,
		deletions:     deps.Deletions,
		progress:      deps.Progress,
		maxChunkBytes: deps.MaxChunkBytes,
		logger:        logger.With(slog.String("component", "files_http")),
	}
}

// RegisterRoutes mounts the file routes. Owner-scoped routes go on protected,
// which carries the auth middleware.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	if public != nil {
		public.POST("/upload/chunk", h.UploadChunk)
		public.GET("/download/:fileId", h.Download)
		public.POST("/filedata", h.GetFileMetadata)
		if h.progress != nil {
			public.GET("/upload/:fileId/progress", h.Progress)
		}
	}

	if protected != nil {
		protected.POST("/upload/init", h.InitUpload)
		protected.GET("/list", h.ListFiles)
		protected.DELETE("/delete", h.DeleteFiles)
	}
}

// InitUpload godoc
// @Summary Initialize a chunked upload
// @Tags Files
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InitUploadRequest true "File declaration"
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,500 {object} map[string]interface{}
// @Router /files/upload/init [post]
func (h *Handler) InitUpload(c *gin.Context) {
	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid upload declaration", errs)
		return
	}

	rec, err := h.uploads.InitUpload(c.Request.Context(), upload.InitRequest{
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		FileType:    req.FileType,
		TotalChunks: req.TotalChunks,
		OwnerID:     middleware.UserID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, InitUploadResponse{FileID: rec.ID, TotalChunks: rec.TotalChunks})
}

// UploadChunk godoc
// @Summary Upload one chunk
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file_id formData string true "File ID"
// @Param chunk_index formData int true "1-based chunk index"
// @Param total_chunks formData int false "Declared chunk count"
// @Param chunk formData file true "Chunk payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400,404,413,500,502 {object} map[string]interface{}
// @Router /files/upload/chunk [post]
func (h *Handler) UploadChunk(c *gin.Context) {
	if h.maxChunkBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkBytes+multipartOverhead)
	}

	if _, err := c.MultipartForm(); err != nil {
		if tooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE", "Chunk exceeds the transport limit")
			return
		}
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body")
		return
	}

	fileID := strings.TrimSpace(c.PostForm("file_id"))
	chunkIndex, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "chunk_index must be an integer")
		return
	}
	totalChunks := 0
	if raw := c.PostForm("total_chunks"); raw != "" {
		if totalChunks, err = strconv.Atoi(raw); err != nil {
			response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "total_chunks must be an integer")
			return
		}
	}

	header, err := c.FormFile("chunk")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_INPUT", "No chunk provided")
		return
	}
	if h.maxChunkBytes > 0 && header.Size > h.maxChunkBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE", "Chunk exceeds the transport limit")
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	payload, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.uploads.UploadChunk(c.Request.Context(), upload.ChunkRequest{
		FileID:      fileID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Payload:     payload,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, chunkResponse(res))
}

// Download godoc
// @Summary Download a file
// @Description Streams the chunks in index order. A failure mid-stream cuts the body short of Content-Length.
// @Tags Files
// @Produce octet-stream
// @Param fileId path string true "File ID"
// @Success 200 {file} binary
// @Failure 404,409,502 {object} map[string]interface{}
// @Router /files/download/{fileId} [get]
func (h *Handler) Download(c *gin.Context) {
	stream, err := h.downloads.Reconstruct(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer stream.Close()

	// Nothing is written until the first chunk is open, so a failure here
	// still gets a proper error status.
	if err := stream.Prime(); err != nil {
		writeError(c, err)
		return
	}

	rec := stream.Record()
	c.Header("Content-Type", rec.FileType)
	c.Header("Content-Disposition", contentDisposition(rec.FileName))
	c.Header("Content-Length", strconv.FormatInt(rec.FileSize, 10))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, stream); err != nil {
		// Headers are gone; the short body is the client's error signal.
		_ = c.Error(err)
		h.logger.Error("download aborted",
			slog.String("file_id", rec.ID),
			slog.Int64("bytes_sent", stream.Emitted()),
			slog.Int64("file_size", rec.FileSize),
			slog.String("error", err.Error()),
		)
		c.Abort()
	}
}

// ListFiles godoc
// @Summary List the caller's files
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /files/list [get]
func (h *Handler) ListFiles(c *gin.Context) {
	list, err := h.files.ListFiles(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// DeleteFiles godoc
// @Summary Delete files
// @Description Remote chunks are removed best-effort. One foreign id rejects the whole batch.
// @Tags Files
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DeleteFilesRequest true "File ids"
// @Success 200 {object} map[string]interface{}
// @Failure 400,403,500 {object} map[string]interface{}
// @Router /files/delete [delete]
func (h *Handler) DeleteFiles(c *gin.Context) {
	var req DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "file_ids is required", errs)
		return
	}

	report, err := h.deletions.DeleteMany(c.Request.Context(), req.FileIDs, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// GetFileMetadata godoc
// @Summary File metadata by id
// @Tags Files
// @Accept json
// @Produce json
// @Param request body FileDataRequest true "File id"
// @Success 200 {object} map[string]interface{}
// @Failure 400,404 {object} map[string]interface{}
// @Router /files/filedata [post]
func (h *Handler) GetFileMetadata(c *gin.Context) {
	var req FileDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "file_id is required", errs)
		return
	}

	meta, err := h.files.GetFileMetadata(c.Request.Context(), req.FileID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, meta)
}

// Progress refuses unknown ids before handing the connection to the websocket feed.
func (h *Handler) Progress(c *gin.Context) {
	if _, err := h.files.GetFileMetadata(c.Request.Context(), c.Param("fileId")); err != nil {
		writeError(c, err)
		return
	}
	h.progress.Subscribe(c)
}

// contentDisposition builds an RFC 5987 attachment header for any file name.
func contentDisposition(name string) string {
	return "attachment; filename*=UTF-8''" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
