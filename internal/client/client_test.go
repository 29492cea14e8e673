package client_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chunkdrive/internal/client"
	"chunkdrive/internal/database"
	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/middleware"
	"chunkdrive/internal/modules/deletion"
	"chunkdrive/internal/modules/download"
	"chunkdrive/internal/modules/files"
	"chunkdrive/internal/modules/upload"
	"chunkdrive/internal/pkg/jwt"
	"chunkdrive/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func newServer(t *testing.T) (*httptest.Server, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, file.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	repo := file.NewRepository(db)
	ledger := file.NewOrphanLedger(db)
	store := transport.NewBucket(memblob.OpenBucket(nil), 1<<20, time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	handler := files.NewHandler(files.HandlerDeps{
		Files:         files.NewService(repo),
		Uploads:       upload.NewService(repo, ledger, store, nil, 0, nil),
		Downloads:     download.NewService(repo, store, nil),
		Deletions:     deletion.NewCoordinator(repo, store, ledger, nil),
		MaxChunkBytes: store.MaxChunkBytes(),
	})

	j := jwt.New("secret", time.Hour)
	router := gin.New()
	protected := router.Group("/api/files")
	protected.Use(middleware.JWTAuth(j))
	handler.RegisterRoutes(router.Group("/api/files"), protected)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, j
}

func TestTotalChunks(t *testing.T) {
	assert.Equal(t, 1, client.TotalChunks(1, 8))
	assert.Equal(t, 1, client.TotalChunks(8, 8))
	assert.Equal(t, 2, client.TotalChunks(9, 8))
	assert.Equal(t, 3, client.TotalChunks(20_000_000, client.DefaultChunkSize))
}

func TestClient_RoundTrip(t *testing.T) {
	srv, j := newServer(t)
	token, err := j.GenerateToken("user-1")
	require.NoError(t, err)
	c := client.New(client.Options{BaseURL: srv.URL, Token: token, Timeout: 5 * time.Second})
	ctx := context.Background()

	content := []byte("0123456789")
	var stages []int
	fileID, err := c.Upload(ctx, bytes.NewReader(content), "digits.txt", "text/plain", int64(len(content)), 4, func(res client.ChunkResult) {
		stages = append(stages, res.ChunkIndex)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, stages)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].TotalChunks)
	assert.True(t, list[0].Complete)

	var out bytes.Buffer
	n, err := c.Download(ctx, fileID, &out)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)
	assert.Equal(t, content, out.Bytes())

	meta, err := c.Metadata(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "digits.txt", meta.FileName)

	report, err := c.Delete(ctx, []string{fileID})
	require.NoError(t, err)
	assert.Equal(t, []string{fileID}, report.Deleted)

	_, err = c.Download(ctx, fileID, &out)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestClient_Unauthorized(t *testing.T) {
	srv, _ := newServer(t)
	c := client.New(client.Options{BaseURL: srv.URL})

	_, err := c.Upload(context.Background(), bytes.NewReader([]byte("x")), "x", "text/plain", 1, 0, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClient_EmptyFile(t *testing.T) {
	c := client.New(client.Options{BaseURL: "http://unused"})
	_, err := c.Upload(context.Background(), bytes.NewReader(nil), "x", "text/plain", 0, 0, nil)
	assert.ErrorIs(t, err, client.ErrEmptyFile)
}
