package file_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"chunkdrive/internal/database"
	"chunkdrive/internal/domain/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// setupPostgres starts a disposable Postgres container. Opt in with TEST_INTEGRATION=1.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("chunkdrive_test"),
		postgres.WithUsername("chunkdrive"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, file.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestPostgresRepository_ConcurrentSlotWrites(t *testing.T) {
	ctx := context.Background()
	repo := file.NewRepository(setupPostgres(t))

	rec, err := repo.Create(ctx, file.CreateParams{
		FileName:    "big.bin",
		FileSize:    64,
		FileType:    "application/octet-stream",
		OwnerID:     "user-1",
		TotalChunks: 16,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			assert.NoError(t, repo.SetChunkHandle(ctx, rec.ID, idx, "msg"))
		}(i)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsComplete())
	assert.Len(t, got.Chunks, 16)

	require.NoError(t, repo.Delete(ctx, rec.ID))
	assert.ErrorIs(t, repo.SetChunkHandle(ctx, rec.ID, 1, "late"), file.ErrNotFound)
}
