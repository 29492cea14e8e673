package upload

import (
	"context"
	"errors"
	"testing"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/modules/progress"
	"chunkdrive/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Create(ctx context.Context, params file.CreateParams) (*file.Record, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*file.Record), args.Error(1)
}

func (m *MockFileRepository) GetByID(ctx context.Context, id string) (*file.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*file.Record), args.Error(1)
}

func (m *MockFileRepository) SetChunkHandle(ctx context.Context, id string, chunkIndex int, remoteHandle string) error {
	args := m.Called(ctx, id, chunkIndex, remoteHandle)
	return args.Error(0)
}

type MockOrphanRecorder struct {
	mock.Mock
}

func (m *MockOrphanRecorder) Add(ctx context.Context, o *file.OrphanedChunk) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) PutChunk(ctx context.Context, chunk transport.Chunk) (string, error) {
	args := m.Called(ctx, chunk)
	return args.String(0), args.Error(1)
}

func (m *MockChunkStore) DeleteChunk(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

func (m *MockChunkStore) MaxChunkBytes() int64 {
	return 8 << 20
}

type recordingPublisher struct {
	events []progress.Event
}

func (p *recordingPublisher) Publish(ev progress.Event) int {
	p.events = append(p.events, ev)
	return 1
}

func newRecord(total int, handles ...string) *file.Record {
	rec := &file.Record{
		ID:          "file-1",
		FileName:    "report.pdf",
		FileSize:    20_000_000,
		FileType:    "application/pdf",
		OwnerID:     "user-1",
		TotalChunks: total,
	}
	for i := 1; i <= total; i++ {
		slot := file.ChunkSlot{ChunkIndex: i}
		if i <= len(handles) {
			slot.RemoteHandle = handles[i-1]
		}
		rec.Chunks = append(rec.Chunks, slot)
	}
	return rec
}

func TestService_InitUpload_Success(t *testing.T) {
	files := new(MockFileRepository)
	files.On("Create", mock.Anything, file.CreateParams{
		FileName:    "report.pdf",
		FileSize:    20_000_000,
		FileType:    "application/pdf",
		OwnerID:     "user-1",
		TotalChunks: 3,
	}).Return(newRecord(3), nil)

	service := NewService(files, nil, new(MockChunkStore), nil, 0, nil)

	rec, err := service.InitUpload(context.Background(), InitRequest{
		FileName:    " report.pdf ",
		FileSize:    20_000_000,
		FileType:    "application/pdf",
		TotalChunks: 3,
		OwnerID:     "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "file-1", rec.ID)
	assert.Len(t, rec.Chunks, 3)
	assert.Equal(t, StateInitialized, StateOf(rec))
	files.AssertExpectations(t)
}

func TestService_InitUpload_Validation(t *testing.T) {
	service := NewService(new(MockFileRepository), nil, new(MockChunkStore), nil, 5, nil)

	cases := map[string]InitRequest{
		"missing name":           {FileSize: 10, FileType: "text/plain", TotalChunks: 1},
		"zero size":              {FileName: "a", FileType: "text/plain", TotalChunks: 1},
		"missing type":           {FileName: "a", FileSize: 10, TotalChunks: 1},
		"zero chunks":            {FileName: "a", FileSize: 10, FileType: "text/plain"},
		"too many chunks":        {FileName: "a", FileSize: 100, FileType: "text/plain", TotalChunks: 6},
		"more chunks than bytes": {FileName: "a", FileSize: 2, FileType: "text/plain", TotalChunks: 3},
		"chunks too small":       {FileName: "a", FileSize: 3 * (8 << 20), FileType: "text/plain", TotalChunks: 2},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.InitUpload(context.Background(), req)
			assert.ErrorIs(t, err, file.ErrInvalidInput)
		})
	}
}

func TestService_UploadChunk_Success(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	pub := &recordingPublisher{}

	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3, "h1", "h2"), nil)
	chunks.On("PutChunk", mock.Anything, transport.Chunk{
		DisplayName: "report.pdf.part3",
		Caption:     "Chunk 3 of report.pdf",
		Payload:     []byte("tail"),
	}).Return("h3", nil)
	files.On("SetChunkHandle", mock.Anything, "file-1", 3, "h3").Return(nil)

	service := NewService(files, nil, chunks, pub, 0, nil)
	res, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 3, TotalChunks: 3, Payload: []byte("tail")})

	require.NoError(t, err)
	assert.Equal(t, "h3", res.RemoteHandle)
	assert.Equal(t, 3, res.ChunkIndex)
	assert.Equal(t, 3, res.UploadedChunks)
	assert.True(t, res.Complete)
	require.Len(t, pub.events, 1)
	assert.True(t, pub.events[0].Complete)
	files.AssertExpectations(t)
	chunks.AssertExpectations(t)
}

func TestService_UploadChunk_OutOfRangeMakesNoTransportCall(t *testing.T) {
	for _, idx := range []int{0, 4} {
		files := new(MockFileRepository)
		chunks := new(MockChunkStore)
		files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3), nil)

		service := NewService(files, nil, chunks, nil, 0, nil)
		_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: idx, Payload: []byte("x")})

		assert.ErrorIs(t, err, file.ErrInvalidChunkIndex)
		var chunkErr *ChunkError
		require.ErrorAs(t, err, &chunkErr)
		assert.Equal(t, idx, chunkErr.ChunkIndex)
		chunks.AssertNotCalled(t, "PutChunk", mock.Anything, mock.Anything)
		files.AssertNotCalled(t, "SetChunkHandle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestService_UploadChunk_TotalChunksMismatch(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3), nil)

	service := NewService(files, nil, chunks, nil, 0, nil)
	_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 1, TotalChunks: 4, Payload: []byte("x")})

	assert.ErrorIs(t, err, file.ErrInvalidInput)
	chunks.AssertNotCalled(t, "PutChunk", mock.Anything, mock.Anything)
}

func TestService_UploadChunk_UnknownFile(t *testing.T) {
	files := new(MockFileRepository)
	files.On("GetByID", mock.Anything, "nope").Return(nil, file.ErrNotFound)

	service := NewService(files, nil, new(MockChunkStore), nil, 0, nil)
	_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "nope", ChunkIndex: 1, Payload: []byte("x")})

	assert.ErrorIs(t, err, file.ErrNotFound)
}

func TestService_UploadChunk_TransportFailureKeepsSiblings(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3, "h1"), nil)
	chunks.On("PutChunk", mock.Anything, mock.Anything).Return("", transport.ErrTransportUnavailable)

	service := NewService(files, nil, chunks, nil, 0, nil)
	_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 2, Payload: []byte("x")})

	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	files.AssertNotCalled(t, "SetChunkHandle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	chunks.AssertNotCalled(t, "DeleteChunk", mock.Anything, mock.Anything)
}

func TestService_UploadChunk_IndexFailureDeletesRemoteChunk(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	orphans := new(MockOrphanRecorder)

	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3), nil)
	chunks.On("PutChunk", mock.Anything, mock.Anything).Return("h1", nil)
	files.On("SetChunkHandle", mock.Anything, "file-1", 1, "h1").Return(file.ErrPersistence)
	chunks.On("DeleteChunk", mock.Anything, "h1").Return(nil)

	service := NewService(files, orphans, chunks, nil, 0, nil)
	_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 1, Payload: []byte("x")})

	assert.ErrorIs(t, err, file.ErrPersistence)
	chunks.AssertCalled(t, "DeleteChunk", mock.Anything, "h1")
	orphans.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestService_UploadChunk_FailedCompensationIsRecorded(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	orphans := new(MockOrphanRecorder)

	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(3), nil)
	chunks.On("PutChunk", mock.Anything, mock.Anything).Return("h1", nil)
	files.On("SetChunkHandle", mock.Anything, "file-1", 1, "h1").Return(file.ErrPersistence)
	chunks.On("DeleteChunk", mock.Anything, "h1").Return(transport.ErrDeleteFailed)
	orphans.On("Add", mock.Anything, mock.MatchedBy(func(o *file.OrphanedChunk) bool {
		return o.RemoteHandle == "h1" && o.Reason == file.OrphanCompensationFailed
	})).Return(nil)

	service := NewService(files, orphans, chunks, nil, 0, nil)
	_, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 1, Payload: []byte("x")})

	assert.ErrorIs(t, err, file.ErrPersistence)
	orphans.AssertExpectations(t)
}

func TestService_UploadChunk_CompensatesAfterCallerCancel(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	ctx, cancel := context.WithCancel(context.Background())

	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(1), nil)
	chunks.On("PutChunk", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return("h1", nil)
	files.On("SetChunkHandle", mock.Anything, "file-1", 1, "h1").Return(context.Canceled)
	chunks.On("DeleteChunk", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), "h1").Return(nil)

	service := NewService(files, nil, chunks, nil, 0, nil)
	_, err := service.UploadChunk(ctx, ChunkRequest{FileID: "file-1", ChunkIndex: 1, Payload: []byte("x")})

	assert.True(t, errors.Is(err, context.Canceled))
	chunks.AssertExpectations(t)
}

func TestService_UploadChunk_ReuploadOrphansPreviousHandle(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkStore)
	orphans := new(MockOrphanRecorder)

	files.On("GetByID", mock.Anything, "file-1").Return(newRecord(2, "old"), nil)
	chunks.On("PutChunk", mock.Anything, mock.Anything).Return("new", nil)
	files.On("SetChunkHandle", mock.Anything, "file-1", 1, "new").Return(nil)
	orphans.On("Add", mock.Anything, mock.MatchedBy(func(o *file.OrphanedChunk) bool {
		return o.RemoteHandle == "old" && o.Reason == file.OrphanOverwritten && o.ChunkIndex == 1
	})).Return(nil)

	service := NewService(files, orphans, chunks, nil, 0, nil)
	res, err := service.UploadChunk(context.Background(), ChunkRequest{FileID: "file-1", ChunkIndex: 1, Payload: []byte("x")})

	require.NoError(t, err)
	assert.Equal(t, 1, res.UploadedChunks, "re-upload does not add a slot")
	assert.False(t, res.Complete)
	chunks.AssertNotCalled(t, "DeleteChunk", mock.Anything, mock.Anything)
	orphans.AssertExpectations(t)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateInitialized, StateOf(newRecord(2)))
	assert.Equal(t, StateUploading, StateOf(newRecord(2, "a")))
	assert.Equal(t, StateCompleted, StateOf(newRecord(2, "a", "b")))
}
