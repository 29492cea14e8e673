package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"chunkdrive/internal/domain/file"
	"chunkdrive/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFileReader struct {
	mock.Mock
}

func (m *MockFileReader) GetByID(ctx context.Context, id string) (*file.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*file.Record), args.Error(1)
}

// memChunks serves chunk payloads from memory and remembers the fetch order.
type memChunks struct {
	mu      sync.Mutex
	data    map[string][]byte
	fetched []string
}

func (m *memChunks) FetchChunk(_ context.Context, handle string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, handle)
	b, ok := m.data[handle]
	if !ok {
		return nil, transport.ErrHandleNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func recordOf(size int64, slots ...file.ChunkSlot) *file.Record {
	return &file.Record{ID: "file-1", FileName: "a.bin", FileSize: size, FileType: "application/octet-stream", TotalChunks: len(slots), Chunks: slots}
}

func TestService_Reconstruct_OrdersByChunkIndex(t *testing.T) {
	files := new(MockFileReader)
	// Slots stored out of order, as if chunks had been uploaded 3,1,2.
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(9,
		file.ChunkSlot{ChunkIndex: 3, RemoteHandle: "h3"},
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
		file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "h2"},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa"), "h2": []byte("bbb"), "h3": []byte("ccc")}}

	stream, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
	require.NoError(t, err)
	defer stream.Close()

	assert.Empty(t, chunks.fetched, "nothing is fetched before the first read")

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "aaabbbccc", string(out))
	assert.Equal(t, []string{"h1", "h2", "h3"}, chunks.fetched)
	assert.EqualValues(t, 9, stream.Emitted())
}

func TestService_Reconstruct_NotFound(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "missing").Return(nil, file.ErrNotFound)

	_, err := NewService(files, &memChunks{}, nil).Reconstruct(context.Background(), "missing")
	assert.ErrorIs(t, err, file.ErrNotFound)
}

func TestService_Reconstruct_IncompleteFile(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(6,
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
		file.ChunkSlot{ChunkIndex: 2},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa")}}

	_, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
	assert.ErrorIs(t, err, file.ErrIncompleteFile)
	assert.Empty(t, chunks.fetched)
}

func TestStream_MissingChunkAbortsAfterEarlierBytes(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(9,
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
		file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "gone"},
		file.ChunkSlot{ChunkIndex: 3, RemoteHandle: "h3"},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa"), "h3": []byte("ccc")}}

	stream, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = io.Copy(&out, stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrHandleNotFound)
	assert.Equal(t, "aaa", out.String())
	assert.NotContains(t, chunks.fetched, "h3")

	_, again := stream.Read(make([]byte, 4))
	assert.Equal(t, err, again, "the failure is terminal")
}

func TestStream_SizeMismatchIsAnError(t *testing.T) {
	cases := map[string]int64{"short": 10, "long": 4}
	for name, size := range cases {
		t.Run(name, func(t *testing.T) {
			files := new(MockFileReader)
			files.On("GetByID", mock.Anything, "file-1").Return(recordOf(size,
				file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
				file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "h2"},
			), nil)
			chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa"), "h2": []byte("bbb")}}

			stream, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
			require.NoError(t, err)

			_, err = io.ReadAll(stream)
			assert.ErrorIs(t, err, ErrSizeMismatch)
		})
	}
}

func TestStream_CancelledContextStopsBeforeNextChunk(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(6,
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
		file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "h2"},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa"), "h2": []byte("bbb")}}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewService(files, chunks, nil).Reconstruct(ctx, "file-1")
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cancel()
	_, err = io.ReadAll(stream)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{"h1"}, chunks.fetched)
}

func TestStream_ReadAfterClose(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(3, file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"}), nil)

	stream, err := NewService(files, &memChunks{data: map[string][]byte{"h1": []byte("aaa")}}, nil).Reconstruct(context.Background(), "file-1")
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	_, err = stream.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_PrimeSurfacesMissingFirstChunk(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(6,
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "gone"},
		file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "h2"},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h2": []byte("bbb")}}

	stream, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
	require.NoError(t, err)
	defer stream.Close()

	err = stream.Prime()
	assert.ErrorIs(t, err, transport.ErrHandleNotFound)
	assert.Equal(t, []string{"gone"}, chunks.fetched)

	_, err = stream.Read(make([]byte, 8))
	assert.ErrorIs(t, err, transport.ErrHandleNotFound, "the failure is sticky")
	assert.Zero(t, stream.Emitted())
}

func TestStream_PrimeThenReadKeepsEveryByte(t *testing.T) {
	files := new(MockFileReader)
	files.On("GetByID", mock.Anything, "file-1").Return(recordOf(6,
		file.ChunkSlot{ChunkIndex: 1, RemoteHandle: "h1"},
		file.ChunkSlot{ChunkIndex: 2, RemoteHandle: "h2"},
	), nil)
	chunks := &memChunks{data: map[string][]byte{"h1": []byte("aaa"), "h2": []byte("bbb")}}

	stream, err := NewService(files, chunks, nil).Reconstruct(context.Background(), "file-1")
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Prime())
	require.NoError(t, stream.Prime())
	assert.Equal(t, []string{"h1"}, chunks.fetched)

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "aaabbb", string(out))
	assert.Equal(t, []string{"h1", "h2"}, chunks.fetched)
}
