package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

const chunkPrefix = "chunks/"

// Bucket stores chunks as objects in a gocloud bucket (file://, mem://, ...).
// The remote handle is the object key.
type Bucket struct {
	bucket   *blob.Bucket
	maxBytes int64
	urlTTL   time.Duration

	mu     sync.RWMutex
	closed bool
}

// OpenBucket opens the bucket named by a gocloud URL.
func OpenBucket(ctx context.Context, bucketURL string, maxChunkBytes int64, urlTTL time.Duration) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open bucket: %w", ErrTransportUnavailable, err)
	}
	return NewBucket(b, maxChunkBytes, urlTTL), nil
}

// NewBucket wraps an already opened bucket. Close closes it.
func NewBucket(b *blob.Bucket, maxChunkBytes int64, urlTTL time.Duration) *Bucket {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Bucket{bucket: b, maxBytes: maxChunkBytes, urlTTL: urlTTL}
}

func (b *Bucket) MaxChunkBytes() int64 { return b.maxBytes }

func (b *Bucket) PutChunk(ctx context.Context, chunk Chunk) (string, error) {
	if err := b.checkOpen(); err != nil {
		return "", err
	}
	if b.maxBytes > 0 && int64(len(chunk.Payload)) > b.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds object limit %d", ErrTransportRejected, len(chunk.Payload), b.maxBytes)
	}

	key := chunkPrefix + uuid.New().String() + "/" + strings.ReplaceAll(chunk.DisplayName, "/", "_")
	opts := &blob.WriterOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"caption": chunk.Caption},
	}
	if err := b.bucket.WriteAll(ctx, key, chunk.Payload, opts); err != nil {
		return "", classifyBucketErr(err)
	}
	return key, nil
}

// ChunkLocation returns a signed URL for the object. Drivers without URL
// signing (mem://, and file:// unless opened with a URL signer) fail with
// ErrTransportUnavailable; FetchChunk works on every driver.
func (b *Bucket) ChunkLocation(ctx context.Context, handle string) (string, error) {
	if err := b.checkOpen(); err != nil {
		return "", err
	}

	exists, err := b.bucket.Exists(ctx, handle)
	if err != nil {
		return "", classifyBucketErr(err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
	}

	url, err := b.bucket.SignedURL(ctx, handle, &blob.SignedURLOptions{Expiry: b.urlTTL})
	if err != nil {
		return "", classifyBucketErr(err)
	}
	return url, nil
}

func (b *Bucket) FetchChunk(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	r, err := b.bucket.NewReader(ctx, handle, nil)
	if err != nil {
		return nil, classifyBucketErr(err)
	}
	return r, nil
}

func (b *Bucket) DeleteChunk(ctx context.Context, handle string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.bucket.Delete(ctx, handle)
	if err == nil || gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, handle, err)
}

func (b *Bucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.bucket.Close()
}

func (b *Bucket) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func classifyBucketErr(err error) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return fmt.Errorf("%w: %w", ErrHandleNotFound, err)
	case gcerrors.InvalidArgument, gcerrors.ResourceExhausted:
		return fmt.Errorf("%w: %w", ErrTransportRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
}
