package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunkdrive_transport_operations_total",
			Help: "Blob transport calls by operation and result.",
		},
		[]string{"backend", "operation", "result"},
	)

	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chunkdrive_transport_operation_duration_seconds",
			Help:    "Latency of blob transport calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "operation"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunkdrive_transport_bytes_total",
			Help: "Chunk payload bytes moved through the blob transport.",
		},
		[]string{"backend", "direction"},
	)
)

// instrumented bounds every call with a deadline and records metrics.
type instrumented struct {
	next    Transport
	backend string
	timeout time.Duration
}

// Instrument decorates a Transport with per-call deadlines and Prometheus metrics.
// A zero timeout leaves deadlines to the caller's context.
func Instrument(next Transport, backend string, timeout time.Duration) Transport {
	return &instrumented{next: next, backend: backend, timeout: timeout}
}

func (t *instrumented) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *instrumented) observe(op string, start time.Time, err error) {
	opDuration.WithLabelValues(t.backend, op).Observe(time.Since(start).Seconds())
	opsTotal.WithLabelValues(t.backend, op, resultLabel(err)).Inc()
}

func (t *instrumented) PutChunk(ctx context.Context, chunk Chunk) (string, error) {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()

	start := time.Now()
	handle, err := t.next.PutChunk(ctx, chunk)
	t.observe("put", start, err)
	if err == nil {
		bytesTotal.WithLabelValues(t.backend, "out").Add(float64(len(chunk.Payload)))
	}
	return handle, err
}

func (t *instrumented) ChunkLocation(ctx context.Context, handle string) (string, error) {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()

	start := time.Now()
	url, err := t.next.ChunkLocation(ctx, handle)
	t.observe("locate", start, err)
	return url, err
}

func (t *instrumented) FetchChunk(ctx context.Context, handle string) (io.ReadCloser, error) {
	ctx, cancel := t.withDeadline(ctx)

	start := time.Now()
	rc, err := t.next.FetchChunk(ctx, handle)
	t.observe("fetch", start, err)
	if err != nil {
		cancel()
		return nil, err
	}
	// The deadline covers reading the body, so it is released on Close.
	return &countingReader{rc: rc, cancel: cancel, counter: bytesTotal.WithLabelValues(t.backend, "in")}, nil
}

func (t *instrumented) DeleteChunk(ctx context.Context, handle string) error {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()

	start := time.Now()
	err := t.next.DeleteChunk(ctx, handle)
	t.observe("delete", start, err)
	return err
}

func (t *instrumented) MaxChunkBytes() int64 { return t.next.MaxChunkBytes() }

func (t *instrumented) Close() error { return t.next.Close() }

type countingReader struct {
	rc      io.ReadCloser
	cancel  context.CancelFunc
	counter prometheus.Counter
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.counter.Add(float64(n))
	}
	return n, err
}

func (r *countingReader) Close() error {
	err := r.rc.Close()
	r.cancel()
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrHandleNotFound):
		return "not_found"
	case errors.Is(err, ErrTransportRejected):
		return "rejected"
	case errors.Is(err, ErrDeleteFailed):
		return "delete_failed"
	case errors.Is(err, ErrTransportUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
