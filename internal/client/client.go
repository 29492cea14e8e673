// Package client talks to the chunkdrive HTTP API. It splits files into
// fixed-size chunks on the caller side and submits them one stage at a time.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultChunkSize keeps every chunk under the message channel's attachment ceiling.
const DefaultChunkSize = 8 << 20

var (
	ErrShortDownload = errors.New("client: download ended before Content-Length bytes")
	ErrEmptyFile     = errors.New("client: file is empty")
)

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s: %s", e.Status, e.Code, e.Message)
}

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/") + "/api/files",
		token:   opts.Token,
		http:    hc,
	}
}

type FileSummary struct {
	FileID         string    `json:"file_id"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	FileType       string    `json:"file_type"`
	TotalChunks    int       `json:"total_chunks"`
	UploadedChunks int       `json:"uploaded_chunks"`
	Complete       bool      `json:"complete"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
}

type ChunkResult struct {
	RemoteHandle   string `json:"remote_handle"`
	ChunkIndex     int    `json:"chunk_index"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

type DeleteReport struct {
	Deleted []string `json:"deleted"`
	Failed  []struct {
		FileID string `json:"file_id"`
		Reason string `json:"reason"`
	} `json:"failed"`
}

// UploadProgress is called after each stage completes.
type UploadProgress func(res ChunkResult)

// TotalChunks is ceil(size / chunkSize).
func TotalChunks(size, chunkSize int64) int {
	return int((size + chunkSize - 1) / chunkSize)
}

// Upload declares the file, then runs one stage per chunk index in order. A
// failed stage stops the pipeline and returns the file id so the caller can
// resubmit the failed index.
func (c *Client) Upload(ctx context.Context, r io.Reader, name, mimeType string, size, chunkSize int64, onChunk UploadProgress) (string, error) {
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	total := TotalChunks(size, chunkSize)

	fileID, err := c.InitUpload(ctx, name, mimeType, size, total)
	if err != nil {
		return "", err
	}

	buf := make([]byte, chunkSize)
	for index := 1; index <= total; index++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fileID, fmt.Errorf("client: read chunk %d: %w", index, err)
		}
		res, err := c.UploadChunk(ctx, fileID, index, total, buf[:n])
		if err != nil {
			return fileID, err
		}
		if onChunk != nil {
			onChunk(*res)
		}
	}
	return fileID, nil
}

func (c *Client) InitUpload(ctx context.Context, name, mimeType string, size int64, totalChunks int) (string, error) {
	var out struct {
		FileID string `json:"file_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/upload/init", map[string]any{
		"file_name":    name,
		"file_size":    size,
		"file_type":    mimeType,
		"total_chunks": totalChunks,
	}, &out)
	return out.FileID, err
}

func (c *Client) UploadChunk(ctx context.Context, fileID string, index, total int, payload []byte) (*ChunkResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("file_id", fileID)
	_ = mw.WriteField("chunk_index", strconv.Itoa(index))
	_ = mw.WriteField("total_chunks", strconv.Itoa(total))
	part, err := mw.CreateFormFile("chunk", "chunk")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/chunk", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out ChunkResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download copies the file into w and returns the bytes written. A body that
// ends before Content-Length is reported as ErrShortDownload.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/download/"+fileID, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("%w: got %d of %d", ErrShortDownload, n, resp.ContentLength)
		}
		return n, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: got %d of %d", ErrShortDownload, n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) List(ctx context.Context) ([]FileSummary, error) {
	var out []FileSummary
	err := c.doJSON(ctx, http.MethodGet, "/list", nil, &out)
	return out, err
}

func (c *Client) Metadata(ctx context.Context, fileID string) (*FileSummary, error) {
	var out FileSummary
	if err := c.doJSON(ctx, http.MethodPost, "/filedata", map[string]string{"file_id": fileID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, fileIDs []string) (*DeleteReport, error) {
	var out DeleteReport
	if err := c.doJSON(ctx, http.MethodDelete, "/delete", map[string]any{"file_ids": fileIDs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
