package upload

// InitRequest declares a new file before any chunk is sent.
type InitRequest struct {
	FileName    string
	FileSize    int64
	FileType    string
	TotalChunks int
	OwnerID     string
}

// ChunkRequest carries one chunk payload. TotalChunks is optional; when set
// it must match the record.
type ChunkRequest struct {
	FileID      string
	ChunkIndex  int
	TotalChunks int
	Payload     []byte
}

// ChunkResult is returned after a slot was filled.
type ChunkResult struct {
	FileID         string `json:"file_id"`
	ChunkIndex     int    `json:"chunk_index"`
	RemoteHandle   string `json:"remote_handle"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}
