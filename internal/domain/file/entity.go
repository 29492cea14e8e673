package file

import (
	"sort"
	"strconv"
	"time"
)

// ChunkSlot is one index-addressable position of a Record. RemoteHandle stays
// empty until the chunk for that index has been stored by the blob transport.
type ChunkSlot struct {
	ChunkIndex   int    `json:"chunk_index"`
	RemoteHandle string `json:"remote_handle,omitempty"`
}

// Filled reports whether the slot holds a remote handle.
func (s ChunkSlot) Filled() bool { return s.RemoteHandle != "" }

// Record maps a logical file to the ordered remote handles of its chunks.
// Chunks always has exactly TotalChunks slots, indexed 1..TotalChunks.
type Record struct {
	ID          string      `json:"file_id"`
	FileName    string      `json:"file_name"`
	FileSize    int64       `json:"file_size"`
	FileType    string      `json:"file_type"`
	OwnerID     string      `json:"owner_id,omitempty"`
	TotalChunks int         `json:"total_chunks"`
	Chunks      []ChunkSlot `json:"chunks"`
	CreatedAt   time.Time   `json:"created_at"`
}

// UploadedChunks counts filled slots.
func (r *Record) UploadedChunks() int {
	n := 0
	for _, s := range r.Chunks {
		if s.Filled() {
			n++
		}
	}
	return n
}

// IsComplete is derived from the slots on every call; there is no stored status.
func (r *Record) IsComplete() bool {
	if len(r.Chunks) != r.TotalChunks {
		return false
	}
	return r.UploadedChunks() == r.TotalChunks
}

// Slot returns the slot for a 1-based chunk index.
func (r *Record) Slot(chunkIndex int) (ChunkSlot, bool) {
	for _, s := range r.Chunks {
		if s.ChunkIndex == chunkIndex {
			return s, true
		}
	}
	return ChunkSlot{}, false
}

// ValidIndex reports whether chunkIndex lies in [1, TotalChunks].
func (r *Record) ValidIndex(chunkIndex int) bool {
	return chunkIndex >= 1 && chunkIndex <= r.TotalChunks
}

// OrderedChunks returns a copy of the slots sorted by ascending chunk index,
// which is the reconstruction order regardless of storage order.
func (r *Record) OrderedChunks() []ChunkSlot {
	out := make([]ChunkSlot, len(r.Chunks))
	copy(out, r.Chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// OwnedBy compares owners by plain equality. Two unowned records (single-tenant
// deployments) match an empty requester.
func (r *Record) OwnedBy(ownerID string) bool {
	return r.OwnerID == ownerID
}

// ChunkDisplayName is the attachment name used for a chunk in the blob transport.
func ChunkDisplayName(fileName string, chunkIndex int) string {
	return fileName + ".part" + strconv.Itoa(chunkIndex)
}

// ChunkCaption is the human-readable text sent along with a chunk.
func ChunkCaption(fileName string, chunkIndex int) string {
	return "Chunk " + strconv.Itoa(chunkIndex) + " of " + fileName
}

// CreateParams are the fields fixed when an upload is initialized.
type CreateParams struct {
	FileName    string
	FileSize    int64
	FileType    string
	OwnerID     string
	TotalChunks int
}

// OrphanReason explains why a remote chunk lost its index entry.
type OrphanReason string

const (
	OrphanCompensationFailed OrphanReason = "compensation_failed"
	OrphanOverwritten        OrphanReason = "overwritten"
	OrphanDeleteFailed       OrphanReason = "delete_failed"
)

// OrphanedChunk is a remote chunk that no FileRecord points to any more.
type OrphanedChunk struct {
	ID           int64        `json:"id"`
	RemoteHandle string       `json:"remote_handle"`
	FileID       string       `json:"file_id"`
	ChunkIndex   int          `json:"chunk_index"`
	Reason       OrphanReason `json:"reason"`
	CreatedAt    time.Time    `json:"created_at"`
}
