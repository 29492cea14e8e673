package progress

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events may queue for one subscriber before
	// further events for it are dropped.
	sendBuffer = 64
)

// Event reports that one chunk slot of a file was filled.
type Event struct {
	FileID         string `json:"file_id"`
	ChunkIndex     int    `json:"chunk_index"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// writePump owns all writes to the connection. It stops when send is closed
// or a write fails.
func (s *subscriber) writePump() {
	for ev := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(ev); err != nil {
			_ = s.conn.Close()
			return
		}
	}
}

// Hub fans upload progress out to websocket subscribers keyed by file id.
// The lock only guards the subscriber sets; socket writes happen on each
// subscriber's own goroutine.
type Hub struct {
	subscribers map[string]map[*websocket.Conn]*subscriber
	mutex       sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*websocket.Conn]*subscriber),
	}
}

func (h *Hub) Subscribe(fileID string, conn *websocket.Conn) {
	sub := &subscriber{conn: conn, send: make(chan Event, sendBuffer)}

	h.mutex.Lock()
	conns, ok := h.subscribers[fileID]
	if !ok {
		conns = make(map[*websocket.Conn]*subscriber)
		h.subscribers[fileID] = conns
	}
	conns[conn] = sub
	h.mutex.Unlock()

	go sub.writePump()
}

func (h *Hub) Unsubscribe(fileID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conns, ok := h.subscribers[fileID]
	if !ok {
		return
	}
	if sub, ok := conns[conn]; ok {
		close(sub.send)
		_ = conn.Close()
		delete(conns, conn)
	}
	if len(conns) == 0 {
		delete(h.subscribers, fileID)
	}
}

// Publish queues the event for every subscriber of its file and returns how
// many accepted it. It never waits on a socket: a subscriber whose queue is
// full misses the event.
func (h *Hub) Publish(ev Event) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	queued := 0
	for _, sub := range h.subscribers[ev.FileID] {
		select {
		case sub.send <- ev:
			queued++
		default:
		}
	}
	return queued
}

func (h *Hub) SubscriberCount(fileID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.subscribers[fileID])
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for fileID, conns := range h.subscribers {
		for conn, sub := range conns {
			close(sub.send)
			_ = conn.Close()
		}
		delete(h.subscribers, fileID)
	}
}
