package progress

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades progress subscriptions to websockets.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, allowedOrigins map[string]bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigins[origin]
			},
		},
		logger: logger.With(slog.String("component", "progress")),
	}
}

// Subscribe streams progress events for :fileId until the client disconnects.
func (h *Handler) Subscribe(c *gin.Context) {
	fileID := c.Param("fileId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
		return
	}
	h.hub.Subscribe(fileID, conn)
	defer h.hub.Unsubscribe(fileID, conn)

	// Inbound frames are ignored; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
