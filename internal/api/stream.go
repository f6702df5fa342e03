package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"socialpub/internal/broadcast"
)

const (
	// writeWait bounds one frame write to a slow client.
	writeWait = 10 * time.Second

	// pongWait is how long a client may go silent before the socket is
	// considered dead. Pings go out at a fraction of this.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxClientMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The edge gateway terminates browser connections and enforces origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream handles GET /api/posts/publish/ws?jobId=...
//
// The client receives a snapshot frame with the job's current state, then
// live progress frames, and finally the done frame, after which the socket
// closes. Connecting to an already-terminal job yields the terminal
// snapshot immediately. Missed frames are not replayed: the snapshot plus
// the store cover recovery.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "jobId query parameter is required")
		return
	}

	// Subscribe before reading the snapshot so no frame falls between
	// them. A frame that duplicates snapshot state is harmless.
	frames, cancel := h.broadcaster.Subscribe(jobID)
	defer cancel()

	j, err := h.svc.Get(r.Context(), jobID, OwnerID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Warn("WebSocket upgrade failed", "jobId", jobID, "error", err)
		return
	}
	defer conn.Close()

	logger := slog.With("component", "stream", "jobId", jobID)
	if h.metrics != nil {
		h.metrics.RecordSubscriberConnected(r.Context())
		defer h.metrics.RecordSubscriberDisconnected(r.Context())
	}

	if err := writeFrame(conn, broadcast.Snapshot(j)); err != nil {
		logger.Warn("Writing snapshot failed", "error", err)
		return
	}
	if j.Terminal() {
		closeNormally(conn)
		return
	}

	// Read pump: the client sends nothing meaningful, but reading is
	// required to process pongs and detect disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(maxClientMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				closeNormally(conn)
				return
			}
			if err := writeFrame(conn, f); err != nil {
				logger.Warn("Writing frame failed", "error", err)
				return
			}
			if f.Type == broadcast.FrameDone {
				closeNormally(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f broadcast.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func closeNormally(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
