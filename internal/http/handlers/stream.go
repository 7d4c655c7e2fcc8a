package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/steveyiyo/livetutor/internal/core/session"
	"github.com/steveyiyo/livetutor/pkg/types"
	"github.com/steveyiyo/livetutor/pkg/ws"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes session events to UI subscribers.
type StreamHandler struct {
	Hub      *ws.Hub
	Sess     *session.Service
	Log      *slog.Logger
	Upgrader websocket.Upgrader
}

func NewStreamHandler(h *ws.Hub, s *session.Service, log *slog.Logger) *StreamHandler {
	return &StreamHandler{
		Hub:  h,
		Sess: s,
		Log:  log,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) WS(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	id := uuid.NewString()
	sub := h.Hub.Add(id, conn)
	defer func() {
		h.Hub.Remove(id)
		conn.Close()
	}()
	h.Log.Debug("stream subscriber joined", "id", id, "subscribers", h.Hub.Len())

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	st := h.Sess.State()
	hello := types.NewEvent("hello")
	hello.State = st.State
	hello.Message = st.Error
	hello.Entries = h.Sess.Transcripts()
	if err := sub.WriteJSON(hello); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := sub.Ping(); err != nil {
					return
				}
			}
		}
	}()

	// subscribers only listen; reading keeps the deadline and close handshake alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Log.Debug("stream subscriber left", "id", id, "err", err)
			return
		}
	}
}
