package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

// WebsocketHandler streams rotation snapshots to the teacher's dashboard so
// the rendered QR and countdown follow the server's timer, not the tab's.
type WebsocketHandler struct {
	config   *config.Config
	sessions *qrsession.Manager
}

func NewWebsocketHandler(cfg *config.Config, sessions *qrsession.Manager) *WebsocketHandler {
	return &WebsocketHandler{
		config:   cfg,
		sessions: sessions,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, check the origin properly!
	},
}

// handles GET /ws/session requests
func (h *WebsocketHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromQuery(r)
	if !ok {
		http.Error(w, "Missing or invalid 'session_id' query parameter", http.StatusBadRequest)
		return
	}

	// Subscribe before upgrading so a bad session id is still a plain HTTP error
	updates, cancel, err := h.sessions.Subscribe(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Err(err)
		return
	}
	defer ws.Close()

	// Reader goroutine only to detect the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first, then one snapshot per rotation
	snapshot, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		logger.Err(err)
		return
	}
	if err := ws.WriteJSON(snapshot); err != nil {
		logger.Err("write:", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case snapshot, open := <-updates:
			if !open {
				// Session was stopped
				ws.WriteJSON(map[string]any{"ended": true})
				return
			}
			if err := ws.WriteJSON(snapshot); err != nil {
				logger.Err("write:", err)
				return
			}
		}
	}
}
