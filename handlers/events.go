package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// SessionEvents handles GET /api/sessions/:section/events. It streams the
// session state once, then every session event as JSON.
func (h *APIHandler) SessionEvents(c *gin.Context) {
	ctrl, st, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "SessionEvents", err)
		return
	}
	events, cancel, err := ctrl.Subscribe()
	if err != nil {
		respondError(c, "SessionEvents", err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// the read side only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeJSON(conn, gin.H{"type": "state", "session": h.sessionView(st)}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			payload := gin.H{"type": ev.Type, "section": ev.Section, "run": ev.Run, "studentId": ev.StudentID}
			if ev.Student != nil {
				payload["student"] = h.view(*ev.Student)
			}
			if ev.StudentCount > 0 {
				payload["studentCount"] = ev.StudentCount
			}
			if err := writeJSON(conn, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("WebSocket write failed: %v", err)
		return err
	}
	return nil
}
