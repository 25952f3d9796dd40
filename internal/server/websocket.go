package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Messages a client may send
const clientDiscover = "discover"

// HandleWebSocket streams discovery results to the client.
// The latest result (if any) is sent right away, then every new one.
// A text message "discover" from the client starts a cycle.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.activeConns[id] = conn
	s.mu.Unlock()

	s.wg.Add(1)
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, id)
		s.mu.Unlock()
		logging.LogConnection(r.RemoteAddr, "websocket_closed")
		s.wg.Done()
	}()

	logging.LogConnection(r.RemoteAddr, "websocket_opened")

	sub := s.session.Results().Subscribe()
	defer sub.Close()

	readDone := make(chan struct{})
	go s.readPump(conn, id, readDone)

	s.writePump(conn, id, sub.C, readDone)
}

// readPump handles control frames and client commands until the peer goes away
func (s *Server) readPump(conn *websocket.Conn, id string, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("WebSocket read error", zap.String("conn", id), zap.Error(err))
			}
			return
		}
		if messageType == websocket.TextMessage && string(data) == clientDiscover {
			logging.Debug("Discovery requested over WebSocket", zap.String("conn", id))
			s.session.StartDiscovery()
		}
	}
}

// writePump forwards results and keeps the connection alive with pings
func (s *Server) writePump(conn *websocket.Conn, id string, results <-chan []*discovery.Gateway, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case result, ok := <-results:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session stopped"))
				return
			}
			msg := s.gatewaysResponse(result, true)
			msg.Type = "result"
			if err := conn.WriteJSON(msg); err != nil {
				logging.Info("WebSocket write failed", zap.String("conn", id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}
