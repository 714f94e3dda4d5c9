package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corveth/warmap/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the envelope for every message pushed to WebSocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebSocketAlerts upgrades the connection and streams new-conflict alerts
// from the shared AlertHub.
//
// Route: WS /ws/alerts
func (s *Server) WebSocketAlerts(w http.ResponseWriter, r *http.Request) {
	if max := int64(s.config.API.MaxWebsocketConnections); max > 0 && atomic.LoadInt64(&s.wsClients) >= max {
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Too many WebSocket connections", ErrCodeServiceUnavailable, "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket alert upgrade failed")
		return
	}

	atomic.AddInt64(&s.wsClients, 1)
	metrics.WebSocketConnectionsTotal.WithLabelValues().Inc()
	metrics.WebSocketConnectionsActive.WithLabelValues().Inc()
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Alerts WebSocket client connected")

	alertCh := s.alertHub.Subscribe()
	done := make(chan struct{})

	// readPump: detect client disconnect.
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)

	go func() {
		defer func() {
			pingTicker.Stop()
			s.alertHub.Unsubscribe(alertCh)
			conn.Close()
			atomic.AddInt64(&s.wsClients, -1)
			metrics.WebSocketConnectionsActive.WithLabelValues().Dec()
		}()

		for {
			select {
			case alert, ok := <-alertCh:
				if !ok {
					return
				}
				payload, err := json.Marshal(WSMessage{Type: "conflict", Data: alert})
				if err != nil {
					s.logger.Error().Err(err).Msg("Failed to marshal alert")
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					metrics.WebSocketMessagesDropped.WithLabelValues().Inc()
					s.logger.Debug().Err(err).Msg("Alert WS write error")
					return
				}
				metrics.WebSocketMessagesBroadcast.WithLabelValues("conflict").Inc()

			case <-pingTicker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-done:
				return
			}
		}
	}()
}
