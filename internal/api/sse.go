package api

import (
	"encoding/json"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/corveth/warmap/internal/metrics"
)

const sseStreamID = "conflicts"

// newSSEServer builds the Server-Sent Events endpoint backing /api/stream.
// Alerts from the hub are relayed onto a single "conflicts" stream; clients
// that cannot speak WebSocket get the same feed this way.
func (s *Server) newSSEServer() *sse.Server {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(sseStreamID)

	server.OnSubscribe = func(streamID string, sub *sse.Subscriber) {
		metrics.SSEClientsActive.WithLabelValues().Inc()
	}
	server.OnUnsubscribe = func(streamID string, sub *sse.Subscriber) {
		metrics.SSEClientsActive.WithLabelValues().Dec()
	}

	go s.relayAlertsToSSE(server)
	return server
}

// relayAlertsToSSE forwards hub alerts to the SSE stream until the hub closes
// the subscription channel.
func (s *Server) relayAlertsToSSE(server *sse.Server) {
	ch := s.alertHub.Subscribe()
	for alert := range ch {
		payload, err := json.Marshal(WSMessage{Type: "conflict", Data: alert})
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to marshal SSE alert")
			continue
		}
		server.Publish(sseStreamID, &sse.Event{Data: payload})
	}
}

// handleSSEStream serves the SSE endpoint. The stream query parameter is
// implied; clients just connect to /api/stream.
//
// Route: GET /api/stream
func (s *Server) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("stream") == "" {
		q.Set("stream", sseStreamID)
		r.URL.RawQuery = q.Encode()
	}
	s.sse.ServeHTTP(w, r)
}
