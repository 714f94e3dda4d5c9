package api

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/storage"
)

// AlertHub manages a single Redis stream subscription and fans new-conflict
// alerts out to every connected WebSocket and SSE client. One shared XRead
// loop instead of one blocking read per client.
type AlertHub struct {
	mu          sync.RWMutex
	subscribers map[chan storage.ConflictAlert]struct{}
	logger      zerolog.Logger
	cache       *storage.ResultCache
	cancel      context.CancelFunc
}

// NewAlertHub creates an AlertHub. Call Run() in a goroutine to start the
// shared subscription.
func NewAlertHub(cache *storage.ResultCache, logger zerolog.Logger) *AlertHub {
	return &AlertHub{
		subscribers: make(map[chan storage.ConflictAlert]struct{}),
		logger:      logger.With().Str("component", "alert-hub").Logger(),
		cache:       cache,
	}
}

// Run starts the shared subscription loop, reconnecting on failure.
func (h *AlertHub) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	if h.cache == nil {
		h.logger.Warn().Msg("Result cache not configured; alert hub will idle")
		<-ctx.Done()
		return
	}

	h.logger.Info().Msg("Alert hub started")

	for {
		err := h.cache.SubscribeAlerts(ctx, func(alert storage.ConflictAlert) {
			h.broadcast(alert)
		})

		if ctx.Err() != nil {
			return // shutdown
		}
		h.logger.Warn().Err(err).Msg("Alert subscription ended, reconnecting")
	}
}

// Stop terminates the subscription loop.
func (h *AlertHub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Subscribe returns a channel that receives alerts. The caller MUST call
// Unsubscribe when done to avoid leaks.
func (h *AlertHub) Subscribe() chan storage.ConflictAlert {
	ch := make(chan storage.ConflictAlert, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug().Int("total", total).Msg("Alert subscriber added")
	return ch
}

// Unsubscribe removes a subscriber channel. After this call the channel must
// not be read from.
func (h *AlertHub) Unsubscribe(ch chan storage.ConflictAlert) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	close(ch)
	total := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug().Int("total", total).Msg("Alert subscriber removed")
}

// SubscriberCount returns the current number of subscribers.
func (h *AlertHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// broadcast sends an alert to all subscribers, non-blocking per subscriber.
func (h *AlertHub) broadcast(alert storage.ConflictAlert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- alert:
		default:
			// Subscriber channel full; drop rather than block the shared
			// subscription goroutine.
		}
	}
}
