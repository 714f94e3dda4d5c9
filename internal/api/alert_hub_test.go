package api

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corveth/warmap/internal/storage"
)

func TestAlertHubSubscribeBroadcast(t *testing.T) {
	hub := NewAlertHub(nil, zerolog.Nop())

	a := hub.Subscribe()
	b := hub.Subscribe()
	assert.Equal(t, 2, hub.SubscriberCount())

	alert := storage.ConflictAlert{ID: "conflict-1", Name: "Unrest in Wynn"}
	hub.broadcast(alert)

	require.Equal(t, alert, <-a)
	require.Equal(t, alert, <-b)

	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.SubscriberCount())

	// Closed channel drains immediately.
	_, open := <-a
	assert.False(t, open)

	hub.broadcast(alert)
	require.Equal(t, alert, <-b)
	hub.Unsubscribe(b)
}

func TestAlertHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewAlertHub(nil, zerolog.Nop())

	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Fill well past the channel capacity; broadcast must never block.
	for i := 0; i < 200; i++ {
		hub.broadcast(storage.ConflictAlert{ID: "conflict-x"})
	}

	assert.Equal(t, cap(ch), len(ch))
}
