package ingestor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/snapshot"
)

type recorderSink struct {
	mu     sync.Mutex
	events []snapshot.RawExchange
}

func (r *recorderSink) Produce(ev snapshot.RawExchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorderSink) all() []snapshot.RawExchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]snapshot.RawExchange(nil), r.events...)
}

type fakeTerritoryAPI struct {
	mu       sync.Mutex
	payload  map[string]territoryEntry
	requests int
}

func (f *fakeTerritoryAPI) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(f.payload)
}

func (f *fakeTerritoryAPI) set(payload map[string]territoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = payload
}

func entry(guild, prefix, acquired string) territoryEntry {
	var e territoryEntry
	e.Guild.Name = guild
	e.Guild.Prefix = prefix
	e.Acquired = acquired
	e.Location.Start = [2]float64{-2000, -5000}
	e.Location.End = [2]float64{-1900, -4900}
	return e
}

func newTestClient(t *testing.T, url string, sink Sink) *TerritoryClient {
	t.Helper()
	cfg := &config.Config{}
	cfg.Ingestor.TerritoryURL = url
	cfg.Ingestor.PollInterval = time.Minute
	cfg.Ingestor.RateLimit = 100
	cfg.Ingestor.BurstLimit = 100
	cfg.Ingestor.MaxRetryInterval = time.Second
	return NewTerritoryClient(cfg, sink, zerolog.Nop())
}

func TestPollOnceDiffsSnapshots(t *testing.T) {
	api := &fakeTerritoryAPI{}
	api.set(map[string]territoryEntry{
		"Llevigar": entry("IronOath", "Iro", "2023-11-14T22:13:20Z"),
		"Olux":     entry("IronOath", "Iro", "2023-11-14T22:13:20Z"),
	})
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	sink := &recorderSink{}
	client := newTestClient(t, srv.URL, sink)

	// First poll primes the baseline without emitting.
	require.NoError(t, client.pollOnce(context.Background()))
	assert.Empty(t, sink.all())

	// Owner change on one territory.
	api.set(map[string]territoryEntry{
		"Llevigar": entry("RedFang", "Red", "2023-11-14T23:00:00Z"),
		"Olux":     entry("IronOath", "Iro", "2023-11-14T22:13:20Z"),
	})
	require.NoError(t, client.pollOnce(context.Background()))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "Llevigar", events[0].Territory)
	assert.Equal(t, "RedFang", events[0].Guild)
	assert.Equal(t, "Red", events[0].Prefix)
	assert.Equal(t, time.Date(2023, 11, 14, 23, 0, 0, 0, time.UTC).Unix(), events[0].Unix)

	// No change: nothing new emitted.
	require.NoError(t, client.pollOnce(context.Background()))
	assert.Len(t, sink.all(), 1)
}

func TestPollOnceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &recorderSink{})
	err := client.pollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code")
}

func TestPollOnceMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{broken"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &recorderSink{})
	require.Error(t, client.pollOnce(context.Background()))
}

func TestPollOnceReportsTerritoryData(t *testing.T) {
	api := &fakeTerritoryAPI{}
	api.set(map[string]territoryEntry{
		"Llevigar": entry("IronOath", "Iro", "2023-11-14T22:13:20Z"),
	})
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &recorderSink{})

	var got map[string]region.TerritoryInfo
	client.OnTerritoryData(func(data map[string]region.TerritoryInfo) { got = data })

	require.NoError(t, client.pollOnce(context.Background()))

	require.Contains(t, got, "Llevigar")
	assert.Equal(t, -2000.0, got["Llevigar"].Location.StartX)
	assert.Equal(t, -4900.0, got["Llevigar"].Location.EndZ)
}

func TestAcquiredUnix(t *testing.T) {
	assert.Equal(t, int64(1700000000), acquiredUnix("2023-11-14T22:13:20Z"))
	assert.Equal(t, int64(1700000000), acquiredUnix("2023-11-14 22:13:20"))

	// Malformed timestamps fall back to roughly now.
	now := time.Now().Unix()
	got := acquiredUnix("not a timestamp")
	assert.InDelta(t, now, got, 5)
}
