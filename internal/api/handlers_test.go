package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/models"
	"github.com/corveth/warmap/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.ResultCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	cfg.API.Port = 8080
	cfg.API.MaxWebsocketConnections = 10

	cache := storage.NewResultCache(client, zerolog.Nop())
	server := NewServer(client, cache, cfg, zerolog.Nop())
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	return server, cache
}

func seedResults(t *testing.T, cache *storage.ResultCache) ([]models.ConflictEvent, []models.War) {
	t.Helper()

	conflicts := []models.ConflictEvent{
		{
			ID:              "conflict-1700000000",
			Name:            "Battle of Gavel: RED vs IRO",
			StartTime:       1700000000,
			EndTime:         1700007200,
			TotalExchanges:  57,
			PrimaryRegion:   "Gavel",
			RegionBreakdown: map[string]int{"Gavel": 57},
			Confidence:      0.7,
		},
		{
			ID:              "conflict-1700100000",
			Name:            "Unrest in Wynn",
			StartTime:       1700100000,
			EndTime:         1700103600,
			TotalExchanges:  12,
			PrimaryRegion:   "Wynn",
			RegionBreakdown: map[string]int{"Wynn": 10, "Gavel": 2},
			Confidence:      0.3,
		},
	}
	wars := []models.War{
		{
			ID:             "war-1700000000",
			Name:           "RED vs IRO War",
			StartTime:      1700000000,
			EndTime:        1700050000,
			Conflicts:      conflicts[:1],
			TotalExchanges: 57,
		},
	}
	require.NoError(t, cache.StoreResults(context.Background(), conflicts, wars, time.Hour))
	return conflicts, wars
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetConflicts(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	rec := doRequest(t, server, http.MethodGet, "/api/conflicts")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConflictsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Conflicts, 2)
	assert.Equal(t, "conflict-1700000000", resp.Conflicts[0].ID)
	assert.False(t, resp.UpdatedAt.IsZero())
}

func TestGetConflictsFilters(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	cases := []struct {
		name   string
		target string
		want   []string
	}{
		{"region", "/api/conflicts?region=Wynn", []string{"conflict-1700100000"}},
		{"min confidence", "/api/conflicts?min_confidence=0.5", []string{"conflict-1700000000"}},
		{"since", "/api/conflicts?since=1700050000", []string{"conflict-1700100000"}},
		{"limit", "/api/conflicts?limit=1", []string{"conflict-1700000000"}},
		{"no match", "/api/conflicts?region=Corkus", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, server, http.MethodGet, tc.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp ConflictsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Conflicts, len(tc.want))
			for i, id := range tc.want {
				assert.Equal(t, id, resp.Conflicts[i].ID)
			}
		})
	}
}

func TestGetConflictsInvalidParams(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	for _, target := range []string{
		"/api/conflicts?limit=0",
		"/api/conflicts?limit=9999",
		"/api/conflicts?limit=abc",
		"/api/conflicts?min_confidence=2",
		"/api/conflicts?since=notanumber",
	} {
		rec := doRequest(t, server, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)

		var resp APIErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ErrCodeInvalidParameter, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	}
}

func TestGetConflictsEmptyCache(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/conflicts")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConflictsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestGetConflictByID(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	rec := doRequest(t, server, http.MethodGet, "/api/conflicts/conflict-1700000000")
	require.Equal(t, http.StatusOK, rec.Code)

	var conflict models.ConflictEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "Battle of Gavel: RED vs IRO", conflict.Name)

	rec = doRequest(t, server, http.MethodGet, "/api/conflicts/conflict-999")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, ErrCodeNotFound, errResp.Error.Code)
	assert.Equal(t, "conflict-999", errResp.Error.Details)
}

func TestGetWars(t *testing.T) {
	server, cache := newTestServer(t)
	_, wars := seedResults(t, cache)

	rec := doRequest(t, server, http.MethodGet, "/api/wars")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WarsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, wars[0].ID, resp.Wars[0].ID)
	assert.Len(t, resp.Wars[0].Conflicts, 1)

	rec = doRequest(t, server, http.MethodGet, "/api/wars/war-1700000000")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/api/wars/war-404")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRegions(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	rec := doRequest(t, server, http.MethodGet, "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Regions []RegionActivity `json:"regions"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)

	// Busiest region first: Gavel has 57+2 exchanges across both conflicts.
	assert.Equal(t, RegionActivity{Region: "Gavel", Conflicts: 1, Exchanges: 59}, resp.Regions[0])
	assert.Equal(t, RegionActivity{Region: "Wynn", Conflicts: 1, Exchanges: 10}, resp.Regions[1])
}

func TestGetRecentAlerts(t *testing.T) {
	server, cache := newTestServer(t)
	conflicts, _ := seedResults(t, cache)

	require.NoError(t, cache.PublishConflictAlert(context.Background(), &conflicts[0]))

	rec := doRequest(t, server, http.MethodGet, "/api/alerts/recent")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alerts []storage.ConflictAlert `json:"alerts"`
		Count  int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, conflicts[0].ID, resp.Alerts[0].ID)
}

func TestGetTerritoryRegion(t *testing.T) {
	server, _ := newTestServer(t)

	cases := map[string]string{
		"/api/territories/Detlas/region":            "Wynn",
		"/api/territories/Cinfras%20County/region":  "Gavel",
		"/api/territories/Totally%20Unknown/region": "Other",
	}
	for target, want := range cases {
		rec := doRequest(t, server, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, want, resp["region"], target)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, cache := newTestServer(t)
	seedResults(t, cache)

	rec := doRequest(t, server, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Components, "redis")

	rec = doRequest(t, server, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/conflicts")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
