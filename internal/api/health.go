package api

import (
	"context"
	"net/http"
	"time"
)

// ComponentHealth reports one dependency's state.
type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the envelope for /health.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	ResultsAge string                     `json:"results_age,omitempty"`
}

// handleHealth reports overall service health including dependency checks.
//
// Route: GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]ComponentHealth{
		"redis": s.checkRedisHealth(ctx),
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, c := range components {
		if c.Status != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := HealthResponse{
		Status:     status,
		Version:    s.version,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Components: components,
	}
	if updatedAt, err := s.cache.UpdatedAt(ctx); err == nil && !updatedAt.IsZero() {
		resp.ResultsAge = time.Since(updatedAt).Round(time.Second).String()
	}

	respondJSON(w, httpStatus, resp)
}

func (s *Server) checkRedisHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return ComponentHealth{Status: "unhealthy", Error: err.Error()}
	}
	return ComponentHealth{Status: "healthy", Latency: time.Since(start).String()}
}

// handleLiveness is the kubernetes-style liveness probe: process is up.
//
// Route: GET /health/live
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness reports whether the server can usefully serve traffic,
// which requires Redis.
//
// Route: GET /health/ready
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "redis unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
