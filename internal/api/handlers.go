package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/corveth/warmap/internal/models"
)

// ConflictsResponse is the envelope for /api/conflicts.
type ConflictsResponse struct {
	Conflicts []models.ConflictEvent `json:"conflicts"`
	Count     int                    `json:"count"`
	UpdatedAt time.Time              `json:"updated_at,omitempty"`
}

// handleGetConflicts returns the latest detected conflicts, optionally
// filtered by region, minimum confidence, and start time.
//
// Route: GET /api/conflicts?limit=50&region=Gavel&min_confidence=0.5&since=1700000000
func (s *Server) handleGetConflicts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 50, 500)
	if err != nil {
		writeValidationError(w, r, err.(*ValidationError))
		return
	}
	minConfidence, err := parseFloatQuery(r, "min_confidence")
	if err != nil {
		writeValidationError(w, r, err.(*ValidationError))
		return
	}
	since, err := parseUnixQuery(r, "since")
	if err != nil {
		writeValidationError(w, r, err.(*ValidationError))
		return
	}
	regionFilter := r.URL.Query().Get("region")

	conflicts, err := s.cache.GetConflicts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load conflicts")
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Results unavailable", ErrCodeServiceUnavailable, "")
		return
	}

	filtered := make([]models.ConflictEvent, 0, len(conflicts))
	for _, c := range conflicts {
		if regionFilter != "" && c.PrimaryRegion != regionFilter {
			continue
		}
		if c.Confidence < minConfidence {
			continue
		}
		if since > 0 && c.EndTime < since {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	updatedAt, _ := s.cache.UpdatedAt(r.Context())
	respondJSON(w, http.StatusOK, ConflictsResponse{
		Conflicts: filtered,
		Count:     len(filtered),
		UpdatedAt: updatedAt,
	})
}

// handleGetConflict returns one conflict by ID.
//
// Route: GET /api/conflicts/{id}
func (s *Server) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conflicts, err := s.cache.GetConflicts(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Results unavailable", ErrCodeServiceUnavailable, "")
		return
	}

	for i := range conflicts {
		if conflicts[i].ID == id {
			respondJSON(w, http.StatusOK, conflicts[i])
			return
		}
	}
	writeAPIError(w, r, http.StatusNotFound, "Conflict not found", ErrCodeNotFound, id)
}

// WarsResponse is the envelope for /api/wars.
type WarsResponse struct {
	Wars      []models.War `json:"wars"`
	Count     int          `json:"count"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// handleGetWars returns the grouped wars, largest first.
//
// Route: GET /api/wars?limit=20
func (s *Server) handleGetWars(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 20, 500)
	if err != nil {
		writeValidationError(w, r, err.(*ValidationError))
		return
	}

	wars, err := s.cache.GetWars(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load wars")
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Results unavailable", ErrCodeServiceUnavailable, "")
		return
	}
	if len(wars) > limit {
		wars = wars[:limit]
	}

	updatedAt, _ := s.cache.UpdatedAt(r.Context())
	respondJSON(w, http.StatusOK, WarsResponse{Wars: wars, Count: len(wars), UpdatedAt: updatedAt})
}

// handleGetWar returns one war by ID.
//
// Route: GET /api/wars/{id}
func (s *Server) handleGetWar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wars, err := s.cache.GetWars(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Results unavailable", ErrCodeServiceUnavailable, "")
		return
	}

	for i := range wars {
		if wars[i].ID == id {
			respondJSON(w, http.StatusOK, wars[i])
			return
		}
	}
	writeAPIError(w, r, http.StatusNotFound, "War not found", ErrCodeNotFound, id)
}

// RegionActivity summarizes conflict activity within one region.
type RegionActivity struct {
	Region    string `json:"region"`
	Conflicts int    `json:"conflicts"`
	Exchanges int    `json:"exchanges"`
}

// handleGetRegions aggregates the cached conflicts into per-region activity
// totals, busiest region first.
//
// Route: GET /api/regions
func (s *Server) handleGetRegions(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.cache.GetConflicts(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Results unavailable", ErrCodeServiceUnavailable, "")
		return
	}

	counts := make(map[string]int)
	exchanges := make(map[string]int)
	for _, c := range conflicts {
		for reg, n := range c.RegionBreakdown {
			exchanges[reg] += n
		}
		counts[c.PrimaryRegion]++
	}

	regions := make([]RegionActivity, 0, len(exchanges))
	for reg, n := range exchanges {
		regions = append(regions, RegionActivity{
			Region:    reg,
			Conflicts: counts[reg],
			Exchanges: n,
		})
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Exchanges != regions[j].Exchanges {
			return regions[i].Exchanges > regions[j].Exchanges
		}
		return regions[i].Region < regions[j].Region
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"regions": regions,
		"count":   len(regions),
	})
}

// handleGetTerritoryRegion resolves a territory name to its region tag.
// Unknown territories resolve to Other rather than 404, mirroring how the
// detection pipeline treats them.
//
// Route: GET /api/territories/{name}/region
func (s *Server) handleGetTerritoryRegion(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeAPIError(w, r, http.StatusBadRequest,
			"Territory name required", ErrCodeInvalidParameter, "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"territory": name,
		"region":    s.regions.Classify(name),
	})
}

// handleGetRecentAlerts returns the newest entries from the alert stream.
//
// Route: GET /api/alerts/recent?limit=20
func (s *Server) handleGetRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 20, 100)
	if err != nil {
		writeValidationError(w, r, err.(*ValidationError))
		return
	}

	alerts, err := s.cache.GetRecentAlerts(r.Context(), int64(limit))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load recent alerts")
		writeAPIError(w, r, http.StatusServiceUnavailable,
			"Alerts unavailable", ErrCodeServiceUnavailable, "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
