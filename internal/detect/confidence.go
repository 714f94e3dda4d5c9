package detect

import (
	"fmt"

	"github.com/corveth/warmap/internal/models"
	"github.com/corveth/warmap/internal/region"
)

// scoreConfidence derives a 0-1 confidence from independent structural
// signals, each contributing a bounded increment. This is a heuristic signal,
// not a probability: more guilds, longer duration, higher peak intensity,
// wider territory spread and a cleaner two-sided structure all push it up.
func (d *Detector) scoreConfidence(c *models.ConflictEvent, guildCount int, cleanliness float64) float64 {
	score := 0.0

	switch {
	case guildCount >= 4:
		score += 0.3
	case guildCount >= 2:
		score += 0.15
	}

	duration := c.EndTime - c.StartTime
	switch {
	case duration >= 2*3600:
		score += 0.2
	case duration >= 3600:
		score += 0.1
	}

	switch {
	case c.PeakHourly >= 20:
		score += 0.2
	case c.PeakHourly >= 10:
		score += 0.1
	}

	switch {
	case c.TerritoriesInvolved >= 10:
		score += 0.15
	case c.TerritoriesInvolved >= 5:
		score += 0.07
	}

	score += 0.15 * cleanliness

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// bipartiteCleanliness measures how cleanly two-sided a conflict is: the
// fraction of attacks between the top two factions that cross faction lines,
// computed from the pair-attack graph. 1.0 when every attack is inter-faction
// (or when there are fewer than two factions to compare).
func bipartiteCleanliness(factions []models.ConflictSide, assignment map[int]int, stats *replayStats) float64 {
	if len(factions) < 2 {
		return 1
	}

	inter, intra := 0, 0
	for pair, w := range stats.pairAttacks {
		fa, okA := assignment[pair.a]
		fb, okB := assignment[pair.b]
		if !okA || !okB || fa > 1 || fb > 1 {
			continue // unaffiliated or outside the top two factions
		}
		if fa == fb {
			intra += w
		} else {
			inter += w
		}
	}

	if inter+intra == 0 {
		return 1
	}
	return float64(inter) / float64(inter+intra)
}

// nameConflict synthesizes a display name from the primary region and the top
// guild prefix of each of the first two factions.
func (d *Detector) nameConflict(c *models.ConflictEvent) string {
	p1, p2 := "", ""
	if len(c.Factions) >= 1 && len(c.Factions[0].Guilds) > 0 {
		p1 = c.Factions[0].Guilds[0].Prefix
	}
	if len(c.Factions) >= 2 && len(c.Factions[1].Guilds) > 0 {
		p2 = c.Factions[1].Guilds[0].Prefix
	}

	if c.IsMultiFront {
		regions := sortedRegions(c.RegionBreakdown)
		if len(regions) >= 2 && p1 != "" && p2 != "" {
			return fmt.Sprintf("%s/%s War: %s vs %s", regions[0], regions[1], p1, p2)
		}
	}

	reg := c.PrimaryRegion
	if reg == "" {
		reg = region.Other
	}
	if p1 != "" && p2 != "" {
		return fmt.Sprintf("Battle of %s: %s vs %s", reg, p1, p2)
	}
	if p1 != "" {
		return fmt.Sprintf("%s Campaign in %s", p1, reg)
	}
	return fmt.Sprintf("Unrest in %s", reg)
}
