package detect

import (
	"fmt"
	"sort"

	"github.com/corveth/warmap/internal/models"
)

// GroupWars clusters conflicts into multi-battle wars. Conflicts are scanned
// ascending by start time; a war greedily absorbs later conflicts whose top
// guilds overlap the war's accumulated guild set by at least the configured
// fraction, as long as the gap since the war's last battle stays within
// WarMaxGap and the war's total span within WarMaxDuration. Only groups of
// two or more conflicts become wars. Output is sorted descending by total
// exchanges.
func (d *Detector) GroupWars(conflicts []models.ConflictEvent) []models.War {
	wars := []models.War{}
	if len(conflicts) < 2 {
		return wars
	}

	ordered := make([]models.ConflictEvent, len(conflicts))
	copy(ordered, conflicts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].StartTime != ordered[j].StartTime {
			return ordered[i].StartTime < ordered[j].StartTime
		}
		return ordered[i].ID < ordered[j].ID
	})

	used := make([]bool, len(ordered))
	maxGap := int64(d.cfg.WarMaxGap.Seconds())
	maxDuration := int64(d.cfg.WarMaxDuration.Seconds())

	for i := range ordered {
		if used[i] {
			continue
		}

		members := []models.ConflictEvent{ordered[i]}
		guilds := d.topGuilds(&ordered[i])
		lastEnd := ordered[i].EndTime

		for j := i + 1; j < len(ordered); j++ {
			if used[j] {
				continue
			}
			if ordered[j].StartTime-lastEnd > maxGap {
				break // later conflicts only get farther away
			}
			if maxDuration > 0 && ordered[j].EndTime-ordered[i].StartTime > maxDuration {
				continue // would stretch the war past its hard cap
			}

			candidate := d.topGuilds(&ordered[j])
			if overlapFraction(candidate, guilds) < d.cfg.WarGuildOverlapFraction {
				continue
			}

			members = append(members, ordered[j])
			used[j] = true
			if ordered[j].EndTime > lastEnd {
				lastEnd = ordered[j].EndTime
			}
			for g := range candidate {
				guilds[g] = struct{}{}
			}
		}

		if len(members) < 2 {
			continue
		}
		used[i] = true
		wars = append(wars, d.buildWar(members))
	}

	sort.SliceStable(wars, func(i, j int) bool {
		if wars[i].TotalExchanges != wars[j].TotalExchanges {
			return wars[i].TotalExchanges > wars[j].TotalExchanges
		}
		return wars[i].StartTime < wars[j].StartTime
	})

	d.metrics.WarsGrouped.Add(float64(len(wars)))
	return wars
}

// topGuilds collects the names of the top WarTopGuilds guilds from each of
// the first WarTopFactions factions: the identity of a conflict for grouping
// purposes.
func (d *Detector) topGuilds(c *models.ConflictEvent) map[string]struct{} {
	guilds := make(map[string]struct{})
	factions := c.Factions
	if len(factions) > d.cfg.WarTopFactions {
		factions = factions[:d.cfg.WarTopFactions]
	}
	for _, f := range factions {
		members := f.Guilds
		if len(members) > d.cfg.WarTopGuilds {
			members = members[:d.cfg.WarTopGuilds]
		}
		for _, g := range members {
			guilds[g.Name] = struct{}{}
		}
	}
	return guilds
}

func overlapFraction(candidate, accumulated map[string]struct{}) float64 {
	if len(candidate) == 0 {
		return 0
	}
	shared := 0
	for g := range candidate {
		if _, ok := accumulated[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(candidate))
}

func (d *Detector) buildWar(members []models.ConflictEvent) models.War {
	war := models.War{
		ID:        fmt.Sprintf("war-%d", members[0].StartTime),
		StartTime: members[0].StartTime,
		Conflicts: members,
	}
	for _, c := range members {
		war.TotalExchanges += c.TotalExchanges
		if c.EndTime > war.EndTime {
			war.EndTime = c.EndTime
		}
	}
	war.Name = d.nameWar(members)
	return war
}

// nameWar names a war after the top prefixes of its largest battle, falling
// back to that battle's region.
func (d *Detector) nameWar(members []models.ConflictEvent) string {
	largest := members[0]
	for _, c := range members[1:] {
		if c.TotalExchanges > largest.TotalExchanges {
			largest = c
		}
	}

	p1, p2 := "", ""
	if len(largest.Factions) >= 1 && len(largest.Factions[0].Guilds) > 0 {
		p1 = largest.Factions[0].Guilds[0].Prefix
	}
	if len(largest.Factions) >= 2 && len(largest.Factions[1].Guilds) > 0 {
		p2 = largest.Factions[1].Guilds[0].Prefix
	}
	if p1 != "" && p2 != "" {
		return fmt.Sprintf("%s vs %s War", p1, p2)
	}
	return fmt.Sprintf("War for %s", largest.PrimaryRegion)
}
