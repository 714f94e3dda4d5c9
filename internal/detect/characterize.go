package detect

import (
	"fmt"
	"sort"

	"github.com/corveth/warmap/internal/models"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/snapshot"
)

// pairKey identifies an unordered guild pair; a < b always.
type pairKey struct {
	a, b int
}

func makePair(x, y int) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}

// replayStats is everything the replay pass learns about who fought whom
// inside a run.
type replayStats struct {
	guildTaken  map[int]int
	guildLost   map[int]int
	pairAttacks map[pairKey]int
	// attackedBy counts directed attacker->defender captures, needed for the
	// aggressor ordering and the ally-of-enemy merge.
	attacks   map[[2]int]int
	weighted  float64
	exchanges int
}

// involvement returns taken+lost per guild.
func (r *replayStats) involvement() map[int]int {
	inv := make(map[int]int, len(r.guildTaken)+len(r.guildLost))
	for g, n := range r.guildTaken {
		inv[g] += n
	}
	for g, n := range r.guildLost {
		inv[g] += n
	}
	return inv
}

// characterize turns a raw run into a ConflictEvent (minus factions,
// confidence and name, which later stages fill in). Returns ok=false when the
// replay washes out to zero real exchanges; such runs are dropped silently
// rather than emitted as zero-value conflicts.
func (d *Detector) characterize(store *models.ExchangeStore, r *run, buckets map[int64]*bucket) (*models.ConflictEvent, *replayStats, bool) {
	startSec := r.startKey * d.cfg.BucketSeconds
	endSec := (r.endKey + 1) * d.cfg.BucketSeconds

	// Bucket-aggregate stats: O(buckets in run), no event scan needed.
	total := 0
	peakHourly := 0
	regionBreakdown := make(map[string]int)
	territories := make(map[int]struct{})
	for _, k := range r.keys {
		b := buckets[k]
		total += b.exchanges
		if hr := b.hourlyRate(d.cfg.BucketSeconds); hr > peakHourly {
			peakHourly = hr
		}
		for reg, n := range b.regions {
			regionBreakdown[reg] += n
		}
		for t := range b.territories {
			territories[t] = struct{}{}
		}
	}

	// Ownership state at startSec, one binary search per territory.
	owners := snapshot.ReconstructAt(store, startSec)

	// Replay the run's slice of the global stream in order.
	stats := &replayStats{
		guildTaken:  make(map[int]int),
		guildLost:   make(map[int]int),
		pairAttacks: make(map[pairKey]int),
		attacks:     make(map[[2]int]int),
	}

	events := store.Data.Events
	i := sort.Search(len(events), func(k int) bool { return events[k].Unix >= startSec })
	for ; i < len(events) && events[i].Unix < endSec; i++ {
		ev := events[i]
		prev, known := owners[ev.Territory]
		owners[ev.Territory] = ev.Guild

		if !known || prev == ev.Guild || store.IsNeutral(prev) || store.IsNeutral(ev.Guild) {
			continue
		}

		stats.guildTaken[ev.Guild]++
		stats.guildLost[prev]++
		stats.pairAttacks[makePair(ev.Guild, prev)]++
		stats.attacks[[2]int{ev.Guild, prev}]++
		stats.weighted += 1 + d.regions.Value(store.TerritoryName(ev.Territory))
		stats.exchanges++
	}

	if stats.exchanges == 0 {
		return nil, nil, false
	}

	primary, multiFront := d.classifyRegions(regionBreakdown, total)

	conflict := &models.ConflictEvent{
		ID:                  fmt.Sprintf("conflict-%d", startSec),
		StartTime:           startSec,
		EndTime:             endSec,
		TotalExchanges:      total,
		PeakHourly:          peakHourly,
		PrimaryRegion:       primary,
		RegionBreakdown:     regionBreakdown,
		TerritoriesInvolved: len(territories),
		IsMultiFront:        multiFront,
		WeightedExchanges:   stats.weighted,
	}
	return conflict, stats, true
}

// classifyRegions picks the primary region (single region holding at least
// PrimaryRegionFraction of the exchanges, else Global) and flags multi-front
// conflicts (three or more regions each above MultiFrontFraction).
func (d *Detector) classifyRegions(breakdown map[string]int, total int) (string, bool) {
	if total == 0 {
		return region.Other, false
	}

	primary := region.Global
	best := 0
	fronts := 0
	for _, reg := range sortedRegions(breakdown) {
		n := breakdown[reg]
		share := float64(n) / float64(total)
		if share > float64(d.cfg.MultiFrontFraction) {
			fronts++
		}
		if n > best {
			best = n
			if share >= d.cfg.PrimaryRegionFraction {
				primary = reg
			} else {
				primary = region.Global
			}
		}
	}
	return primary, fronts >= 3
}

// sortedRegions returns breakdown keys ordered by count desc, name asc, so
// every pass over the map is deterministic.
func sortedRegions(breakdown map[string]int) []string {
	regions := make([]string, 0, len(breakdown))
	for reg := range breakdown {
		regions = append(regions, reg)
	}
	sort.Slice(regions, func(i, j int) bool {
		if breakdown[regions[i]] != breakdown[regions[j]] {
			return breakdown[regions[i]] > breakdown[regions[j]]
		}
		return regions[i] < regions[j]
	})
	return regions
}
