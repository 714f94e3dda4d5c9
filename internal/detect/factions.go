package detect

import (
	"sort"

	"github.com/corveth/warmap/internal/models"
)

// detectFactions partitions the guilds of a conflict into 2-4 hostile
// factions via label propagation over the pair-attack graph. The second
// return value maps guild index -> faction position in the returned slice,
// for the confidence scorer.
//
// Guarantees: every returned faction has at least one guild; per-faction
// totals cover ALL assigned members even though the display list is truncated
// to the top 10; with exactly two factions the one with more territory taken
// is listed first.
func (d *Detector) detectFactions(store *models.ExchangeStore, stats *replayStats) ([]models.ConflictSide, map[int]int) {
	inv := stats.involvement()

	// No guild-vs-guild interactions at all: degrade to a single faction
	// holding every involved guild rather than failing the batch.
	if len(stats.pairAttacks) == 0 {
		if len(inv) == 0 {
			return []models.ConflictSide{}, map[int]int{}
		}
		members := sortedGuilds(inv)
		side := d.buildSide(store, members, stats)
		assignment := make(map[int]int, len(members))
		for _, g := range members {
			assignment[g] = 0
		}
		return []models.ConflictSide{side}, assignment
	}

	// interactions(g): total hostility weight incident to g. Guilds below
	// the minimum are left unaffiliated so they cannot pollute faction
	// totals.
	interactions := make(map[int]int, len(inv))
	for pair, w := range stats.pairAttacks {
		interactions[pair.a] += w
		interactions[pair.b] += w
	}

	weight := func(a, b int) int { return stats.pairAttacks[makePair(a, b)] }

	// Seed two communities from the most mutually hostile pair; break ties
	// on the lower index pair for determinism.
	var seed pairKey
	best := -1
	for _, pair := range sortedPairs(stats.pairAttacks) {
		if w := stats.pairAttacks[pair]; w > best {
			best = w
			seed = pair
		}
	}
	communities := [][]int{{seed.a}, {seed.b}}
	assigned := map[int]bool{seed.a: true, seed.b: true}

	// Remaining guilds in descending involvement so heavyweight guilds shape
	// the communities before stragglers join.
	for _, g := range sortedGuilds(inv) {
		if assigned[g] {
			continue
		}
		if interactions[g] < d.cfg.MinFactionInteractions {
			continue
		}

		hostility := make([]int, len(communities))
		minIdx, minHost := 0, -1
		maxHost := 0
		for ci, members := range communities {
			h := 0
			for _, m := range members {
				h += weight(g, m)
			}
			hostility[ci] = h
			if minHost < 0 || h < minHost {
				minHost, minIdx = h, ci
			}
			if h > maxHost {
				maxHost = h
			}
		}

		// Hostility spread evenly across every community and enough total
		// interactions to matter: this guild is fighting everyone, so it is
		// its own faction. This is how 3rd and 4th factions appear.
		evenSpread := maxHost > 0 &&
			float64(minHost)/float64(maxHost) > d.cfg.NewFactionHostilityRatio &&
			interactions[g] >= d.cfg.NewFactionMinInteractions
		noTies := maxHost == 0

		if (evenSpread || noTies) && len(communities) < d.cfg.MaxFactions {
			communities = append(communities, []int{g})
		} else {
			// Join the community this guild is least hostile toward: its de
			// facto ally group.
			communities[minIdx] = append(communities[minIdx], g)
		}
		assigned[g] = true
	}

	communities = d.mergeSingletons(communities, weight)

	// Cap at MaxFactions by folding the smallest trailing faction into its
	// neighbor.
	sortCommunities(communities, inv)
	for len(communities) > d.cfg.MaxFactions {
		last := len(communities) - 1
		communities[last-1] = append(communities[last-1], communities[last]...)
		communities = communities[:last]
		sortCommunities(communities, inv)
	}

	factions := make([]models.ConflictSide, 0, len(communities))
	for _, members := range communities {
		factions = append(factions, d.buildSide(store, members, stats))
	}

	// Convention: with exactly two factions the aggressor (more territory
	// taken) is listed first.
	if len(factions) == 2 && factions[1].TotalTaken > factions[0].TotalTaken {
		factions[0], factions[1] = factions[1], factions[0]
		communities[0], communities[1] = communities[1], communities[0]
	}

	assignment := make(map[int]int)
	for ci, members := range communities {
		for _, g := range members {
			assignment[g] = ci
		}
	}
	return factions, assignment
}

// mergeSingletons folds any single-guild community into the community most
// opposed to that guild's strongest enemy (the ally-of-enemy heuristic),
// suppressing noise factions. The enemy's own community is never a merge
// target, which keeps genuine 1v1 conflicts as two singleton factions.
func (d *Detector) mergeSingletons(communities [][]int, weight func(a, b int) int) [][]int {
	if len(communities) <= 2 {
		return communities
	}

	findCommunity := func(g int) int {
		for ci, members := range communities {
			for _, m := range members {
				if m == g {
					return ci
				}
			}
		}
		return -1
	}

	for ci := 0; ci < len(communities); ci++ {
		if len(communities[ci]) != 1 {
			continue
		}
		m := communities[ci][0]

		// Strongest enemy of the lone member.
		enemy, bestW := -1, 0
		for cj, members := range communities {
			if cj == ci {
				continue
			}
			for _, g := range members {
				if w := weight(m, g); w > bestW || (w == bestW && w > 0 && (enemy < 0 || g < enemy)) {
					bestW, enemy = w, g
				}
			}
		}
		if enemy < 0 {
			continue
		}
		enemyCommunity := findCommunity(enemy)

		// Target: the community that fights the enemy hardest, excluding the
		// enemy's own and the singleton itself.
		target, bestOpp := -1, 0
		for cj, members := range communities {
			if cj == ci || cj == enemyCommunity {
				continue
			}
			opp := 0
			for _, g := range members {
				opp += weight(enemy, g)
			}
			if opp > bestOpp {
				bestOpp, target = opp, cj
			}
		}
		if target < 0 {
			continue
		}

		communities[target] = append(communities[target], m)
		communities = append(communities[:ci], communities[ci+1:]...)
		ci--
	}

	return communities
}

// buildSide assembles a ConflictSide: totals over every member, display list
// truncated to the 10 most involved.
func (d *Detector) buildSide(store *models.ExchangeStore, members []int, stats *replayStats) models.ConflictSide {
	ordered := make([]int, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		ia := stats.guildTaken[a] + stats.guildLost[a]
		ib := stats.guildTaken[b] + stats.guildLost[b]
		if ia != ib {
			return ia > ib
		}
		return store.GuildName(a) < store.GuildName(b)
	})

	side := models.ConflictSide{}
	for _, g := range ordered {
		side.TotalTaken += stats.guildTaken[g]
		side.TotalLost += stats.guildLost[g]
	}

	const displayLimit = 10
	display := ordered
	if len(display) > displayLimit {
		display = display[:displayLimit]
	}
	for _, g := range display {
		side.Guilds = append(side.Guilds, models.GuildStanding{
			Name:   store.GuildName(g),
			Prefix: store.GuildPrefix(g),
			Taken:  stats.guildTaken[g],
			Lost:   stats.guildLost[g],
		})
	}
	return side
}

// sortedGuilds orders guild indices by involvement desc, index asc.
func sortedGuilds(inv map[int]int) []int {
	guilds := make([]int, 0, len(inv))
	for g := range inv {
		guilds = append(guilds, g)
	}
	sort.Slice(guilds, func(i, j int) bool {
		if inv[guilds[i]] != inv[guilds[j]] {
			return inv[guilds[i]] > inv[guilds[j]]
		}
		return guilds[i] < guilds[j]
	})
	return guilds
}

// sortedPairs orders pair keys deterministically (a asc, b asc).
func sortedPairs(pairs map[pairKey]int) []pairKey {
	out := make([]pairKey, 0, len(pairs))
	for p := range pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].a != out[j].a {
			return out[i].a < out[j].a
		}
		return out[i].b < out[j].b
	})
	return out
}

// sortCommunities orders communities by total involvement desc; member lists
// are left in assignment order.
func sortCommunities(communities [][]int, inv map[int]int) {
	total := func(members []int) int {
		t := 0
		for _, g := range members {
			t += inv[g]
		}
		return t
	}
	sort.SliceStable(communities, func(i, j int) bool {
		return total(communities[i]) > total(communities[j])
	})
}
