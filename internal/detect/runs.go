package detect

// run is a maximal stretch of above-threshold buckets merged across small
// gaps, the raw material a conflict is characterized from.
type run struct {
	startKey int64
	endKey   int64
	keys     []int64
	guilds   map[int]struct{}
}

func startRun(b *bucket) *run {
	r := &run{
		startKey: b.key,
		endKey:   b.key,
		keys:     []int64{b.key},
		guilds:   make(map[int]struct{}, len(b.guilds)),
	}
	for g := range b.guilds {
		r.guilds[g] = struct{}{}
	}
	return r
}

func (r *run) extend(b *bucket) {
	r.endKey = b.key
	r.keys = append(r.keys, b.key)
	for g := range b.guilds {
		r.guilds[g] = struct{}{}
	}
}

// mergeRuns walks active buckets in time order with tiered gap tolerance:
// short gaps always merge, longer gaps merge only when the candidate bucket's
// guilds substantially overlap the run's accumulated guild set. A run with
// zero buckets is impossible by construction.
func (d *Detector) mergeRuns(buckets map[int64]*bucket, keys []int64, thresholds *thresholdEngine) []*run {
	var runs []*run
	var cur *run

	for _, k := range keys {
		b := buckets[k]
		if float64(b.exchanges) < thresholds.at(k) {
			continue
		}

		if cur == nil {
			cur = startRun(b)
			continue
		}

		gap := k - cur.endKey
		switch {
		case gap <= int64(d.cfg.ShortGapBuckets):
			cur.extend(b)
		case gap <= int64(d.cfg.LongGapBuckets) && guildOverlap(b.guilds, cur.guilds) > d.cfg.GuildOverlapFraction:
			cur.extend(b)
		default:
			runs = append(runs, cur)
			cur = startRun(b)
		}
	}
	if cur != nil {
		runs = append(runs, cur)
	}

	return runs
}

// guildOverlap is the fraction of the candidate bucket's guilds already seen
// in the run.
func guildOverlap(candidate, accumulated map[int]struct{}) float64 {
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
