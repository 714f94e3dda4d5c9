package detect

import (
	"sort"

	"github.com/corveth/warmap/internal/models"
)

// bucket aggregates one fixed-width time slice of guild-vs-guild exchanges.
// Buckets are ephemeral: rebuilt on every analysis pass, never persisted.
type bucket struct {
	key         int64
	exchanges   int
	regions     map[string]int
	territories map[int]struct{}
	guilds      map[int]struct{}
}

func newBucket(key int64) *bucket {
	return &bucket{
		key:         key,
		regions:     make(map[string]int),
		territories: make(map[int]struct{}),
		guilds:      make(map[int]struct{}),
	}
}

// hourlyRate scales a bucket's exchange count to an exchanges-per-hour rate.
func (b *bucket) hourlyRate(bucketSeconds int64) int {
	return int(int64(b.exchanges) * 3600 / bucketSeconds)
}

// bucketize consumes the sorted event stream once, assigning every
// guild-vs-guild transition to bucket floor(unix / BucketSeconds). A rolling
// current-owner map provides the prior owner at each event; it is local to
// this pass and discarded afterwards.
//
// Transitions are skipped when the prior owner is unknown (stream start),
// when either side is the neutral owner, or when the owner did not actually
// change.
func (d *Detector) bucketize(store *models.ExchangeStore) (map[int64]*bucket, []int64) {
	buckets := make(map[int64]*bucket)
	owners := make(map[int]int, len(store.Data.Territories))

	for _, ev := range store.Data.Events {
		prev, known := owners[ev.Territory]
		owners[ev.Territory] = ev.Guild

		if !known || prev == ev.Guild || store.IsNeutral(prev) || store.IsNeutral(ev.Guild) {
			continue
		}

		key := ev.Unix / d.cfg.BucketSeconds
		b, ok := buckets[key]
		if !ok {
			b = newBucket(key)
			buckets[key] = b
		}

		b.exchanges++
		b.regions[d.regions.Classify(store.TerritoryName(ev.Territory))]++
		b.territories[ev.Territory] = struct{}{}
		b.guilds[ev.Guild] = struct{}{}
		b.guilds[prev] = struct{}{}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return buckets, keys
}
