package detect

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mkBuckets(counts map[int64]int) (map[int64]*bucket, []int64) {
	buckets := make(map[int64]*bucket, len(counts))
	keys := make([]int64, 0, len(counts))
	for k, n := range counts {
		b := newBucket(k)
		b.exchanges = n
		buckets[k] = b
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return buckets, keys
}

func TestMedianMAD(t *testing.T) {
	med, mad := medianMAD(nil)
	assert.Zero(t, med)
	assert.Zero(t, mad)

	med, mad = medianMAD([]float64{3, 1, 2})
	assert.Equal(t, 2.0, med)
	assert.InDelta(t, 1*madScale, mad, 1e-9)

	med, mad = medianMAD([]float64{1, 2, 3, 4})
	assert.Equal(t, 2.5, med)
	assert.InDelta(t, 1*madScale, mad, 1e-9)

	// Identical values have zero spread.
	med, mad = medianMAD([]float64{5, 5, 5, 5})
	assert.Equal(t, 5.0, med)
	assert.Zero(t, mad)
}

func TestThresholdGlobalFloor(t *testing.T) {
	cfg := DefaultConfig()

	counts := map[int64]int{}
	for i := int64(0); i < 40; i++ {
		counts[i] = 1
	}
	buckets, keys := mkBuckets(counts)

	eng := newThresholdEngine(cfg, buckets, keys)
	assert.False(t, eng.rolling)
	assert.Equal(t, cfg.MinThreshold, eng.at(10), "flat background hits the minimum floor")
}

func TestThresholdGlobalTracksSpread(t *testing.T) {
	cfg := DefaultConfig()

	counts := map[int64]int{}
	for i := int64(0); i < 40; i++ {
		counts[i] = 10 + int(i%5)*4 // 10, 14, 18, 22, 26 repeating
	}
	buckets, keys := mkBuckets(counts)

	eng := newThresholdEngine(cfg, buckets, keys)
	assert.False(t, eng.rolling)
	assert.Greater(t, eng.at(0), cfg.MinThreshold, "noisy elevated baseline pushes the cut above the floor")
}

func TestThresholdRollingActivation(t *testing.T) {
	cfg := DefaultConfig()
	windowBuckets := int64(cfg.RollingWindow.Seconds()) / cfg.BucketSeconds

	// Two eras far enough apart to exceed twice the rolling window: a quiet
	// early year and a much busier recent stretch.
	counts := map[int64]int{}
	for i := int64(0); i < 60; i++ {
		counts[i] = 1
	}
	busyStart := 5 * windowBuckets
	for i := int64(0); i < 60; i++ {
		counts[busyStart+i] = 30
	}
	buckets, keys := mkBuckets(counts)

	eng := newThresholdEngine(cfg, buckets, keys)
	assert.True(t, eng.rolling)

	quiet := eng.at(30)
	busy := eng.at(busyStart + 30)
	assert.Greater(t, busy, quiet, "busy era carries a higher local threshold than the quiet era")
	assert.GreaterOrEqual(t, quiet, cfg.MinThreshold)
}

func TestThresholdRollingSparseWindowFallsBackToGlobal(t *testing.T) {
	cfg := DefaultConfig()
	windowBuckets := int64(cfg.RollingWindow.Seconds()) / cfg.BucketSeconds

	// Long span forces rolling mode, but an isolated bucket far from both
	// clusters has too few local samples for a stable estimate.
	counts := map[int64]int{}
	for i := int64(0); i < 30; i++ {
		counts[i] = 2
		counts[10*windowBuckets+i] = 2
	}
	lonely := 5 * windowBuckets
	counts[lonely] = 50
	buckets, keys := mkBuckets(counts)

	eng := newThresholdEngine(cfg, buckets, keys)
	assert.True(t, eng.rolling)
	assert.Equal(t, eng.global, eng.at(lonely))
}

func TestBucketHourlyRate(t *testing.T) {
	b := newBucket(0)
	b.exchanges = 15
	assert.Equal(t, 30, b.hourlyRate(1800))
	assert.Equal(t, 15, b.hourlyRate(3600))
}
