package detect

import (
	"math"
	"sort"
)

// thresholdEngine separates background noise from conflict-level activity.
// Exchange counts are highly non-Gaussian (mostly quiet hours, occasional
// huge bursts), so the cut uses median + scaled MAD, which a handful of
// outlier bursts cannot corrupt the way mean + stddev would be.
//
// When the history spans more than twice the rolling window, thresholds are
// computed per-bucket over a symmetric local window instead of globally, so
// a baseline that drifted over years (server population growth) does not make
// old wars invisible or recent skirmishes look like wars.
type thresholdEngine struct {
	cfg    Config
	keys   []int64
	totals []float64

	global  float64
	rolling bool
}

// madScale makes the MAD a consistent estimator of the standard deviation
// under normality.
const madScale = 1.4826

func newThresholdEngine(cfg Config, buckets map[int64]*bucket, keys []int64) *thresholdEngine {
	totals := make([]float64, len(keys))
	for i, k := range keys {
		totals[i] = float64(buckets[k].exchanges)
	}

	med, mad := medianMAD(totals)
	global := math.Max(cfg.MinThreshold, med+cfg.MADMultiplier*mad)

	rolling := false
	if len(keys) > 0 {
		spanSeconds := (keys[len(keys)-1] - keys[0] + 1) * cfg.BucketSeconds
		rolling = float64(spanSeconds) > 2*cfg.RollingWindow.Seconds()
	}

	return &thresholdEngine{
		cfg:     cfg,
		keys:    keys,
		totals:  totals,
		global:  global,
		rolling: rolling,
	}
}

// at returns the activity threshold for a bucket key.
func (t *thresholdEngine) at(key int64) float64 {
	if !t.rolling {
		return t.global
	}

	windowBuckets := int64(t.cfg.RollingWindow.Seconds()) / t.cfg.BucketSeconds
	lo := key - windowBuckets
	hi := key + windowBuckets

	start := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] >= lo })
	end := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] > hi })

	// Too few local samples for a stable estimate.
	if end-start < t.cfg.RollingMinSamples {
		return t.global
	}

	window := make([]float64, end-start)
	copy(window, t.totals[start:end])
	med, mad := medianMAD(window)
	return math.Max(t.cfg.MinThreshold, med+t.cfg.MADMultiplier*mad)
}

// medianMAD returns the median and the scaled median absolute deviation of
// xs. The slice is sorted in place.
func medianMAD(xs []float64) (med, mad float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sort.Float64s(xs)
	med = quantileSorted(xs)

	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - med)
	}
	sort.Float64s(devs)
	mad = quantileSorted(devs) * madScale
	return med, mad
}

func quantileSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
