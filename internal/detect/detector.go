// Package detect implements the conflict/war detection engine: a batch
// pipeline that converts a sorted stream of territory ownership changes into
// characterized conflicts and multi-battle wars.
//
// Data flows strictly downward: events -> buckets -> threshold -> runs ->
// characterized conflicts -> factions/confidence/naming -> wars. No stage
// mutates anything upstream, and the whole pipeline is a pure function of the
// ExchangeStore, so it is safe to call from a background worker.
package detect

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/models"
	"github.com/corveth/warmap/internal/region"
)

// Config carries every tuning constant of the engine. The constants were
// tuned empirically in earlier iterations of this analysis and are exposed as
// configuration rather than hard-coded; DefaultConfig is a mid-range setting
// that behaves well on multi-year histories.
type Config struct {
	// Bucketizer / threshold.
	BucketSeconds     int64         `yaml:"bucket_seconds"`
	MinThreshold      float64       `yaml:"min_threshold"`
	MADMultiplier     float64       `yaml:"mad_multiplier"`
	RollingWindow     time.Duration `yaml:"rolling_window"`
	RollingMinSamples int           `yaml:"rolling_min_samples"`

	// Run merging.
	ShortGapBuckets      int     `yaml:"short_gap_buckets"`
	LongGapBuckets       int     `yaml:"long_gap_buckets"`
	GuildOverlapFraction float64 `yaml:"guild_overlap_fraction"`

	// Characterization.
	PrimaryRegionFraction float64 `yaml:"primary_region_fraction"`
	MultiFrontFraction    float64 `yaml:"multi_front_fraction"`
	MaxConflicts          int     `yaml:"max_conflicts"`

	// Faction detection.
	MinFactionInteractions    int     `yaml:"min_faction_interactions"`
	NewFactionHostilityRatio  float64 `yaml:"new_faction_hostility_ratio"`
	NewFactionMinInteractions int     `yaml:"new_faction_min_interactions"`
	MaxFactions               int     `yaml:"max_factions"`

	// War grouping.
	WarGuildOverlapFraction float64       `yaml:"war_guild_overlap_fraction"`
	WarMaxGap               time.Duration `yaml:"war_max_gap"`
	WarMaxDuration          time.Duration `yaml:"war_max_duration"`
	WarTopGuilds            int           `yaml:"war_top_guilds"`
	WarTopFactions          int           `yaml:"war_top_factions"`
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		BucketSeconds:     1800, // 30 minute buckets
		MinThreshold:      6,
		MADMultiplier:     2.0,
		RollingWindow:     84 * time.Hour, // +/- 3.5 days
		RollingMinSamples: 20,

		ShortGapBuckets:      4, // 2h always merged
		LongGapBuckets:       6, // 3h merged on guild overlap
		GuildOverlapFraction: 0.5,

		PrimaryRegionFraction: 0.6,
		MultiFrontFraction:    0.15,
		MaxConflicts:          150,

		MinFactionInteractions:    2,
		NewFactionHostilityRatio:  0.7,
		NewFactionMinInteractions: 5,
		MaxFactions:               4,

		WarGuildOverlapFraction: 0.4,
		WarMaxGap:               24 * time.Hour,
		WarMaxDuration:          7 * 24 * time.Hour,
		WarTopGuilds:            5,
		WarTopFactions:          2,
	}
}

var (
	detectorMetricsOnce   sync.Once
	sharedDetectorMetrics *DetectorMetrics
)

// DetectorMetrics contains Prometheus metrics for the detection engine.
type DetectorMetrics struct {
	ConflictsDetected prometheus.Counter
	WarsGrouped       prometheus.Counter
	RunsDropped       prometheus.Counter
	AnalysisTime      prometheus.Histogram
}

// Detector runs the full detection pipeline over an ExchangeStore.
type Detector struct {
	cfg     Config
	regions *region.Classifier
	metrics *DetectorMetrics
	logger  zerolog.Logger
}

// New creates a detector. The classifier is borrowed, not owned; workers that
// run detections in parallel should construct one classifier each.
func New(cfg Config, regions *region.Classifier, logger zerolog.Logger) *Detector {
	detectorMetricsOnce.Do(func() {
		sharedDetectorMetrics = &DetectorMetrics{
			ConflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "conflicts_detected_total",
				Help: "Total conflicts emitted by the detection pipeline",
			}),
			WarsGrouped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wars_grouped_total",
				Help: "Total wars emitted by the war grouper",
			}),
			RunsDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "conflict_runs_dropped_total",
				Help: "Raw conflict runs dropped after replaying to zero exchanges",
			}),
			AnalysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "conflict_analysis_seconds",
				Help:    "Wall time of a full conflict detection pass",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
		}
		prometheus.MustRegister(
			sharedDetectorMetrics.ConflictsDetected,
			sharedDetectorMetrics.WarsGrouped,
			sharedDetectorMetrics.RunsDropped,
			sharedDetectorMetrics.AnalysisTime,
		)
	})

	return &Detector{
		cfg:     cfg,
		regions: regions,
		metrics: sharedDetectorMetrics,
		logger:  logger.With().Str("component", "conflict_detector").Logger(),
	}
}

// DetectConflicts runs the pipeline and returns conflicts sorted descending
// by total exchanges, capped at MaxConflicts. An empty or signal-free event
// stream yields an empty slice, never an error.
//
// The store is expected to be capped (snapshot.BuildStore caps at the
// configured event limit) so a single pass stays bounded.
func (d *Detector) DetectConflicts(store *models.ExchangeStore) []models.ConflictEvent {
	start := time.Now()
	defer func() {
		d.metrics.AnalysisTime.Observe(time.Since(start).Seconds())
	}()

	conflicts := []models.ConflictEvent{}
	if len(store.Data.Events) == 0 {
		return conflicts
	}

	buckets, keys := d.bucketize(store)
	if len(keys) == 0 {
		return conflicts
	}

	thresholds := newThresholdEngine(d.cfg, buckets, keys)
	runs := d.mergeRuns(buckets, keys, thresholds)

	for _, r := range runs {
		conflict, replay, ok := d.characterize(store, r, buckets)
		if !ok {
			d.metrics.RunsDropped.Inc()
			continue
		}

		factions, assignment := d.detectFactions(store, replay)
		conflict.Factions = factions
		if len(factions) >= 2 {
			conflict.Sides = factions[:2]
		} else {
			conflict.Sides = factions
		}

		cleanliness := bipartiteCleanliness(factions, assignment, replay)
		conflict.Confidence = d.scoreConfidence(conflict, len(replay.involvement()), cleanliness)
		conflict.Name = d.nameConflict(conflict)

		conflicts = append(conflicts, *conflict)
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].TotalExchanges != conflicts[j].TotalExchanges {
			return conflicts[i].TotalExchanges > conflicts[j].TotalExchanges
		}
		return conflicts[i].StartTime < conflicts[j].StartTime
	})
	if d.cfg.MaxConflicts > 0 && len(conflicts) > d.cfg.MaxConflicts {
		conflicts = conflicts[:d.cfg.MaxConflicts]
	}

	d.metrics.ConflictsDetected.Add(float64(len(conflicts)))
	d.logger.Debug().
		Int("events", len(store.Data.Events)).
		Int("buckets", len(keys)).
		Int("runs", len(runs)).
		Int("conflicts", len(conflicts)).
		Msg("Conflict detection pass complete")

	return conflicts
}
