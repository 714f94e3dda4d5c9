package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/detect"
	"github.com/corveth/warmap/internal/metrics"
	"github.com/corveth/warmap/internal/models"
	"github.com/corveth/warmap/internal/snapshot"
	"github.com/corveth/warmap/internal/storage"
)

const flushInterval = 5 * time.Second

// Indexer archives finished analysis output. The Elasticsearch indexer
// satisfies this; it is optional.
type Indexer interface {
	IndexConflicts(ctx context.Context, conflicts []models.ConflictEvent) error
}

// Worker is the batch analysis loop. It consumes exchange events from Kafka
// into the SQLite log, and on every tick rebuilds the event window, runs
// conflict detection and war grouping, and publishes the results.
type Worker struct {
	cfg      *config.Config
	events   *storage.EventStore
	cache    *storage.ResultCache
	indexer  Indexer
	detector *detect.Detector
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []snapshot.RawExchange

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker wires an analysis worker. indexer may be nil when archiving is
// disabled.
func NewWorker(cfg *config.Config, events *storage.EventStore, cache *storage.ResultCache, indexer Indexer, detector *detect.Detector, logger zerolog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		events:   events,
		cache:    cache,
		indexer:  indexer,
		detector: detector,
		logger:   logger.With().Str("component", "analyzer").Logger(),
		stopChan: make(chan struct{}),
	}
}

// ProcessExchange implements the Kafka message handler: events are buffered in
// memory and flushed to the log in batches.
func (w *Worker) ProcessExchange(ctx context.Context, ev snapshot.RawExchange) error {
	w.mu.Lock()
	w.pending = append(w.pending, ev)
	w.mu.Unlock()
	return nil
}

// Start launches the flush and analysis loops.
func (w *Worker) Start() {
	w.wg.Add(2)
	go w.flushLoop()
	go w.analysisLoop()
	w.logger.Info().
		Dur("interval", w.cfg.Analyzer.Interval).
		Int("max_events", w.cfg.Analyzer.MaxEvents).
		Msg("Analysis worker started")
}

// Stop shuts down both loops and flushes any buffered events.
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.flush()
	w.logger.Info().Msg("Analysis worker stopped")
}

func (w *Worker) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Worker) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := w.events.InsertBatch(batch); err != nil {
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to persist exchange batch")
		// Put the batch back so the next flush retries it.
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
	}
}

func (w *Worker) analysisLoop() {
	defer w.wg.Done()

	// First run immediately so a restart repopulates the cache without
	// waiting a full interval.
	w.RunOnce(context.Background())

	ticker := time.NewTicker(w.cfg.Analyzer.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce executes a single full analysis pass.
func (w *Worker) RunOnce(ctx context.Context) {
	start := time.Now()
	w.flush()

	cutoff := time.Now().Unix() - int64(w.cfg.Analyzer.LookbackDays)*86400

	if pruned, err := w.events.Prune(cutoff); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to prune old events")
	} else if pruned > 0 {
		w.logger.Debug().Int64("pruned", pruned).Msg("Pruned events past the lookback window")
	}

	raw, err := w.events.LoadSince(cutoff)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to load events")
		metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		return
	}

	if count, err := w.events.Count(); err == nil {
		metrics.EventsStored.WithLabelValues().Set(float64(count))
	}

	store := snapshot.BuildStore(raw, w.cfg.Analyzer.MaxEvents)

	// A long stretch with no events at all usually means a collection outage,
	// worth flagging before trusting the window's quiet periods.
	if first, last, ok := snapshot.Bounds(store); ok {
		if gaps := snapshot.Gaps(store, 6*3600); len(gaps) > 0 {
			w.logger.Warn().
				Int("gaps", len(gaps)).
				Int64("window_start", first).
				Int64("window_end", last).
				Msg("Event history has collection gaps")
		}
	}

	conflicts := w.detector.DetectConflicts(store)
	wars := w.detector.GroupWars(conflicts)

	if err := w.cache.StoreResults(ctx, conflicts, wars, w.cfg.Analyzer.ResultTTL); err != nil {
		w.logger.Error().Err(err).Msg("Failed to store results")
		metrics.AnalysisRunsTotal.WithLabelValues("error").Inc()
		return
	}

	w.publishNewAlerts(ctx, conflicts)

	if w.indexer != nil && len(conflicts) > 0 {
		if err := w.indexer.IndexConflicts(ctx, conflicts); err != nil {
			w.logger.Error().Err(err).Msg("Failed to index conflicts")
			metrics.IndexErrorsTotal.WithLabelValues().Inc()
		} else {
			metrics.DocsIndexedTotal.WithLabelValues().Add(float64(len(conflicts)))
		}
	}

	metrics.AnalysisRunsTotal.WithLabelValues("success").Inc()
	metrics.AnalysisDuration.WithLabelValues().Observe(time.Since(start).Seconds())

	w.logger.Info().
		Int("events", len(raw)).
		Int("conflicts", len(conflicts)).
		Int("wars", len(wars)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis run complete")
}

// publishNewAlerts streams an alert for every conflict not seen in a previous
// run. Conflict IDs derive from start times, so a conflict that merely grows
// keeps its ID and is not re-announced.
func (w *Worker) publishNewAlerts(ctx context.Context, conflicts []models.ConflictEvent) {
	for i := range conflicts {
		c := &conflicts[i]
		fresh, err := w.cache.MarkAlerted(ctx, c.ID)
		if err != nil {
			w.logger.Warn().Err(err).Str("conflict_id", c.ID).Msg("Failed to check alert state")
			continue
		}
		if !fresh {
			continue
		}
		if err := w.cache.PublishConflictAlert(ctx, c); err != nil {
			w.logger.Warn().Err(err).Str("conflict_id", c.ID).Msg("Failed to publish alert")
			continue
		}
		metrics.AlertsPublishedTotal.WithLabelValues().Inc()
	}
}
