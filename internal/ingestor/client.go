package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/metrics"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/snapshot"
)

const (
	UserAgent      = "WarMap/1.0"
	RequestTimeout = 30 * time.Second
)

// Sink receives the exchange events the poller derives. The Kafka producer
// satisfies this; tests substitute a recorder.
type Sink interface {
	Produce(ev snapshot.RawExchange) error
}

// territoryEntry mirrors one entry of the territory list API response.
type territoryEntry struct {
	Guild struct {
		UUID   string `json:"uuid"`
		Name   string `json:"name"`
		Prefix string `json:"prefix"`
	} `json:"guild"`
	Acquired string `json:"acquired"`
	Location struct {
		Start [2]float64 `json:"start"`
		End   [2]float64 `json:"end"`
	} `json:"location"`
}

// TerritoryClient polls the territory list API and turns ownership diffs
// between consecutive snapshots into exchange events. The API reports current
// state only, so the poll interval bounds how fast back-and-forth flips can be
// observed.
type TerritoryClient struct {
	httpClient  *http.Client
	cfg         *config.Config
	logger      zerolog.Logger
	rateLimiter *rate.Limiter
	sink        Sink

	// onTerritoryData, when set, receives fresh coordinate data every poll so
	// the region classifier stays current.
	onTerritoryData func(map[string]region.TerritoryInfo)

	prevOwners map[string]string
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	isRunning  bool
}

// NewTerritoryClient creates a poller that feeds exchange events to sink.
func NewTerritoryClient(cfg *config.Config, sink Sink, logger zerolog.Logger) *TerritoryClient {
	return &TerritoryClient{
		httpClient:  &http.Client{Timeout: RequestTimeout},
		cfg:         cfg,
		logger:      logger.With().Str("component", "territory-client").Logger(),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.Ingestor.RateLimit), cfg.Ingestor.BurstLimit),
		sink:        sink,
		prevOwners:  make(map[string]string),
		stopChan:    make(chan struct{}),
	}
}

// OnTerritoryData registers a callback invoked with territory coordinate data
// after each successful poll. Must be called before Start.
func (t *TerritoryClient) OnTerritoryData(fn func(map[string]region.TerritoryInfo)) {
	t.onTerritoryData = fn
}

// Start begins the polling loop.
func (t *TerritoryClient) Start() error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return fmt.Errorf("client is already running")
	}
	t.isRunning = true
	t.mu.Unlock()

	t.logger.Info().
		Str("url", t.cfg.Ingestor.TerritoryURL).
		Dur("interval", t.cfg.Ingestor.PollInterval).
		Msg("Starting territory poller")

	t.wg.Add(1)
	go t.pollLoop()

	return nil
}

// Stop shuts down the polling loop and waits for it to finish.
func (t *TerritoryClient) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.mu.Unlock()

	close(t.stopChan)
	t.wg.Wait()
	t.logger.Info().Msg("Territory poller stopped")
}

func (t *TerritoryClient) pollLoop() {
	defer t.wg.Done()

	// First poll immediately so the baseline is primed before the first tick.
	t.pollWithRetry()

	ticker := time.NewTicker(t.cfg.Ingestor.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.pollWithRetry()
		}
	}
}

// pollWithRetry wraps a single poll in exponential backoff. Retrying is capped
// so a dead API never delays the next scheduled poll by more than the
// configured maximum.
func (t *TerritoryClient) pollWithRetry() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = t.cfg.Ingestor.MaxRetryInterval
	b.MaxElapsedTime = t.cfg.Ingestor.PollInterval

	operation := func() error {
		select {
		case <-t.stopChan:
			return nil
		default:
		}
		return t.pollOnce(context.Background())
	}

	if err := backoff.Retry(operation, b); err != nil {
		t.logger.Error().Err(err).Msg("Poll failed after retries")
		metrics.PollsTotal.WithLabelValues("error").Inc()
	}
}

// pollOnce fetches the territory list, emits exchange events for every
// ownership change since the previous poll, and updates the baseline.
func (t *TerritoryClient) pollOnce(ctx context.Context) error {
	if err := t.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Ingestor.TerritoryURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch territories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var territories map[string]territoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&territories); err != nil {
		return fmt.Errorf("decode territories: %w", err)
	}

	metrics.PollDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	metrics.PollsTotal.WithLabelValues("success").Inc()

	t.applySnapshot(territories)
	return nil
}

// applySnapshot diffs the fresh snapshot against the previous one. The first
// snapshot only primes the baseline; diffs start with the second.
func (t *TerritoryClient) applySnapshot(territories map[string]territoryEntry) {
	names := make([]string, 0, len(territories))
	for name := range territories {
		names = append(names, name)
	}
	sort.Strings(names)

	primed := len(t.prevOwners) > 0
	emitted := 0

	owners := make(map[string]string, len(territories))
	for _, name := range names {
		entry := territories[name]
		owners[name] = entry.Guild.Name

		if !primed || t.prevOwners[name] == entry.Guild.Name {
			continue
		}

		ev := snapshot.RawExchange{
			Unix:      acquiredUnix(entry.Acquired),
			Territory: name,
			Guild:     entry.Guild.Name,
			Prefix:    entry.Guild.Prefix,
		}
		if err := t.sink.Produce(ev); err != nil {
			t.logger.Warn().Err(err).Str("territory", name).Msg("Failed to emit exchange")
			continue
		}
		emitted++
	}
	t.prevOwners = owners

	metrics.ExchangesIngestedTotal.WithLabelValues().Add(float64(emitted))
	if emitted > 0 {
		t.logger.Info().Int("exchanges", emitted).Int("territories", len(territories)).Msg("Ownership changes detected")
	}

	if t.onTerritoryData != nil {
		t.onTerritoryData(toTerritoryInfo(territories))
	}
}

// acquiredUnix parses the API's acquisition timestamp, falling back to the
// current time when the field is absent or malformed.
func acquiredUnix(acquired string) int64 {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, acquired); err == nil {
			return ts.Unix()
		}
	}
	return time.Now().Unix()
}

func toTerritoryInfo(territories map[string]territoryEntry) map[string]region.TerritoryInfo {
	data := make(map[string]region.TerritoryInfo, len(territories))
	for name, entry := range territories {
		data[name] = region.TerritoryInfo{
			Location: region.Bounds{
				StartX: entry.Location.Start[0],
				StartZ: entry.Location.Start[1],
				EndX:   entry.Location.End[0],
				EndZ:   entry.Location.End[1],
			},
		}
	}
	return data
}
