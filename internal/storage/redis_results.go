package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/models"
)

// Redis keys for analysis results.
const (
	keyConflicts = "results:conflicts"
	keyWars      = "results:wars"
	keyUpdatedAt = "results:updated_at"
	keyAlertSeen = "alerts:seen"

	conflictAlertStream = "alerts:conflicts"
	alertStreamMaxLen   = 1000
)

// ResultCache stores the latest analysis output in Redis so the API can serve
// it without touching the analyzer, and streams alerts for newly detected
// conflicts.
type ResultCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewResultCache creates a result cache on top of an existing Redis client.
func NewResultCache(client *redis.Client, logger zerolog.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		logger: logger.With().Str("component", "result_cache").Logger(),
	}
}

// ConflictAlert is the payload pushed to the alert stream when a new conflict
// is first detected.
type ConflictAlert struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StartTime      int64   `json:"start_time"`
	EndTime        int64   `json:"end_time"`
	TotalExchanges int     `json:"total_exchanges"`
	PrimaryRegion  string  `json:"primary_region"`
	Confidence     float64 `json:"confidence"`
	PublishedAt    int64   `json:"published_at"`
}

// StoreResults writes the full conflict and war lists atomically with the
// given TTL. A stale result is better than none, so the TTL should comfortably
// exceed the analysis interval.
func (r *ResultCache) StoreResults(ctx context.Context, conflicts []models.ConflictEvent, wars []models.War, ttl time.Duration) error {
	conflictsJSON, err := json.Marshal(conflicts)
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}
	warsJSON, err := json.Marshal(wars)
	if err != nil {
		return fmt.Errorf("marshal wars: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, keyConflicts, conflictsJSON, ttl)
	pipe.Set(ctx, keyWars, warsJSON, ttl)
	pipe.Set(ctx, keyUpdatedAt, time.Now().UTC().Format(time.RFC3339), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store results: %w", err)
	}

	r.logger.Debug().
		Int("conflicts", len(conflicts)).
		Int("wars", len(wars)).
		Dur("ttl", ttl).
		Msg("Stored analysis results")
	return nil
}

// GetConflicts returns the cached conflict list, or nil when no analysis has
// completed yet (or the cache expired).
func (r *ResultCache) GetConflicts(ctx context.Context) ([]models.ConflictEvent, error) {
	data, err := r.client.Get(ctx, keyConflicts).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflicts: %w", err)
	}

	var conflicts []models.ConflictEvent
	if err := json.Unmarshal(data, &conflicts); err != nil {
		return nil, fmt.Errorf("unmarshal conflicts: %w", err)
	}
	return conflicts, nil
}

// GetWars returns the cached war list, or nil when the cache is empty.
func (r *ResultCache) GetWars(ctx context.Context) ([]models.War, error) {
	data, err := r.client.Get(ctx, keyWars).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wars: %w", err)
	}

	var wars []models.War
	if err := json.Unmarshal(data, &wars); err != nil {
		return nil, fmt.Errorf("unmarshal wars: %w", err)
	}
	return wars, nil
}

// UpdatedAt returns when results were last stored. Zero time when unknown.
func (r *ResultCache) UpdatedAt(ctx context.Context) (time.Time, error) {
	raw, err := r.client.Get(ctx, keyUpdatedAt).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get updated_at: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

// MarkAlerted records a conflict ID in the seen set. Returns true when the ID
// was not seen before, i.e. the caller should publish an alert for it.
func (r *ResultCache) MarkAlerted(ctx context.Context, conflictID string) (bool, error) {
	added, err := r.client.SAdd(ctx, keyAlertSeen, conflictID).Result()
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	return added == 1, nil
}

// PublishConflictAlert pushes a new-conflict alert onto the Redis stream. The
// stream is capped so it never grows unbounded.
func (r *ResultCache) PublishConflictAlert(ctx context.Context, c *models.ConflictEvent) error {
	alert := ConflictAlert{
		ID:             c.ID,
		Name:           c.Name,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		TotalExchanges: c.TotalExchanges,
		PrimaryRegion:  c.PrimaryRegion,
		Confidence:     c.Confidence,
		PublishedAt:    time.Now().Unix(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: conflictAlertStream,
		MaxLen: alertStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	r.logger.Info().
		Str("conflict_id", c.ID).
		Str("name", c.Name).
		Msg("Published conflict alert")
	return nil
}

// GetRecentAlerts returns the most recent alerts from the stream, newest first.
func (r *ResultCache) GetRecentAlerts(ctx context.Context, count int64) ([]ConflictAlert, error) {
	messages, err := r.client.XRevRangeN(ctx, conflictAlertStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read alert stream: %w", err)
	}

	alerts := make([]ConflictAlert, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			r.logger.Warn().Str("message_id", msg.ID).Msg("Alert message missing payload")
			continue
		}
		var alert ConflictAlert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			r.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to parse alert")
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// SubscribeAlerts blocks reading the alert stream and invokes handler for each
// new alert until ctx is cancelled. Only alerts published after the call are
// delivered.
func (r *ResultCache) SubscribeAlerts(ctx context.Context, handler func(ConflictAlert)) error {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{conflictAlertStream, lastID},
			Block:   time.Second,
			Count:   10,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error().Err(err).Msg("Error reading alert stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				raw, ok := msg.Values["payload"].(string)
				if !ok {
					continue
				}
				var alert ConflictAlert
				if err := json.Unmarshal([]byte(raw), &alert); err != nil {
					r.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to parse alert")
					continue
				}
				handler(alert)
			}
		}
	}
}
