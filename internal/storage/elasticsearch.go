package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/models"
)

// ConflictIndexer archives detected conflicts in Elasticsearch so they can be
// searched after the Redis cache rotates. Documents are keyed by conflict ID,
// so re-indexing the same analysis run is idempotent.
type ConflictIndexer struct {
	client *elasticsearch.Client
	config *config.Elasticsearch
	logger zerolog.Logger
}

// conflictDocument is the indexed shape of a conflict. The heavy per-bucket
// detail stays out of the archive; the document carries what the dashboard
// search needs.
type conflictDocument struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
	TotalExchanges      int            `json:"total_exchanges"`
	PeakHourly          int            `json:"peak_hourly"`
	PrimaryRegion       string         `json:"primary_region"`
	RegionBreakdown     map[string]int `json:"region_breakdown"`
	TerritoriesInvolved int            `json:"territories_involved"`
	FactionCount        int            `json:"faction_count"`
	Guilds              []string       `json:"guilds"`
	Confidence          float64        `json:"confidence"`
	IsMultiFront        bool           `json:"is_multi_front"`
	IndexedAt           time.Time      `json:"indexed_at"`
}

// NewConflictIndexer creates an Elasticsearch client, verifies connectivity
// and installs the retention policy and index template.
func NewConflictIndexer(cfg *config.Elasticsearch, logger zerolog.Logger) (*ConflictIndexer, error) {
	esConfig := elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(100*i*i) * time.Millisecond
		},
		MaxRetries: 3,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping ES: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("ES ping failed with status: %s", res.Status())
	}

	indexer := &ConflictIndexer{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "conflict_indexer").Logger(),
	}

	if err := indexer.setupIndex(); err != nil {
		indexer.logger.Warn().Err(err).Msg("Failed to set up conflict index")
	}
	return indexer, nil
}

// setupIndex installs the retention ILM policy and the index template for the
// conflict archive. Both calls are idempotent.
func (es *ConflictIndexer) setupIndex() error {
	ctx := context.Background()

	// Retention-only ILM policy. The archive is a single index written by ID,
	// so there is no rollover phase; old conflicts simply age out.
	policyName := es.config.Index + "-policy"
	policy := map[string]interface{}{
		"policy": map[string]interface{}{
			"phases": map[string]interface{}{
				"hot": map[string]interface{}{
					"actions": map[string]interface{}{},
				},
				"delete": map[string]interface{}{
					"min_age": fmt.Sprintf("%dd", es.config.RetentionDays),
					"actions": map[string]interface{}{
						"delete": map[string]interface{}{},
					},
				},
			},
		},
	}
	policyJSON, _ := json.Marshal(policy)
	policyReq := esapi.ILMPutLifecycleRequest{
		Policy: policyName,
		Body:   bytes.NewReader(policyJSON),
	}
	res, err := policyReq.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("failed to create ILM policy: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 400 { // 400 might mean policy already exists
		return fmt.Errorf("failed to create ILM policy, status: %s", res.Status())
	}

	template := map[string]interface{}{
		"index_patterns": []string{es.config.Index},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":     1,
				"number_of_replicas":   0,
				"index.lifecycle.name": policyName,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"id":                   map[string]interface{}{"type": "keyword"},
					"name":                 map[string]interface{}{"type": "text"},
					"start_time":           map[string]interface{}{"type": "date"},
					"end_time":             map[string]interface{}{"type": "date"},
					"total_exchanges":      map[string]interface{}{"type": "integer"},
					"peak_hourly":          map[string]interface{}{"type": "integer"},
					"primary_region":       map[string]interface{}{"type": "keyword"},
					"territories_involved": map[string]interface{}{"type": "integer"},
					"faction_count":        map[string]interface{}{"type": "integer"},
					"guilds":               map[string]interface{}{"type": "keyword"},
					"confidence":           map[string]interface{}{"type": "float"},
					"is_multi_front":       map[string]interface{}{"type": "boolean"},
					"indexed_at":           map[string]interface{}{"type": "date"},
				},
			},
		},
	}
	templateJSON, _ := json.Marshal(template)
	templateReq := esapi.IndicesPutIndexTemplateRequest{
		Name: es.config.Index + "-template",
		Body: bytes.NewReader(templateJSON),
	}
	tres, err := templateReq.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer tres.Body.Close()
	if tres.IsError() && tres.StatusCode != 400 { // 400 might mean template already exists
		return fmt.Errorf("failed to create index template, status: %s", tres.Status())
	}
	return nil
}

// IndexConflicts bulk-indexes an analysis run's conflicts. Each document uses
// the conflict ID as the document ID, so successive runs overwrite rather than
// duplicate.
func (es *ConflictIndexer) IndexConflicts(ctx context.Context, conflicts []models.ConflictEvent) error {
	if len(conflicts) == 0 {
		return nil
	}

	var body bytes.Buffer
	for i := range conflicts {
		doc := toConflictDocument(&conflicts[i])

		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": es.config.Index,
				"_id":    doc.ID,
			},
		}
		actionJSON, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		docJSON, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal conflict document: %w", err)
		}
		body.Write(actionJSON)
		body.WriteByte('\n')
		body.Write(docJSON)
		body.WriteByte('\n')
	}

	res, err := es.client.Bulk(
		bytes.NewReader(body.Bytes()),
		es.client.Bulk.WithContext(ctx),
		es.client.Bulk.WithIndex(es.config.Index),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index failed with status: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		failed := 0
		for _, item := range bulkResp.Items {
			for _, op := range item {
				if op.Error != nil {
					failed++
					es.logger.Warn().
						Str("type", op.Error.Type).
						Str("reason", op.Error.Reason).
						Msg("Conflict document rejected")
				}
			}
		}
		return fmt.Errorf("bulk index rejected %d of %d documents", failed, len(conflicts))
	}

	es.logger.Debug().Int("count", len(conflicts)).Msg("Indexed conflicts")
	return nil
}

func toConflictDocument(c *models.ConflictEvent) conflictDocument {
	guilds := make([]string, 0)
	for _, side := range c.Factions {
		for _, g := range side.Guilds {
			guilds = append(guilds, g.Name)
		}
	}
	return conflictDocument{
		ID:                  c.ID,
		Name:                c.Name,
		StartTime:           time.Unix(c.StartTime, 0).UTC(),
		EndTime:             time.Unix(c.EndTime, 0).UTC(),
		TotalExchanges:      c.TotalExchanges,
		PeakHourly:          c.PeakHourly,
		PrimaryRegion:       c.PrimaryRegion,
		RegionBreakdown:     c.RegionBreakdown,
		TerritoriesInvolved: c.TerritoriesInvolved,
		FactionCount:        len(c.Factions),
		Guilds:              guilds,
		Confidence:          c.Confidence,
		IsMultiFront:        c.IsMultiFront,
		IndexedAt:           time.Now().UTC(),
	}
}
