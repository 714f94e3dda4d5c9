package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
redis:
  url: "redis://localhost:6379"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Ingestor.PollInterval)
	assert.Equal(t, 2112, cfg.Ingestor.MetricsPort)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "territory.exchanges", cfg.Kafka.Topic)
	assert.Equal(t, "warmap", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 5*time.Minute, cfg.Analyzer.Interval)
	assert.Equal(t, 600000, cfg.Analyzer.MaxEvents)
	assert.Equal(t, 365, cfg.Analyzer.LookbackDays)
	assert.Equal(t, "data/exchanges.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 1000, cfg.API.MaxWebsocketConnections)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Detection defaults flow in from the engine.
	assert.Equal(t, int64(1800), cfg.Detection.BucketSeconds)
	assert.Equal(t, 84*time.Hour, cfg.Detection.RollingWindow)
	assert.Equal(t, 150, cfg.Detection.MaxConflicts)
	assert.Equal(t, 4, cfg.Detection.MaxFactions)
}

func TestLoadConfigFileValuesWin(t *testing.T) {
	path := writeConfig(t, `
detection:
  bucket_seconds: 900
  max_conflicts: 25
analyzer:
  interval: 1m
api:
  port: 9999
logging:
  level: debug
  format: pretty
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(900), cfg.Detection.BucketSeconds)
	assert.Equal(t, 25, cfg.Detection.MaxConflicts)
	assert.Equal(t, time.Minute, cfg.Analyzer.Interval)
	assert.Equal(t, 9999, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched detection knobs still fall back to engine defaults.
	assert.Equal(t, 2.0, cfg.Detection.MADMultiplier)
	assert.Equal(t, 24*time.Hour, cfg.Detection.WarMaxGap)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
redis:
  url: "redis://filehost:6379"
`)

	t.Setenv("KAFKA_BROKERS", "kafka1:9092,kafka2:9092")
	t.Setenv("REDIS_URL", "redis://envhost:6380")
	t.Setenv("SQLITE_PATH", "/var/lib/warmap/events.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis://envhost:6380", cfg.Redis.URL)
	assert.Equal(t, "/var/lib/warmap/events.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "detection: [not a map")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "bucket too small",
			content: `
detection:
  bucket_seconds: 30
`,
			wantErr: "bucket_seconds",
		},
		{
			name: "too many factions",
			content: `
detection:
  max_factions: 9
`,
			wantErr: "max_factions",
		},
		{
			name: "overlap fraction out of range",
			content: `
detection:
  war_guild_overlap_fraction: 1.5
`,
			wantErr: "war_guild_overlap_fraction",
		},
		{
			name: "negative max events",
			content: `
analyzer:
  max_events: -1
`,
			wantErr: "max_events",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
