package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corveth/warmap/internal/detect"
)

// Config is the main configuration structure shared by every binary.
type Config struct {
	Features      Features      `yaml:"features"`
	Ingestor      Ingestor      `yaml:"ingestor"`
	Detection     detect.Config `yaml:"detection"`
	Analyzer      Analyzer      `yaml:"analyzer"`
	Redis         Redis         `yaml:"redis"`
	Kafka         Kafka         `yaml:"kafka"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch"`
	Storage       Storage       `yaml:"storage"`
	API           API           `yaml:"api"`
	Logging       Logging       `yaml:"logging"`
}

// Features contains feature flags for optional subsystems.
type Features struct {
	ElasticsearchIndexing bool `yaml:"elasticsearch_indexing"`
	Websockets            bool `yaml:"websockets"`
	SSEStream             bool `yaml:"sse_stream"`
}

// Ingestor configures the territory API poller.
type Ingestor struct {
	TerritoryURL     string        `yaml:"territory_url"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RateLimit        int           `yaml:"rate_limit"`
	BurstLimit       int           `yaml:"burst_limit"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval"`
	MetricsPort      int           `yaml:"metrics_port"`
}

// Analyzer configures the batch analysis worker.
type Analyzer struct {
	Interval     time.Duration `yaml:"interval"`
	MaxEvents    int           `yaml:"max_events"`
	LookbackDays int           `yaml:"lookback_days"`
	ResultTTL    time.Duration `yaml:"result_ttl"`
	MetricsPort  int           `yaml:"metrics_port"`
}

// Redis configuration.
type Redis struct {
	URL string `yaml:"url"`
}

// Kafka configuration.
type Kafka struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	ConsumerGroup  string        `yaml:"consumer_group"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Elasticsearch configuration for the conflict archive index.
type Elasticsearch struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Index         string `yaml:"index"`
	RetentionDays int    `yaml:"retention_days"`
}

// Storage configures the local exchange-event log.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// API configuration.
type API struct {
	Port                    int `yaml:"port"`
	MaxWebsocketConnections int `yaml:"max_websocket_connections"`
}

// Logging configuration.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&config)
	overrideWithEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults fills in default values for optional fields.
func setDefaults(config *Config) {
	// Ingestor defaults
	if config.Ingestor.TerritoryURL == "" {
		config.Ingestor.TerritoryURL = "https://api.wynncraft.com/v3/guild/list/territory"
	}
	if config.Ingestor.PollInterval == 0 {
		config.Ingestor.PollInterval = 30 * time.Second
	}
	if config.Ingestor.RateLimit == 0 {
		config.Ingestor.RateLimit = 2
	}
	if config.Ingestor.BurstLimit == 0 {
		config.Ingestor.BurstLimit = 5
	}
	if config.Ingestor.MaxRetryInterval == 0 {
		config.Ingestor.MaxRetryInterval = 5 * time.Minute
	}
	if config.Ingestor.MetricsPort == 0 {
		config.Ingestor.MetricsPort = 2112
	}

	// Detection defaults: start from the engine's own defaults and keep
	// anything the file set explicitly.
	applyDetectionDefaults(&config.Detection)

	// Analyzer defaults
	if config.Analyzer.Interval == 0 {
		config.Analyzer.Interval = 5 * time.Minute
	}
	if config.Analyzer.MaxEvents == 0 {
		config.Analyzer.MaxEvents = 600000
	}
	if config.Analyzer.LookbackDays == 0 {
		config.Analyzer.LookbackDays = 365
	}
	if config.Analyzer.ResultTTL == 0 {
		config.Analyzer.ResultTTL = 30 * time.Minute
	}
	if config.Analyzer.MetricsPort == 0 {
		config.Analyzer.MetricsPort = 2113
	}

	// Redis defaults
	if config.Redis.URL == "" {
		config.Redis.URL = "redis://localhost:6379"
	}

	// Kafka defaults
	if len(config.Kafka.Brokers) == 0 {
		config.Kafka.Brokers = []string{"localhost:9092"}
	}
	if config.Kafka.Topic == "" {
		config.Kafka.Topic = "territory.exchanges"
	}
	if config.Kafka.ConsumerGroup == "" {
		config.Kafka.ConsumerGroup = "warmap"
	}
	if config.Kafka.SessionTimeout == 0 {
		config.Kafka.SessionTimeout = 30 * time.Second
	}

	// Elasticsearch defaults
	if config.Elasticsearch.URL == "" {
		config.Elasticsearch.URL = "http://localhost:9200"
	}
	if config.Elasticsearch.Index == "" {
		config.Elasticsearch.Index = "conflicts"
	}
	if config.Elasticsearch.RetentionDays == 0 {
		config.Elasticsearch.RetentionDays = 90
	}

	// Storage defaults
	if config.Storage.SQLitePath == "" {
		config.Storage.SQLitePath = "data/exchanges.db"
	}

	// API defaults
	if config.API.Port == 0 {
		config.API.Port = 8080
	}
	if config.API.MaxWebsocketConnections == 0 {
		config.API.MaxWebsocketConnections = 1000
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
}

func applyDetectionDefaults(dc *detect.Config) {
	defaults := detect.DefaultConfig()
	if dc.BucketSeconds == 0 {
		dc.BucketSeconds = defaults.BucketSeconds
	}
	if dc.MinThreshold == 0 {
		dc.MinThreshold = defaults.MinThreshold
	}
	if dc.MADMultiplier == 0 {
		dc.MADMultiplier = defaults.MADMultiplier
	}
	if dc.RollingWindow == 0 {
		dc.RollingWindow = defaults.RollingWindow
	}
	if dc.RollingMinSamples == 0 {
		dc.RollingMinSamples = defaults.RollingMinSamples
	}
	if dc.ShortGapBuckets == 0 {
		dc.ShortGapBuckets = defaults.ShortGapBuckets
	}
	if dc.LongGapBuckets == 0 {
		dc.LongGapBuckets = defaults.LongGapBuckets
	}
	if dc.GuildOverlapFraction == 0 {
		dc.GuildOverlapFraction = defaults.GuildOverlapFraction
	}
	if dc.PrimaryRegionFraction == 0 {
		dc.PrimaryRegionFraction = defaults.PrimaryRegionFraction
	}
	if dc.MultiFrontFraction == 0 {
		dc.MultiFrontFraction = defaults.MultiFrontFraction
	}
	if dc.MaxConflicts == 0 {
		dc.MaxConflicts = defaults.MaxConflicts
	}
	if dc.MinFactionInteractions == 0 {
		dc.MinFactionInteractions = defaults.MinFactionInteractions
	}
	if dc.NewFactionHostilityRatio == 0 {
		dc.NewFactionHostilityRatio = defaults.NewFactionHostilityRatio
	}
	if dc.NewFactionMinInteractions == 0 {
		dc.NewFactionMinInteractions = defaults.NewFactionMinInteractions
	}
	if dc.MaxFactions == 0 {
		dc.MaxFactions = defaults.MaxFactions
	}
	if dc.WarGuildOverlapFraction == 0 {
		dc.WarGuildOverlapFraction = defaults.WarGuildOverlapFraction
	}
	if dc.WarMaxGap == 0 {
		dc.WarMaxGap = defaults.WarMaxGap
	}
	if dc.WarMaxDuration == 0 {
		dc.WarMaxDuration = defaults.WarMaxDuration
	}
	if dc.WarTopGuilds == 0 {
		dc.WarTopGuilds = defaults.WarTopGuilds
	}
	if dc.WarTopFactions == 0 {
		dc.WarTopFactions = defaults.WarTopFactions
	}
}

// overrideWithEnv overrides configuration with environment variables.
func overrideWithEnv(config *Config) {
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}
	if esURL := os.Getenv("ES_URL"); esURL != "" {
		config.Elasticsearch.URL = esURL
	}
	if dbPath := os.Getenv("SQLITE_PATH"); dbPath != "" {
		config.Storage.SQLitePath = dbPath
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if len(config.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers must not be empty")
	}
	if config.Redis.URL == "" {
		return fmt.Errorf("redis URL must not be empty")
	}
	if config.Detection.BucketSeconds < 60 {
		return fmt.Errorf("detection bucket_seconds must be at least 60")
	}
	if config.Detection.MaxFactions < 2 || config.Detection.MaxFactions > 4 {
		return fmt.Errorf("detection max_factions must be between 2 and 4")
	}
	if f := config.Detection.WarGuildOverlapFraction; f <= 0 || f > 1 {
		return fmt.Errorf("detection war_guild_overlap_fraction must be in (0, 1]")
	}
	if config.Analyzer.MaxEvents < 0 {
		return fmt.Errorf("analyzer max_events must not be negative")
	}
	return nil
}
