package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/corveth/warmap/internal/analyzer"
	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/detect"
	"github.com/corveth/warmap/internal/kafka"
	"github.com/corveth/warmap/internal/metrics"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/storage"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := initLogger(cfg, "warmap-analyzer")
	logger.Info().Str("config", configPath).Msg("Starting conflict analyzer")

	metrics.InitMetrics()
	metricsServer := metrics.NewServer(cfg.Analyzer.MetricsPort, logger)
	metricsServer.Start()

	// Redis
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse Redis URL")
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	pingCancel()
	logger.Info().Msg("Connected to Redis")

	// SQLite event log
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0755); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.SQLitePath).Msg("Failed to create data directory")
	}
	events, err := storage.NewEventStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.SQLitePath).Msg("Failed to open event store")
	}
	defer events.Close()
	logger.Info().Str("path", cfg.Storage.SQLitePath).Msg("Event store ready")

	cache := storage.NewResultCache(redisClient, logger)

	// Elasticsearch archive (optional)
	var indexer analyzer.Indexer
	if cfg.Features.ElasticsearchIndexing && cfg.Elasticsearch.Enabled {
		esIndexer, err := storage.NewConflictIndexer(&cfg.Elasticsearch, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Elasticsearch unavailable, archiving disabled")
		} else {
			indexer = esIndexer
			logger.Info().Str("url", cfg.Elasticsearch.URL).Msg("Conflict archiving enabled")
		}
	}

	detector := detect.New(cfg.Detection, region.NewClassifier(), logger)
	worker := analyzer.NewWorker(cfg, events, cache, indexer, detector, logger)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.ConsumerGroup,
		StartOffset: kafkago.FirstOffset, // Start from earliest on first run
	}, worker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	worker.Start()
	if err := consumer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start Kafka consumer")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := consumer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Kafka consumer")
	}
	worker.Stop()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("Analyzer shutdown complete")
}

func initLogger(cfg *config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if cfg.Logging.Format == "pretty" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", service).
		Str("version", "1.0.0").
		Logger()
}
