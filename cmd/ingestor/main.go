package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/config"
	"github.com/corveth/warmap/internal/ingestor"
	"github.com/corveth/warmap/internal/kafka"
	"github.com/corveth/warmap/internal/metrics"
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

	logger := initLogger(cfg, "warmap-ingestor")
	logger.Info().Str("config", configPath).Msg("Starting territory ingestor")

	metrics.InitMetrics()
	metricsServer := metrics.NewServer(cfg.Ingestor.MetricsPort, logger)
	metricsServer.Start()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	if err := producer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start Kafka producer")
	}

	client := ingestor.NewTerritoryClient(cfg, producer, logger)
	if err := client.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start territory poller")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	client.Stop()
	if err := producer.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing Kafka producer")
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("Ingestor shutdown complete")
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
