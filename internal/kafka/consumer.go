package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/corveth/warmap/internal/metrics"
	"github.com/corveth/warmap/internal/snapshot"
)

// MessageHandler is implemented by anything that wants the exchange stream.
type MessageHandler interface {
	ProcessExchange(ctx context.Context, ev snapshot.RawExchange) error
}

// Consumer reads exchange events from Kafka and feeds them to a handler.
type Consumer struct {
	reader   *kafka.Reader
	handler  MessageHandler
	logger   zerolog.Logger
	name     string
	stopChan chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// ConsumerConfig holds consumer-specific configuration.
type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
	StartOffset    int64
	MaxWait        time.Duration
}

// NewConsumer creates a Kafka consumer for the exchange topic.
func NewConsumer(consumerCfg ConsumerConfig, handler MessageHandler, logger zerolog.Logger) (*Consumer, error) {
	if len(consumerCfg.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers provided")
	}
	if consumerCfg.MinBytes == 0 {
		consumerCfg.MinBytes = 1024 // 1KB
	}
	if consumerCfg.MaxBytes == 0 {
		consumerCfg.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if consumerCfg.CommitInterval == 0 {
		consumerCfg.CommitInterval = time.Second
	}
	if consumerCfg.MaxWait == 0 {
		consumerCfg.MaxWait = 500 * time.Millisecond
	}
	if consumerCfg.Topic == "" {
		consumerCfg.Topic = DefaultTopic
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        consumerCfg.Brokers,
		Topic:          consumerCfg.Topic,
		GroupID:        consumerCfg.GroupID,
		MinBytes:       consumerCfg.MinBytes,
		MaxBytes:       consumerCfg.MaxBytes,
		CommitInterval: consumerCfg.CommitInterval,
		StartOffset:    consumerCfg.StartOffset, // kafka.FirstOffset for earliest, kafka.LastOffset for latest
		MaxWait:        consumerCfg.MaxWait,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug().Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf(msg, args...)
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		reader:   reader,
		handler:  handler,
		logger:   logger.With().Str("component", "kafka_consumer").Str("group", consumerCfg.GroupID).Logger(),
		name:     consumerCfg.GroupID,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins consuming messages from Kafka.
func (c *Consumer) Start() error {
	c.logger.Info().Msg("Starting Kafka consumer")

	c.wg.Add(1)
	go c.consumeLoop()

	return nil
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info().Msg("Stopping Kafka consumer")

	close(c.stopChan)
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing Kafka reader")
		return err
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return nil
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			c.logger.Info().Msg("Consumer loop stopping")
			return
		case <-c.ctx.Done():
			return
		default:
			message, err := c.reader.FetchMessage(c.ctx)
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					continue
				}
				c.logger.Error().Err(err).Msg("Error fetching message")
				metrics.ProcessingErrorsTotal.WithLabelValues(c.name).Inc()
				time.Sleep(time.Second) // Avoid tight loop on persistent errors
				continue
			}

			if err := c.processMessage(message); err != nil {
				c.logger.Error().Err(err).Bytes("message_key", message.Key).Msg("Error processing message")
				metrics.ProcessingErrorsTotal.WithLabelValues(c.name).Inc()
			} else {
				metrics.ExchangesProcessedTotal.WithLabelValues(c.name).Inc()
			}

			// Commit whether processing succeeded or failed; a poison message
			// must not wedge the partition.
			if err := c.reader.CommitMessages(c.ctx, message); err != nil {
				c.logger.Error().Err(err).Msg("Error committing message")
			}

			metrics.KafkaConsumerLag.WithLabelValues(c.name).Set(float64(c.reader.Stats().Lag))
		}
	}
}

func (c *Consumer) processMessage(message kafka.Message) error {
	var ev snapshot.RawExchange
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal exchange: %w", err)
	}

	if ev.Territory == "" || ev.Guild == "" || ev.Unix <= 0 {
		return fmt.Errorf("malformed exchange message: %q", string(message.Value))
	}

	if err := c.handler.ProcessExchange(c.ctx, ev); err != nil {
		return fmt.Errorf("handler failed to process exchange: %w", err)
	}
	return nil
}

// GetStats returns consumer statistics.
func (c *Consumer) GetStats() kafka.ReaderStats {
	return c.reader.Stats()
}
