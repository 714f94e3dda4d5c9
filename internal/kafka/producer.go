package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/corveth/warmap/internal/metrics"
	"github.com/corveth/warmap/internal/snapshot"
)

const (
	DefaultTopic         = "territory.exchanges"
	DefaultBufferSize    = 1000
	DefaultBatchSize     = 100
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultWriteTimeout  = 10 * time.Second
	DefaultReadTimeout   = 10 * time.Second
)

// Producer publishes exchange events to Kafka asynchronously. Events are
// buffered and written in batches; when the buffer fills, new events are
// dropped rather than blocking the poller.
type Producer struct {
	writer        *kafka.Writer
	logger        zerolog.Logger
	buffer        chan snapshot.RawExchange
	batchSize     int
	flushInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	isRunning     bool
	droppedCount  int64
}

// NewProducer creates a Kafka producer for the exchange topic.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Hash balancer on key (territory name)
		Compression:  compress.Snappy,
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultFlushInterval,
		WriteTimeout: DefaultWriteTimeout,
		ReadTimeout:  DefaultReadTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false, // Synchronous for error handling
		Logger:       kafka.LoggerFunc(logger.Debug().Msgf),
		ErrorLogger:  kafka.LoggerFunc(logger.Error().Msgf),
	}

	producer := &Producer{
		writer:        writer,
		logger:        logger.With().Str("component", "kafka-producer").Logger(),
		buffer:        make(chan snapshot.RawExchange, DefaultBufferSize),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		stopChan:      make(chan struct{}),
	}

	producer.logger.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Int("buffer_size", DefaultBufferSize).
		Int("batch_size", DefaultBatchSize).
		Msg("Kafka producer created")

	return producer, nil
}

// Start begins the background goroutine that batches and writes messages.
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("producer is already running")
	}

	p.isRunning = true
	p.wg.Add(1)

	go p.batchingLoop()

	p.logger.Info().Msg("Kafka producer started")
	return nil
}

func (p *Producer) batchingLoop() {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.isRunning = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.batchSize)

	for {
		select {
		case <-p.stopChan:
			// Flush remaining messages before shutdown
			if len(batch) > 0 {
				if err := p.writeBatch(batch); err != nil {
					p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to flush remaining batch during shutdown")
				}
			}
			p.logger.Info().Msg("Batching loop stopped")
			return

		case ev := <-p.buffer:
			message, err := exchangeToKafkaMessage(ev)
			if err != nil {
				p.logger.Error().Err(err).Str("territory", ev.Territory).Msg("Failed to serialize exchange")
				metrics.ProduceErrorsTotal.WithLabelValues("serialization").Inc()
				continue
			}

			batch = append(batch, message)

			if len(batch) >= p.batchSize {
				if err := p.writeBatch(batch); err != nil {
					p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write batch")
				}
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				if err := p.writeBatch(batch); err != nil {
					p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write timed batch")
				}
				batch = batch[:0]
			}
		}
	}
}

// Produce queues an exchange event for publication (non-blocking).
func (p *Producer) Produce(ev snapshot.RawExchange) error {
	metrics.ProduceAttemptsTotal.WithLabelValues().Inc()

	select {
	case p.buffer <- ev:
		return nil
	default:
		p.mu.Lock()
		p.droppedCount++
		dropCount := p.droppedCount
		p.mu.Unlock()

		metrics.MessagesDroppedTotal.WithLabelValues("buffer_full").Inc()

		// Log warning every 100 drops
		if dropCount%100 == 0 {
			p.logger.Warn().
				Int64("total_dropped", dropCount).
				Msg("Buffer full: dropping messages (backpressure signal)")
		}

		return fmt.Errorf("producer buffer full, message dropped")
	}
}

// exchangeToKafkaMessage serializes an exchange, keyed by territory so one
// territory's history stays on one partition.
func exchangeToKafkaMessage(ev snapshot.RawExchange) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal exchange to JSON: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.Territory),
		Value: value,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(uuid.New().String())},
			{Key: "guild", Value: []byte(ev.Guild)},
			{Key: "timestamp", Value: []byte(fmt.Sprintf("%d", ev.Unix))},
		},
	}, nil
}

func (p *Producer) writeBatch(batch []kafka.Message) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
	defer cancel()

	err := p.writer.WriteMessages(ctx, batch...)

	metrics.KafkaProduceLatency.WithLabelValues().Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProduceErrorsTotal.WithLabelValues("write").Inc()
		p.logger.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Dur("latency", time.Since(start)).
			Msg("Failed to write batch to Kafka")
		return fmt.Errorf("failed to write batch to Kafka: %w", err)
	}

	metrics.MessagesProducedTotal.WithLabelValues().Add(float64(len(batch)))

	p.logger.Debug().
		Int("batch_size", len(batch)).
		Dur("latency", time.Since(start)).
		Msg("Batch written to Kafka")

	return nil
}

// Close gracefully shuts down the producer, flushing any buffered messages.
func (p *Producer) Close() error {
	p.logger.Info().Msg("Shutting down Kafka producer")

	close(p.stopChan)
	p.wg.Wait()
	close(p.buffer)

	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka writer")
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}

	p.logger.Info().
		Int64("total_dropped", p.droppedCount).
		Msg("Kafka producer shutdown complete")

	return nil
}

// GetStats returns producer statistics.
func (p *Producer) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"is_running":     p.isRunning,
		"buffer_size":    len(p.buffer),
		"buffer_cap":     cap(p.buffer),
		"dropped_count":  p.droppedCount,
		"batch_size":     p.batchSize,
		"flush_interval": p.flushInterval.String(),
	}
}
