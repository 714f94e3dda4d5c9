package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corveth/warmap/internal/snapshot"
)

func TestExchangeToKafkaMessage(t *testing.T) {
	ev := snapshot.RawExchange{
		Unix:      1700000000,
		Territory: "Llevigar",
		Guild:     "RedFang",
		Prefix:    "Red",
	}

	msg, err := exchangeToKafkaMessage(ev)
	require.NoError(t, err)

	// Keyed by territory so one territory's history stays on one partition.
	assert.Equal(t, []byte("Llevigar"), msg.Key)

	var decoded snapshot.RawExchange
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev, decoded)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.NotEmpty(t, headers["message_id"])
	assert.Equal(t, "RedFang", headers["guild"])
	assert.Equal(t, "1700000000", headers["timestamp"])
}

func TestExchangeToKafkaMessageUniqueIDs(t *testing.T) {
	ev := snapshot.RawExchange{Unix: 1, Territory: "Detlas", Guild: "Alpha"}

	m1, err := exchangeToKafkaMessage(ev)
	require.NoError(t, err)
	m2, err := exchangeToKafkaMessage(ev)
	require.NoError(t, err)

	assert.NotEqual(t, m1.Headers[0].Value, m2.Headers[0].Value)
}

type stubHandler struct {
	received []snapshot.RawExchange
	err      error
}

func (s *stubHandler) ProcessExchange(_ context.Context, ev snapshot.RawExchange) error {
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, ev)
	return nil
}

func newTestConsumer(t *testing.T, handler MessageHandler) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   DefaultTopic,
		GroupID: "test-group",
	}, handler, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestProcessMessage(t *testing.T) {
	handler := &stubHandler{}
	c := newTestConsumer(t, handler)

	ev := snapshot.RawExchange{Unix: 1700000000, Territory: "Olux", Guild: "IronOath", Prefix: "Iro"}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, c.processMessage(kafkago.Message{Key: []byte(ev.Territory), Value: payload}))
	require.Len(t, handler.received, 1)
	assert.Equal(t, ev, handler.received[0])
}

func TestProcessMessageMalformed(t *testing.T) {
	handler := &stubHandler{}
	c := newTestConsumer(t, handler)

	cases := []struct {
		name  string
		value []byte
	}{
		{"invalid json", []byte(`{not json`)},
		{"missing territory", mustJSON(t, snapshot.RawExchange{Unix: 1, Guild: "Alpha"})},
		{"missing guild", mustJSON(t, snapshot.RawExchange{Unix: 1, Territory: "Detlas"})},
		{"zero timestamp", mustJSON(t, snapshot.RawExchange{Territory: "Detlas", Guild: "Alpha"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.processMessage(kafkago.Message{Value: tc.value})
			require.Error(t, err)
			assert.Empty(t, handler.received)
		})
	}
}

func TestProcessMessageHandlerError(t *testing.T) {
	handler := &stubHandler{err: errors.New("db unavailable")}
	c := newTestConsumer(t, handler)

	payload := mustJSON(t, snapshot.RawExchange{Unix: 1, Territory: "Detlas", Guild: "Alpha"})
	err := c.processMessage(kafkago.Message{Value: payload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unavailable")
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{}, &stubHandler{}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, DefaultTopic, zerolog.Nop())
	require.Error(t, err)
}

func TestProducerBufferFullDrops(t *testing.T) {
	p, err := NewProducer([]string{"localhost:9092"}, DefaultTopic, zerolog.Nop())
	require.NoError(t, err)

	// Not started, so nothing drains the buffer.
	for i := 0; i < DefaultBufferSize; i++ {
		require.NoError(t, p.Produce(snapshot.RawExchange{Unix: int64(i + 1), Territory: "Detlas", Guild: "Alpha"}))
	}

	err = p.Produce(snapshot.RawExchange{Unix: 9999, Territory: "Detlas", Guild: "Alpha"})
	require.Error(t, err, "full buffer drops instead of blocking")

	stats := p.GetStats()
	assert.Equal(t, int64(1), stats["dropped_count"])
	assert.Equal(t, DefaultBufferSize, stats["buffer_size"])
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
