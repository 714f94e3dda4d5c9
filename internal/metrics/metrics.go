package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Ingestor counters
	ExchangesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchanges_ingested_total",
			Help: "Territory ownership changes observed by the poller",
		},
		[]string{},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "territory_polls_total",
			Help: "Territory API polls by outcome",
		},
		[]string{"status"},
	)

	// Kafka producer counters
	ProduceAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "produce_attempts_total",
			Help: "Total attempts to produce messages to Kafka",
		},
		[]string{},
	)

	MessagesProducedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_produced_total",
			Help: "Total messages successfully produced to Kafka",
		},
		[]string{},
	)

	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_dropped_total",
			Help: "Total messages dropped due to buffer full or other reasons",
		},
		[]string{"reason"},
	)

	ProduceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "produce_errors_total",
			Help: "Total Kafka production errors by type",
		},
		[]string{"type"},
	)

	// Consumer counters
	ExchangesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchanges_processed_total",
			Help: "Exchange events processed per consumer",
		},
		[]string{"consumer"},
	)

	ProcessingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processing_errors_total",
			Help: "Processing errors per consumer",
		},
		[]string{"consumer"},
	)

	// Analyzer counters
	AnalysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Analysis runs by outcome",
		},
		[]string{"status"},
	)

	AlertsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_published_total",
			Help: "New-conflict alerts published to the Redis stream",
		},
		[]string{},
	)

	// Archive counters
	DocsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Conflict documents indexed to Elasticsearch",
		},
		[]string{},
	)

	IndexErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_errors_total",
			Help: "Elasticsearch indexing errors",
		},
		[]string{},
	)

	// API counters
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "API requests",
		},
		[]string{"endpoint", "method"},
	)

	APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "API errors by error code",
		},
		[]string{"error_code"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Rate limiter hits",
		},
		[]string{},
	)

	WebSocketConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "WebSocket connections established",
		},
		[]string{},
	)

	WebSocketMessagesBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_broadcast_total",
			Help: "Total messages broadcast to WebSocket clients",
		},
		[]string{"type"},
	)

	WebSocketMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Messages dropped due to full client buffers",
		},
		[]string{},
	)

	// Gauges
	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Current lag in messages",
		},
		[]string{"consumer"},
	)

	EventsStored = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_events_stored",
			Help: "Exchange events currently in the SQLite log",
		},
		[]string{},
	)

	WebSocketConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Currently active WebSocket connections",
		},
		[]string{},
	)

	SSEClientsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sse_clients_active",
			Help: "Currently subscribed SSE clients",
		},
		[]string{},
	)

	// Histograms
	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "territory_poll_duration_seconds",
			Help:    "Territory API poll duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)

	KafkaProduceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_produce_latency_seconds",
			Help:    "Kafka produce operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Full analysis run duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default Prometheus registry.
// Safe to call more than once; only the first call registers.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ExchangesIngestedTotal,
			PollsTotal,
			ProduceAttemptsTotal,
			MessagesProducedTotal,
			MessagesDroppedTotal,
			ProduceErrorsTotal,
			ExchangesProcessedTotal,
			ProcessingErrorsTotal,
			AnalysisRunsTotal,
			AlertsPublishedTotal,
			DocsIndexedTotal,
			IndexErrorsTotal,
			APIRequestsTotal,
			APIErrorsTotal,
			RateLimitHitsTotal,
			WebSocketConnectionsTotal,
			WebSocketMessagesBroadcast,
			WebSocketMessagesDropped,
			KafkaConsumerLag,
			EventsStored,
			WebSocketConnectionsActive,
			SSEClientsActive,
			PollDuration,
			KafkaProduceLatency,
			AnalysisDuration,
			APIRequestDuration,
		)
	})
}
