package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indexer Engine

var (
	IndexerStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "steps_total",
		Help:      "Total advance_once steps executed",
	}, []string{"result"})

	IndexerStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "step_duration_seconds",
		Help:      "advance_once step processing duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})

	IndexerLogsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "logs_applied_total",
		Help:      "Total logs journaled and projected, by event name",
	}, []string{"event"})

	IndexerDuplicateLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "duplicate_logs_total",
		Help:      "Total logs observed that were already journaled (idempotent no-op)",
	}, []string{"source"})

	IndexerUndecodableLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "undecodable_logs_total",
		Help:      "Total logs skipped because they did not match the known ABI",
	}, []string{"source"})

	IndexerBootstrapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "bootstraps_total",
		Help:      "Total times the cursor bootstrapped from a fresh or far-behind state",
	})

	IndexerCursorBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "cursor_block",
		Help:      "Highest block number fully applied",
	})

	IndexerHeadBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "chain_head_block",
		Help:      "Most recently observed chain head block number",
	})

	IndexerCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "engine",
		Name:      "circuit_breaker_state",
		Help:      "RPC circuit breaker state (0=closed, 1=open, 2=half-open)",
	})
)

// RPC client

var (
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls issued to the chain source",
	}, []string{"chain", "method", "status"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow_indexer",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "JSON-RPC call duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times an RPC call waited for the token-bucket limiter",
	}, []string{"chain"})
)

// Auth verifier

var (
	AuthVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "auth",
		Name:      "verifications_total",
		Help:      "Total request envelope verifications, by outcome",
	}, []string{"result"})
)

// Metadata service

var (
	MetadataWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "metadata",
		Name:      "writes_total",
		Help:      "Total metadata/proof write attempts, by endpoint and outcome",
	}, []string{"endpoint", "result"})
)

// Read API

var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests served, by route and status class",
	}, []string{"route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrow_indexer",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request handling duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"})

	APIRateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow_indexer",
		Subsystem: "api",
		Name:      "rate_limit_rejections_total",
		Help:      "Total requests rejected by the per-IP rate limiter",
	}, []string{"route"})
)

// Database pool

var (
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Cumulative count of waits for a PostgreSQL connection from the pool",
	})

	DBPoolWaitDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "escrow_indexer",
		Subsystem: "postgres",
		Name:      "db_pool_wait_duration_seconds",
		Help:      "Latest PostgreSQL pool wait duration in seconds",
	})
)
