package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tinyurl"

var (
	// request/reply calls by topic and outcome (ok, error, timeout, publish_error)
	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Request/reply calls over the message bus.",
		},
		[]string{"topic", "outcome"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Time from publishing a request to its settlement.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"topic"},
	)

	// replies that arrived after their exchange settled or expired
	RPCLateReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_late_replies_total",
			Help:      "Replies discarded because the exchange was already settled.",
		},
		[]string{"topic"},
	)

	OwnershipCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_cache_total",
			Help:      "Ownership cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	OwnershipQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_queries_answered_total",
			Help:      "Ownership queries handled by the responder (answered, duplicate, error).",
		},
		[]string{"result"},
	)

	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Aggregation batch runs by outcome (ok, fetch_error).",
		},
		[]string{"outcome"},
	)

	BatchURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_urls_total",
			Help:      "Per-URL aggregation results (processed, skipped, failed).",
		},
		[]string{"result"},
	)

	BatchClicksApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_clicks_applied_total",
			Help:      "Click events folded into daily counters.",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of aggregation batch runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	LockAcquire = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Update lock acquisitions by result (acquired, busy, error).",
		},
		[]string{"result"},
	)

	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Background tasks by name and result (ok, failed, rejected).",
		},
		[]string{"task", "result"},
	)

	TaskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "background_task_queue_depth",
			Help:      "Tasks waiting in the background queue.",
		},
	)

	Redirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirect requests by result.",
		},
		[]string{"result"},
	)

	ClicksIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_ingested_total",
			Help:      "Click events by result (stored, duplicate, dropped, skipped_bot).",
		},
		[]string{"result"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		},
		[]string{"limiter"},
	)

	BotRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_requests_total",
			Help:      "Requests handled by bot defense by outcome.",
		},
		[]string{"outcome"},
	)

	// connected live feed clients
	FeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Websocket clients subscribed to the live click feed.",
		},
	)
)

// registers a gauge that reads fn on every scrape
func RegisterPendingGauge(name string, fn func() int) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "rpc_pending_exchanges",
			Help:        "Request/reply exchanges waiting for a reply.",
			ConstLabels: prometheus.Labels{"registry": name},
		},
		func() float64 { return float64(fn()) },
	)
}

// serves the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
