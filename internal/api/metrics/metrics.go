// Package metrics defines and registers all custom Prometheus metrics for the
// job tracking service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package init
// (promauto) and exposed by the ops router at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

// ── Position feed metrics ─────────────────────────────────────────────────────

// PositionsAcceptedTotal counts records published by a position feed.
// Label:
//   - origin: "push", "poll" or "refresh"
var PositionsAcceptedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positions_accepted_total",
		Help:      "Total number of position records accepted and published by a feed.",
	},
	[]string{"origin"},
)

// PositionsDiscardedTotal counts records dropped at the feed boundary.
// Labels:
//   - origin: "push", "poll" or "refresh"
//   - reason: "stale", "invalid" or "foreign_entity"
var PositionsDiscardedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positions_discarded_total",
		Help:      "Total number of position records discarded by a feed.",
	},
	[]string{"origin", "reason"},
)

// PollErrorsTotal counts failed poll-channel fetches (retried on the next tick).
var PollErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_errors_total",
		Help:      "Total number of poll channel fetches that failed.",
	},
)

// PushDegradedTotal counts feeds that started without a push subscription.
var PushDegradedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_degraded_total",
		Help:      "Total number of feeds running poll-only because the push subscription failed.",
	},
)

// ── Route metrics ─────────────────────────────────────────────────────────────

// DecodeErrorsTotal counts encoded paths that failed to decode.
var DecodeErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Total number of malformed encoded paths.",
	},
)

// UnreliableFixesTotal counts progress evaluations skipped by the reliability guard.
var UnreliableFixesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unreliable_fixes_total",
		Help:      "Total number of progress updates skipped because the fix was too far from the route.",
	},
)

// ProgressPublishedTotal counts progress states emitted to observers.
var ProgressPublishedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_published_total",
		Help:      "Total number of progress states published after the significant-change filter.",
	},
)

// RecalculationsTotal counts route recalculation triggers.
var RecalculationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recalculations_total",
		Help:      "Total number of route recalculations triggered by sustained deviation.",
	},
)

// ActiveSessions tracks the number of attached entities.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Current number of entities being tracked.",
	},
)

// ── Ingest metrics ────────────────────────────────────────────────────────────

// ReportsProcessedTotal counts ingested position reports.
// Label:
//   - result: "stored", "duplicate" or "error"
var ReportsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_processed_total",
		Help:      "Total number of position reports processed by the ingest pipeline.",
	},
	[]string{"result"},
)

// ReportsQueueDepth tracks the current number of reports waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var ReportsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reports_queue_depth",
		Help:      "Current number of reports pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ReportProcessingDuration measures how long a single report takes to process end-to-end.
var ReportProcessingDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_processing_duration_seconds",
		Help:      "Duration of report processing from dequeue to publication.",
		Buckets:   prometheus.DefBuckets,
	},
)
