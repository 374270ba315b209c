package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ferry"

// Label values for push outcomes.
const (
	ResultPushed = "pushed"
	ResultFailed = "failed"
)

// Label values for retention prune reasons.
const (
	ReasonAge   = "age"
	ReasonSpace = "space"
)

// Collector bundles every ferry metric. One instance is registered per
// daemon; tasks record through it rather than owning metrics themselves.
type Collector struct {
	pushesTotal     *prometheus.CounterVec
	pushAttempts    prometheus.Counter
	pushDuration    prometheus.Histogram
	pushBytes       prometheus.Counter
	artifactsFailed prometheus.Gauge
	watcherDegraded prometheus.Gauge
	taskRestarts    *prometheus.CounterVec
	retentionPruned *prometheus.CounterVec
	lastSweep       prometheus.Gauge
}

// NewCollector registers ferry's metrics with reg and returns the recorder.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		pushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pushes_total",
				Help:      "Completed push attempts by result.",
			},
			[]string{"result"},
		),
		pushAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_attempts_total",
				Help:      "Push attempts started, including retries.",
			},
		),
		pushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "push_duration_seconds",
				Help:      "Wall time of push attempts in seconds.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		pushBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_bytes_total",
				Help:      "Bytes reported transferred by rsync.",
			},
		),
		artifactsFailed: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifacts_failed",
				Help:      "Artifacts currently in the terminal failed state.",
			},
		),
		watcherDegraded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "watcher_degraded",
				Help:      "1 when the native watcher is down and only the sweep runs.",
			},
		),
		taskRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_restarts_total",
				Help:      "Supervised task restarts after failure.",
			},
			[]string{"task"},
		),
		retentionPruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_pruned_total",
				Help:      "Archived artifact directories removed by the retainer.",
			},
			[]string{"reason"},
		),
		lastSweep: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time of the last completed watcher sweep.",
			},
		),
	}
}

// RecordAttempt counts a push attempt starting.
func (c *Collector) RecordAttempt() {
	if c == nil {
		return
	}
	c.pushAttempts.Inc()
}

// RecordPush counts a finished push attempt with its outcome and wall time.
// Bytes are added for successful transfers when rsync reported them.
func (c *Collector) RecordPush(result string, duration time.Duration, bytes int64) {
	if c == nil {
		return
	}
	c.pushesTotal.WithLabelValues(result).Inc()
	c.pushDuration.Observe(duration.Seconds())
	if result == ResultPushed && bytes > 0 {
		c.pushBytes.Add(float64(bytes))
	}
}

// SetFailedArtifacts publishes the current count of terminally failed dirs.
func (c *Collector) SetFailedArtifacts(count int) {
	if c == nil {
		return
	}
	c.artifactsFailed.Set(float64(count))
}

// IncFailedArtifacts bumps the failed gauge the moment a push goes terminal.
// The next watcher sweep re-publishes the authoritative count.
func (c *Collector) IncFailedArtifacts() {
	if c == nil {
		return
	}
	c.artifactsFailed.Inc()
}

// SetWatcherDegraded flags whether the native watcher is unavailable.
func (c *Collector) SetWatcherDegraded(degraded bool) {
	if c == nil {
		return
	}
	if degraded {
		c.watcherDegraded.Set(1)
	} else {
		c.watcherDegraded.Set(0)
	}
}

// RecordTaskRestart counts a supervised task restart.
func (c *Collector) RecordTaskRestart(task string) {
	if c == nil {
		return
	}
	c.taskRestarts.WithLabelValues(task).Inc()
}

// RecordPruned counts archived directories removed by the retainer.
func (c *Collector) RecordPruned(reason string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.retentionPruned.WithLabelValues(reason).Add(float64(count))
}

// SetLastSweep records the completion time of a watcher sweep.
func (c *Collector) SetLastSweep(at time.Time) {
	if c == nil {
		return
	}
	c.lastSweep.Set(float64(at.Unix()))
}
