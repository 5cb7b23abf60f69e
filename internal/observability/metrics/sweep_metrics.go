package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
)

const (
	sweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	sweepErrorTypeBusinessRule     = "business_rule"
	sweepErrorTypePayment          = "payment"
	sweepErrorTypeDB               = "db"
)

// Job names used as metric labels by the lifecycle sweeps.
const (
	JobCycleSweep = "cycle_sweep"
	JobGraceSweep = "grace_sweep"
)

// Config carries service identity labels for the sweep metrics.
type Config struct {
	ServiceName string
	Environment string
}

// SweepMetrics captures subscription lifecycle sweep health signals.
type SweepMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	batchProcessed   *prometheus.CounterVec
	runLoopLag       prometheus.Observer
	transitions      *prometheus.CounterVec
	versionConflicts prometheus.Counter
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest resets the sweep metrics singleton for tests.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "resumeforge"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resumeforge_sweep_job_runs_total",
		Help:        "Lifecycle sweep job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "resumeforge_sweep_job_duration_seconds",
		Help:        "Lifecycle sweep job latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resumeforge_sweep_job_timeouts_total",
		Help:        "Lifecycle sweep jobs cut off by their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resumeforge_sweep_job_errors_total",
		Help:        "Lifecycle sweep job errors by low-cardinality type.",
		ConstLabels: constLabels,
	}, []string{"job", "error_type"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resumeforge_sweep_batch_processed_total",
		Help:        "Subscriptions processed per sweep job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "resumeforge_sweep_runloop_lag_seconds",
		Help:        "Sweep run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resumeforge_subscription_transition_total",
		Help:        "Subscription status transitions applied by the sweeps.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	versionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "resumeforge_subscription_version_conflicts_total",
		Help:        "Optimistic concurrency conflicts on subscription writes.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		transitions,
		versionConflicts,
	)

	return &SweepMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		batchProcessed:   batchProcessed,
		runLoopLag:       runLoopLag,
		transitions:      transitions,
		versionConflicts: versionConflicts,
	}
}

// IncJobRun increments the run counter for a sweep job.
func (m *SweepMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records sweep job latency in seconds.
func (m *SweepMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for a sweep job.
func (m *SweepMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the sweep job error counter with classification.
func (m *SweepMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifySweepError(err)).Inc()
}

// AddBatchProcessed adds processed subscriptions for a sweep job.
func (m *SweepMetrics) AddBatchProcessed(job string, count int) {
	if m == nil || m.batchProcessed == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and run start.
func (m *SweepMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// IncSubscriptionTransition counts a status transition applied by a sweep.
func (m *SweepMetrics) IncSubscriptionTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncVersionConflict counts an optimistic concurrency conflict.
func (m *SweepMetrics) IncVersionConflict() {
	if m == nil || m.versionConflicts == nil {
		return
	}
	m.versionConflicts.Inc()
}

func classifySweepError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sweepErrorTypeDeadlineExceeded
	}
	if errors.Is(err, paymentdomain.ErrChargeDeclined) {
		return sweepErrorTypePayment
	}
	if isDBError(err) {
		return sweepErrorTypeDB
	}
	return sweepErrorTypeBusinessRule
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
