package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
)

func TestClassifySweepError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: sweepErrorTypeDeadlineExceeded,
		},
		{
			name: "charge_declined",
			err:  paymentdomain.ErrChargeDeclined,
			want: sweepErrorTypePayment,
		},
		{
			name: "pg_error",
			err:  &pgconn.PgError{Code: "40001"},
			want: sweepErrorTypeDB,
		},
		{
			name: "duplicate_key",
			err:  gorm.ErrDuplicatedKey,
			want: sweepErrorTypeDB,
		},
		{
			name: "business_rule",
			err:  errors.New("plan_not_found"),
			want: sweepErrorTypeBusinessRule,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifySweepError(tc.err); got != tc.want {
				t.Fatalf("expected type %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSweepMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{
		ServiceName: "resumeforge",
		Environment: "test",
	})

	metrics.IncJobRun(JobCycleSweep)
	metrics.IncJobRun(JobCycleSweep)
	metrics.AddBatchProcessed(JobCycleSweep, 3)
	metrics.IncSubscriptionTransition("ACTIVE", "GRACE_PERIOD")
	metrics.ObserveJobDuration(JobCycleSweep, 120*time.Millisecond)
	metrics.ObserveRunLoopLag(-time.Second)

	if got := testutil.ToFloat64(metrics.jobRuns.WithLabelValues(JobCycleSweep)); got != 2 {
		t.Fatalf("expected 2 job runs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues(JobCycleSweep)); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("ACTIVE", "GRACE_PERIOD")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestSweepMetricsIgnoresNonPositiveBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{})

	metrics.AddBatchProcessed(JobGraceSweep, 0)
	metrics.AddBatchProcessed(JobGraceSweep, -4)

	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues(JobGraceSweep)); got != 0 {
		t.Fatalf("expected processed count 0, got %v", got)
	}
}
