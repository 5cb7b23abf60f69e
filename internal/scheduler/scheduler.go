// Package scheduler runs the periodic lifecycle sweeps that renew, expire
// and downgrade subscriptions whose billing period or grace window lapsed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resumeforge/resumeforge/internal/clock"
	"github.com/resumeforge/resumeforge/internal/config"
	obsmetrics "github.com/resumeforge/resumeforge/internal/observability/metrics"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	SubscriptionSvc  subscriptiondomain.Service
	SubscriptionRepo subscriptiondomain.Repository

	Lifecycle *config.LifecycleConfigHolder `optional:"true"`
	Redis     *redis.Client                 `optional:"true"`
	Config    Config                        `optional:"true"`
}

type Scheduler struct {
	db               *gorm.DB
	log              *zap.Logger
	cfg              Config
	genID            *snowflake.Node
	clock            clock.Clock
	subscriptionSvc  subscriptiondomain.Service
	subscriptionRepo subscriptiondomain.Repository
	lifecycle        *config.LifecycleConfigHolder
	locker           *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.SubscriptionRepo == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:               p.DB,
		log:              p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:              cfg,
		genID:            p.GenID,
		clock:            p.Clock,
		subscriptionSvc:  p.SubscriptionSvc,
		subscriptionRepo: p.SubscriptionRepo,
		lifecycle:        p.Lifecycle,
		locker:           NewLocker(p.Redis),
	}, nil
}

// batchSize prefers the hot-reloadable lifecycle setting over the static
// config so operators can tune a running sweep.
func (s *Scheduler) batchSize() int {
	if s.lifecycle != nil {
		if size := s.lifecycle.Current().SweepBatchSize; size > 0 {
			return size
		}
	}
	return s.cfg.BatchSize
}

func (s *Scheduler) jobTimeout() time.Duration {
	if s.lifecycle != nil {
		if timeout := s.lifecycle.Current().JobTimeout; timeout > 0 {
			return timeout
		}
	}
	return s.cfg.JobTimeout
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// treat deadline as soft-timeout
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		sweepMetrics.IncJobTimeout(name)
	}
	sweepMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(parent, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("sweep lock unavailable, running unguarded", zap.Error(err))
		} else if !acquired {
			s.log.Debug("sweep lock held elsewhere, skipping run")
			return nil
		} else {
			defer func() {
				if releaseErr := s.locker.Release(parent, sweepLockKey, token); releaseErr != nil {
					s.log.Warn("sweep lock release failed", zap.Error(releaseErr))
				}
			}()
		}
	}

	batch := s.batchSize()
	timeout := s.jobTimeout()

	var err error
	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{obsmetrics.JobCycleSweep, s.isJobEnabled(obsmetrics.JobCycleSweep), func(ctx context.Context) error {
			return s.runJob(ctx, obsmetrics.JobCycleSweep, batch, timeout, s.CycleSweepJob)
		}},
		{obsmetrics.JobGraceSweep, s.isJobEnabled(obsmetrics.JobGraceSweep), func(ctx context.Context) error {
			return s.runJob(ctx, obsmetrics.JobGraceSweep, batch, timeout, s.GraceSweepJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty EnabledJobs means every job runs (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// CycleSweepJob renews or expires subscriptions whose billing period has
// lapsed. Each subscription is processed in isolation so one failure never
// blocks the rest of the batch.
func (s *Scheduler) CycleSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobCycleSweep, s.batchSize())
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	return s.sweepBatchLoop(ctx, run, obsmetrics.JobCycleSweep,
		s.subscriptionRepo.ListDueForSweep,
		s.subscriptionSvc.ProcessCycleEnd,
	)
}

// GraceSweepJob expires subscriptions whose grace window has lapsed after a
// last renewal attempt.
func (s *Scheduler) GraceSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, obsmetrics.JobGraceSweep, s.batchSize())
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	return s.sweepBatchLoop(ctx, run, obsmetrics.JobGraceSweep,
		s.subscriptionRepo.ListGraceExpired,
		s.subscriptionSvc.ProcessGrace,
	)
}

func (s *Scheduler) sweepBatchLoop(
	ctx context.Context,
	run *jobRun,
	job string,
	list func(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.UserSubscription, error),
	process func(ctx context.Context, subID snowflake.ID) error,
) error {
	sweepMetrics := obsmetrics.Sweep()
	batch := s.batchSize()
	var jobErr error

	for {
		subscriptions, err := list(ctx, s.db, s.clock.Now(), batch)
		if err != nil {
			s.logSweepError(ctx, run, "sweep.list.failed", job, 0, err)
			return errors.Join(jobErr, err)
		}
		if len(subscriptions) == 0 {
			break
		}

		failed := 0
		for _, subscription := range subscriptions {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}
			if err := process(ctx, subscription.ID); err != nil {
				failed++
				jobErr = errors.Join(jobErr, err)
				s.logSweepError(ctx, run, "sweep.process.failed", job, subscription.ID, err,
					zap.String("status", string(subscription.Status)),
				)
				continue
			}
			run.AddProcessed(1)
			sweepMetrics.AddBatchProcessed(job, 1)
		}

		// failed rows stay due, so re-listing would spin on them
		if failed > 0 || len(subscriptions) < batch {
			break
		}
	}

	return jobErr
}
