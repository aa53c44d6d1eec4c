package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hakwonlab/wonpay/internal/clock"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	syncdomain "github.com/hakwonlab/wonpay/internal/sync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	SyncSvc         syncdomain.Service
	Config          Config `optional:"true"`
}

// Scheduler drives the periodic jobs: recurring billing, subscription
// lapse, and the reconciliation sync against the payment processor.
type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	syncSvc         syncdomain.Service

	lastSyncAt time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.SyncSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		syncSvc:         p.SyncSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))

	err := fn(ctx)
	elapsed := time.Since(start)
	if err == nil {
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}

	// A deadline is a soft timeout: the next tick picks the work back up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"recurring_billing", s.isJobEnabled("recurring_billing"), func(ctx context.Context) error {
			return s.runJob(ctx, "recurring_billing", s.cfg.JobTimeout, s.RecurringBillingJob)
		}},
		{"lapse_subscriptions", s.isJobEnabled("lapse_subscriptions"), func(ctx context.Context) error {
			return s.runJob(ctx, "lapse_subscriptions", s.cfg.JobTimeout, s.LapseSubscriptionsJob)
		}},
		{"reconcile_sync", s.isJobEnabled("reconcile_sync"), func(ctx context.Context) error {
			return s.runJob(ctx, "reconcile_sync", s.cfg.SyncTimeout, s.ReconcileSyncJob)
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

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything (monolith mode).
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

func (s *Scheduler) RecurringBillingJob(ctx context.Context) error {
	report, err := s.subscriptionSvc.ChargeDue(ctx)
	if err != nil {
		return err
	}
	if report.Due > 0 {
		s.log.Info("recurring billing pass",
			zap.Int("due", report.Due),
			zap.Int("charged", report.Charged),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}
	return nil
}

func (s *Scheduler) LapseSubscriptionsJob(ctx context.Context) error {
	lapsed, err := s.subscriptionSvc.LapseExpired(ctx)
	if err != nil {
		return err
	}
	if lapsed > 0 {
		s.log.Info("subscriptions lapsed to free", zap.Int("count", lapsed))
	}
	return nil
}

// ReconcileSyncJob runs at most once per SyncInterval; the run loop
// ticks far more often for billing.
func (s *Scheduler) ReconcileSyncJob(ctx context.Context) error {
	now := s.clock.Now()
	if !s.lastSyncAt.IsZero() && now.Sub(s.lastSyncAt) < s.cfg.SyncInterval {
		return nil
	}
	s.lastSyncAt = now

	report, err := s.syncSvc.SyncAll(ctx, syncdomain.Options{})
	if err != nil {
		return err
	}
	if report.Skipped {
		s.log.Info("reconciliation sync skipped, another run holds the lock")
		return nil
	}
	s.log.Info("reconciliation sync finished",
		zap.Int("settlements_synced", report.Settlements.Synced),
		zap.Int("settlement_errors", report.Settlements.Errors),
		zap.Int("payouts_synced", report.Payouts.Synced),
		zap.Int("payout_errors", report.Payouts.Errors),
		zap.Duration("duration", report.Duration),
	)
	return nil
}
