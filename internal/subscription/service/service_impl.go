package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/observability/metrics"
	"github.com/hakwonlab/wonpay/internal/plan"
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	"github.com/hakwonlab/wonpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config bounds the charge retry schedule.
type Config struct {
	MaxChargeAttempts int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	BatchSize         int
}

func DefaultConfig() Config {
	return Config{
		MaxChargeAttempts: 5,
		RetryBackoffBase:  time.Hour,
		RetryBackoffCap:   24 * time.Hour,
		BatchSize:         50,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxChargeAttempts <= 0 {
		c.MaxChargeAttempts = defaults.MaxChargeAttempts
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = defaults.RetryBackoffBase
	}
	if c.RetryBackoffCap <= 0 {
		c.RetryBackoffCap = defaults.RetryBackoffCap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Catalog *plan.Catalog
	Repo    domain.Repository
	Charger domain.Charger
	Alerts  alert.Provider
	Metrics *metrics.Metrics `optional:"true"`
	Config  Config           `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	catalog *plan.Catalog
	repo    domain.Repository
	charger domain.Charger
	alerts  alert.Provider
	metrics *metrics.Metrics
	cfg     Config
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription"),
		genID:   p.GenID,
		clock:   p.Clock,
		catalog: p.Catalog,
		repo:    p.Repo,
		charger: p.Charger,
		alerts:  p.Alerts,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

func (s *Service) Get(ctx context.Context, academyID string) (*domain.Subscription, error) {
	sub, err := s.repo.FindByAcademyID(ctx, s.db, academyID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) Cancel(ctx context.Context, academyID string) error {
	sub, err := s.Get(ctx, academyID)
	if err != nil {
		return err
	}
	if !sub.AutoRenew {
		return nil
	}

	// Cancellation only turns off renewal. Paid service continues until
	// the current period ends; the lapse job does the downgrade.
	sub.AutoRenew = false
	sub.NextRetryAt = nil
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Info("subscription cancellation scheduled",
		zap.String("academy_id", academyID),
		zap.Time("period_end", sub.CurrentPeriodEnd),
	)
	return nil
}

func (s *Service) Suspend(ctx context.Context, academyID, reason string) error {
	if reason == "" {
		return domain.ErrReasonRequired
	}
	sub, err := s.Get(ctx, academyID)
	if err != nil {
		return err
	}
	if sub.Status == domain.StatusSuspended {
		return nil
	}

	sub.Status = domain.StatusSuspended
	sub.SuspendedReason = &reason
	sub.NextRetryAt = nil
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Warn("subscription suspended",
		zap.String("academy_id", academyID),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) Reinstate(ctx context.Context, academyID string) error {
	sub, err := s.Get(ctx, academyID)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusSuspended {
		return domain.ErrNotSuspended
	}

	sub.Status = domain.StatusActive
	sub.SuspendedReason = nil
	sub.FailedAttempts = 0
	sub.NextRetryAt = nil
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Info("subscription reinstated", zap.String("academy_id", academyID))
	return nil
}

func (s *Service) ChangePlan(ctx context.Context, academyID string, to plan.Tier) (*domain.ChangePlanResult, error) {
	sub, err := s.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.catalog.Plan(to); !ok {
		return nil, domain.ErrInvalidTier
	}
	if to == sub.PlanTier {
		return nil, domain.ErrSamePlan
	}

	now := s.clock.Now()
	result := &domain.ChangePlanResult{}

	upgrade := plan.Rank(to) > plan.Rank(sub.PlanTier)
	if upgrade && sub.Status == domain.StatusActive {
		amount, err := s.catalog.ProratedUpgrade(sub.PlanTier, to, sub.BillingCycle, sub.DaysRemaining(now))
		if err != nil {
			return nil, err
		}
		result.ProratedAmount = amount

		if amount > 0 {
			if sub.BillingKey == nil || *sub.BillingKey == "" {
				return nil, domain.ErrMissingBillingKey
			}

			invoice := s.newInvoice(sub, amount, now, now, sub.CurrentPeriodEnd)
			invoice.PlanTier = to
			if err := s.repo.InsertInvoice(ctx, s.db, invoice); err != nil {
				return nil, err
			}

			paymentID := chargePaymentID(sub.ID)
			_, chargeErr := s.charger.Charge(ctx, domain.ChargeRequest{
				PaymentID:    paymentID,
				BillingKey:   *sub.BillingKey,
				OrderName:    fmt.Sprintf("%s plan upgrade (prorated)", to),
				CustomerName: sub.AcademyID,
				Amount:       amount,
				Currency:     "KRW",
			})
			if chargeErr != nil {
				s.metrics.IncCharge(metrics.ResultFailed)
				_ = s.repo.MarkInvoiceFailed(ctx, s.db, invoice.ID, chargeErr.Error(), now)
				return nil, fmt.Errorf("proration charge: %w", chargeErr)
			}

			s.metrics.IncCharge(metrics.ResultSucceeded)
			if err := s.repo.MarkInvoicePaid(ctx, s.db, invoice.ID, paymentID, now); err != nil {
				return nil, err
			}
			invoice.Status = domain.InvoicePaid
			invoice.PaymentID = &paymentID
			invoice.PaidAt = &now
			result.Invoice = invoice
		}
	}

	sub.PlanTier = to
	if to == plan.TierFree {
		sub.Status = domain.StatusFree
		sub.NextPaymentAt = nil
	} else if sub.Status == domain.StatusFree {
		sub.Status = domain.StatusActive
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = advancePeriod(now, sub.BillingCycle)
		end := sub.CurrentPeriodEnd
		sub.NextPaymentAt = &end
		sub.AutoRenew = true
	}
	sub.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return nil, err
	}

	result.Subscription = sub
	s.log.Info("plan changed",
		zap.String("academy_id", academyID),
		zap.String("tier", string(to)),
		zap.Int64("prorated_amount", result.ProratedAmount),
	)
	return result, nil
}

func (s *Service) ChargeDue(ctx context.Context) (domain.ChargeRunReport, error) {
	now := s.clock.Now()
	report := domain.ChargeRunReport{}

	due, err := s.repo.FindDue(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for i := range due {
		sub := &due[i]
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		switch s.chargeOne(ctx, sub, now) {
		case chargeOutcomeCharged:
			report.Charged++
		case chargeOutcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	if report.Due > 0 {
		s.log.Info("recurring billing pass finished",
			zap.Int("due", report.Due),
			zap.Int("charged", report.Charged),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}
	return report, nil
}

type chargeOutcome int

const (
	chargeOutcomeSkipped chargeOutcome = iota
	chargeOutcomeCharged
	chargeOutcomeFailed
)

func (s *Service) chargeOne(ctx context.Context, sub *domain.Subscription, now time.Time) chargeOutcome {
	log := s.log.With(zap.String("academy_id", sub.AcademyID))

	if sub.BillingKey == nil || *sub.BillingKey == "" {
		log.Error("due subscription has no billing key")
		return chargeOutcomeSkipped
	}

	p, ok := s.catalog.Plan(sub.PlanTier)
	if !ok {
		log.Error("due subscription on unknown tier", zap.String("tier", string(sub.PlanTier)))
		return chargeOutcomeSkipped
	}
	amount := p.Price(sub.BillingCycle)
	if amount <= 0 {
		log.Warn("due subscription has no billable price", zap.String("tier", string(sub.PlanTier)))
		return chargeOutcomeSkipped
	}

	periodStart := sub.CurrentPeriodEnd
	periodEnd := advancePeriod(periodStart, sub.BillingCycle)

	invoice := s.newInvoice(sub, amount, now, periodStart, periodEnd)
	if err := s.repo.InsertInvoice(ctx, s.db, invoice); err != nil {
		log.Error("invoice insert failed", zap.Error(err))
		return chargeOutcomeSkipped
	}

	paymentID := chargePaymentID(sub.ID)
	_, chargeErr := s.charger.Charge(ctx, domain.ChargeRequest{
		PaymentID:    paymentID,
		BillingKey:   *sub.BillingKey,
		OrderName:    fmt.Sprintf("%s plan %s renewal", p.Name, sub.BillingCycle),
		CustomerName: sub.AcademyID,
		Amount:       amount,
		Currency:     "KRW",
	})

	if chargeErr != nil {
		s.metrics.IncCharge(metrics.ResultFailed)
		_ = s.repo.MarkInvoiceFailed(ctx, s.db, invoice.ID, chargeErr.Error(), now)

		sub.Status = domain.StatusPastDue
		sub.FailedAttempts++
		if sub.FailedAttempts >= s.cfg.MaxChargeAttempts {
			// Out of retries: stays past_due until manual action.
			sub.NextRetryAt = nil
			_ = s.alerts.ChargeFailed(ctx, sub.AcademyID, amount, sub.FailedAttempts, chargeErr.Error())
		} else {
			retryAt := now.Add(s.retryBackoff(sub.FailedAttempts))
			sub.NextRetryAt = &retryAt
		}
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			log.Error("subscription update failed after declined charge", zap.Error(err))
		}

		log.Warn("recurring charge failed",
			zap.Int("attempts", sub.FailedAttempts),
			zap.Error(chargeErr),
		)
		return chargeOutcomeFailed
	}

	s.metrics.IncCharge(metrics.ResultSucceeded)
	if err := s.repo.MarkInvoicePaid(ctx, s.db, invoice.ID, paymentID, now); err != nil {
		log.Error("invoice mark paid failed", zap.Error(err))
	}

	sub.Status = domain.StatusActive
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd
	sub.NextPaymentAt = &periodEnd
	sub.FailedAttempts = 0
	sub.NextRetryAt = nil
	sub.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		log.Error("subscription update failed after charge", zap.Error(err))
		return chargeOutcomeFailed
	}

	log.Info("recurring charge succeeded",
		zap.Int64("amount", amount),
		zap.Time("period_end", periodEnd),
	)
	return chargeOutcomeCharged
}

func (s *Service) LapseExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	lapsed, err := s.repo.FindLapsed(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range lapsed {
		sub := &lapsed[i]
		sub.Status = domain.StatusFree
		sub.PlanTier = plan.TierFree
		sub.NextPaymentAt = nil
		sub.NextRetryAt = nil
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, sub); err != nil {
			s.log.Error("lapse update failed",
				zap.String("academy_id", sub.AcademyID),
				zap.Error(err),
			)
			continue
		}
		count++
		s.log.Info("subscription lapsed to free", zap.String("academy_id", sub.AcademyID))
	}
	return count, nil
}

func (s *Service) ListInvoices(ctx context.Context, academyID string) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, s.db, academyID, 100)
}

func (s *Service) newInvoice(sub *domain.Subscription, amount int64, now, periodStart, periodEnd time.Time) *domain.Invoice {
	return &domain.Invoice{
		ID:             s.genID.Generate(),
		AcademyID:      sub.AcademyID,
		SubscriptionID: sub.ID,
		Amount:         amount,
		Currency:       "KRW",
		Status:         domain.InvoicePending,
		PlanTier:       sub.PlanTier,
		BillingCycle:   sub.BillingCycle,
		DueDate:        now,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// retryBackoff doubles per attempt from the base up to the cap, with
// ±10% jitter so a herd of declined cards does not retry in lockstep.
func (s *Service) retryBackoff(attempts int) time.Duration {
	delay := s.cfg.RetryBackoffBase
	for i := 1; i < attempts && delay < s.cfg.RetryBackoffCap; i++ {
		delay *= 2
	}
	if delay > s.cfg.RetryBackoffCap {
		delay = s.cfg.RetryBackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay/5)+1)) - delay/10
	return delay + jitter
}

func advancePeriod(from time.Time, cycle plan.Cycle) time.Time {
	if cycle == plan.CycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func chargePaymentID(subID snowflake.ID) string {
	return fmt.Sprintf("subscription_%s_%s", subID, uuid.NewString())
}
