package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/config"
	"github.com/hakwonlab/wonpay/internal/observability/metrics"
	"github.com/hakwonlab/wonpay/internal/portone"
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	"github.com/hakwonlab/wonpay/internal/ratelimit"
	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
	"github.com/hakwonlab/wonpay/internal/sync/domain"
	webhookdomain "github.com/hakwonlab/wonpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKey = "wonpay:sync:reconcile"
	lockTTL = 2 * time.Minute
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Clock       clock.Clock
	Client      *portone.Client
	Settlements settlementdomain.Repository
	Locker      *ratelimit.Locker
	Alerts      alert.Provider
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	client      *portone.Client
	settlements settlementdomain.Repository
	locker      *ratelimit.Locker
	alerts      alert.Provider
	metrics     *metrics.Metrics

	defaultWindow time.Duration
	defaultLimit  int
}

func NewService(p Params) domain.Service {
	window := p.Cfg.SyncWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	limit := p.Cfg.SyncPageLimit
	if limit <= 0 {
		limit = 100
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("sync"),
		genID:         p.GenID,
		clock:         p.Clock,
		client:        p.Client,
		settlements:   p.Settlements,
		locker:        p.Locker,
		alerts:        p.Alerts,
		metrics:       p.Metrics,
		defaultWindow: window,
		defaultLimit:  limit,
	}
}

func (s *Service) withDefaults(opts domain.Options) domain.Options {
	if opts.Since.IsZero() {
		opts.Since = s.clock.Now().Add(-s.defaultWindow)
	}
	if opts.Limit <= 0 {
		opts.Limit = s.defaultLimit
	}
	return opts
}

// SyncAll reconciles settlements then payouts. The two kinds are
// independent; a page-level failure on one does not stop the other.
// The redis lock only suppresses redundant API traffic when another
// run is already in flight; it is not needed for correctness.
func (s *Service) SyncAll(ctx context.Context, opts domain.Options) (domain.Report, error) {
	start := s.clock.Now()
	report := domain.Report{}

	token, acquired, lockErr := s.locker.TryLock(ctx, lockKey, lockTTL)
	if lockErr != nil {
		s.log.Warn("sync lock unavailable, proceeding without it", zap.Error(lockErr))
	} else if !acquired {
		s.log.Info("sync already in progress, skipping run")
		report.Skipped = true
		report.Duration = time.Since(start)
		return report, nil
	} else {
		defer func() {
			_ = s.locker.Release(ctx, lockKey, token)
		}()
	}

	s.metrics.IncSyncRun()
	opts = s.withDefaults(opts)

	var runErr error

	settlements, err := s.SyncSettlements(ctx, opts)
	report.Settlements = settlements
	if err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("settlements: %w", err))
	}

	payouts, err := s.SyncPayouts(ctx, opts)
	report.Payouts = payouts
	if err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("payouts: %w", err))
	}

	report.Duration = time.Since(start)
	s.log.Info("reconciliation finished",
		zap.Int("settlements_synced", report.Settlements.Synced),
		zap.Int("settlements_errors", report.Settlements.Errors),
		zap.Int("payouts_synced", report.Payouts.Synced),
		zap.Int("payouts_errors", report.Payouts.Errors),
		zap.Duration("duration", report.Duration),
	)
	return report, runErr
}

func (s *Service) SyncSettlements(ctx context.Context, opts domain.Options) (domain.Counts, error) {
	opts = s.withDefaults(opts)
	counts := domain.Counts{}
	now := s.clock.Now()

	for page := 0; ; page++ {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}

		resp, err := s.client.GetSettlements(ctx, portone.PageRequest{
			Page:  page,
			Size:  opts.Limit,
			From:  opts.Since,
			Until: now,
		})
		if err != nil {
			return counts, err
		}

		for _, item := range resp.Items {
			if err := s.applySettlementItem(ctx, item, now); err != nil {
				counts.Errors++
				s.metrics.IncSyncItem(webhookdomain.ResourceSettlement, metrics.ResultError)
				s.log.Warn("settlement item skipped",
					zap.String("settlement_id", item.ID),
					zap.Error(err),
				)
				continue
			}
			counts.Synced++
			s.metrics.IncSyncItem(webhookdomain.ResourceSettlement, metrics.ResultSynced)
		}

		if len(resp.Items) == 0 || (page+1)*opts.Limit >= resp.Page.TotalCount {
			break
		}
	}
	return counts, nil
}

func (s *Service) SyncPayouts(ctx context.Context, opts domain.Options) (domain.Counts, error) {
	opts = s.withDefaults(opts)
	counts := domain.Counts{}
	now := s.clock.Now()

	for page := 0; ; page++ {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}

		resp, err := s.client.GetPayouts(ctx, portone.PageRequest{
			Page:  page,
			Size:  opts.Limit,
			From:  opts.Since,
			Until: now,
		})
		if err != nil {
			return counts, err
		}

		for _, item := range resp.Items {
			if err := s.applyPayoutItem(ctx, item, now); err != nil {
				counts.Errors++
				s.metrics.IncSyncItem(webhookdomain.ResourcePayout, metrics.ResultError)
				s.log.Warn("payout item skipped",
					zap.String("payout_id", item.ID),
					zap.Error(err),
				)
				continue
			}
			counts.Synced++
			s.metrics.IncSyncItem(webhookdomain.ResourcePayout, metrics.ResultSynced)
		}

		if len(resp.Items) == 0 || (page+1)*opts.Limit >= resp.Page.TotalCount {
			break
		}
	}
	return counts, nil
}

func (s *Service) applySettlementItem(ctx context.Context, item portone.SettlementItem, now time.Time) error {
	if item.ID == "" {
		return errors.New("missing settlement id")
	}
	status := settlementdomain.SettlementStatus(item.Status)
	if !status.Valid() {
		return fmt.Errorf("unknown settlement status %q", item.Status)
	}

	currency := item.Currency
	if currency == "" {
		currency = "KRW"
	}
	settlement := &settlementdomain.Settlement{
		ID:               s.genID.Generate(),
		SettlementID:     item.ID,
		PartnerID:        item.PartnerID,
		Status:           status,
		OrderAmount:      item.OrderAmount,
		SettlementAmount: item.SettlementAmount,
		Currency:         currency,
		SettlementDate:   parseTimestamp(item.SettlementDate),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if item.PaymentID != "" {
		paymentID := item.PaymentID
		settlement.PaymentID = &paymentID
	}
	return s.settlements.UpsertSettlement(ctx, s.db, settlement)
}

func (s *Service) applyPayoutItem(ctx context.Context, item portone.PayoutItem, now time.Time) error {
	if item.ID == "" {
		return errors.New("missing payout id")
	}
	status := settlementdomain.PayoutStatus(item.Status)
	if !status.Valid() {
		return fmt.Errorf("unknown payout status %q", item.Status)
	}

	currency := item.Currency
	if currency == "" {
		currency = "KRW"
	}
	payout := &settlementdomain.Payout{
		ID:          s.genID.Generate(),
		PayoutID:    item.ID,
		PartnerID:   item.PartnerID,
		Status:      status,
		Amount:      item.Amount,
		Currency:    currency,
		ScheduledAt: parseTimestamp(item.ScheduledAt),
		PayoutAt:    parseTimestamp(item.PayoutAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if item.FailureReason != "" {
		reason := item.FailureReason
		payout.FailureReason = &reason
	}

	if err := s.settlements.UpsertPayout(ctx, s.db, payout); err != nil {
		return err
	}

	if status == settlementdomain.PayoutFailed {
		_ = s.alerts.PayoutFailed(ctx, payout.PayoutID, payout.PartnerID, payout.Amount, currency, item.FailureReason)
	}
	return nil
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
