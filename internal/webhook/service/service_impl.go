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
	"github.com/hakwonlab/wonpay/internal/providers/alert"
	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	"github.com/hakwonlab/wonpay/internal/webhook/domain"
	"github.com/hakwonlab/wonpay/internal/webhook/verify"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Cfg           config.Config
	Clock         clock.Clock
	Repo          domain.Repository
	Settlements   settlementdomain.Repository
	Subscriptions subscriptiondomain.Repository
	Alerts        alert.Provider
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	verifier      *verify.Verifier
	repo          domain.Repository
	settlements   settlementdomain.Repository
	subscriptions subscriptiondomain.Repository
	alerts        alert.Provider
	metrics       *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("webhook"),
		genID:         p.GenID,
		clock:         p.Clock,
		verifier:      verify.New(p.Cfg.WebhookSecret, p.Clock),
		repo:          p.Repo,
		settlements:   p.Settlements,
		subscriptions: p.Subscriptions,
		alerts:        p.Alerts,
		metrics:       p.Metrics,
	}
}

func (s *Service) IngestSettlement(ctx context.Context, payload []byte, hdr verify.Headers) error {
	start := s.clock.Now()
	defer func() {
		s.metrics.ObserveWebhookDuration(domain.ResourceSettlement, time.Since(start).Seconds())
	}()

	if err := s.verifier.Verify(payload, hdr); err != nil {
		s.metrics.IncWebhook(domain.ResourceSettlement, metrics.ResultRejected)
		s.log.Warn("settlement webhook rejected",
			zap.String("webhook_id", hdr.ID),
			zap.Error(err),
		)
		_ = s.alerts.WebhookVerificationFailed(ctx, domain.ResourceSettlement, err)
		return err
	}

	event, err := domain.ParseSettlementEvent(payload)
	if err != nil {
		s.metrics.IncWebhook(domain.ResourceSettlement, metrics.ResultInvalid)
		return err
	}

	record := &domain.EventRecord{
		ID:         s.genID.Generate(),
		WebhookID:  hdr.ID,
		Resource:   domain.ResourceSettlement,
		EventType:  event.Type,
		EntityID:   event.Data.SettlementID,
		PartnerID:  event.Data.PartnerID,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: s.clock.Now(),
	}

	record, duplicate, err := s.claimDelivery(ctx, record)
	if err != nil {
		return err
	}
	if duplicate {
		s.metrics.IncWebhook(domain.ResourceSettlement, metrics.ResultDuplicate)
		s.log.Info("duplicate settlement delivery ignored",
			zap.String("webhook_id", hdr.ID),
			zap.String("settlement_id", event.Data.SettlementID),
		)
		return nil
	}

	if err := s.applySettlement(ctx, record, event); err != nil {
		return err
	}

	s.metrics.IncWebhook(domain.ResourceSettlement, metrics.ResultApplied)
	s.log.Info("settlement webhook applied",
		zap.String("webhook_id", hdr.ID),
		zap.String("settlement_id", event.Data.SettlementID),
		zap.String("status", string(event.Status())),
	)
	return nil
}

func (s *Service) IngestPayout(ctx context.Context, payload []byte, hdr verify.Headers) error {
	start := s.clock.Now()
	defer func() {
		s.metrics.ObserveWebhookDuration(domain.ResourcePayout, time.Since(start).Seconds())
	}()

	if err := s.verifier.Verify(payload, hdr); err != nil {
		s.metrics.IncWebhook(domain.ResourcePayout, metrics.ResultRejected)
		s.log.Warn("payout webhook rejected",
			zap.String("webhook_id", hdr.ID),
			zap.Error(err),
		)
		_ = s.alerts.WebhookVerificationFailed(ctx, domain.ResourcePayout, err)
		return err
	}

	event, err := domain.ParsePayoutEvent(payload)
	if err != nil {
		s.metrics.IncWebhook(domain.ResourcePayout, metrics.ResultInvalid)
		return err
	}

	record := &domain.EventRecord{
		ID:         s.genID.Generate(),
		WebhookID:  hdr.ID,
		Resource:   domain.ResourcePayout,
		EventType:  event.Type,
		EntityID:   event.Data.PayoutID,
		PartnerID:  event.Data.PartnerID,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: s.clock.Now(),
	}

	record, duplicate, err := s.claimDelivery(ctx, record)
	if err != nil {
		return err
	}
	if duplicate {
		s.metrics.IncWebhook(domain.ResourcePayout, metrics.ResultDuplicate)
		s.log.Info("duplicate payout delivery ignored",
			zap.String("webhook_id", hdr.ID),
			zap.String("payout_id", event.Data.PayoutID),
		)
		return nil
	}

	if err := s.applyPayout(ctx, record, event); err != nil {
		return err
	}

	s.metrics.IncWebhook(domain.ResourcePayout, metrics.ResultApplied)
	s.log.Info("payout webhook applied",
		zap.String("webhook_id", hdr.ID),
		zap.String("payout_id", event.Data.PayoutID),
		zap.String("status", string(event.Status())),
	)
	return nil
}

// claimDelivery wins or loses the dedup insert. A lost insert whose row
// is already applied is a duplicate; a lost insert that was never applied
// (a previous attempt failed mid-way) is retried under the stored row.
func (s *Service) claimDelivery(ctx context.Context, record *domain.EventRecord) (*domain.EventRecord, bool, error) {
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, fmt.Errorf("record webhook event: %w", err)
	}
	if inserted {
		return record, false, nil
	}

	stored, err := s.repo.FindByWebhookID(ctx, s.db, record.WebhookID)
	if err != nil {
		return nil, false, fmt.Errorf("load webhook event: %w", err)
	}
	if stored == nil {
		return nil, false, errors.New("webhook event vanished after conflict")
	}
	if stored.AppliedAt != nil {
		return stored, true, nil
	}
	return stored, false, nil
}

func (s *Service) applySettlement(ctx context.Context, record *domain.EventRecord, event *domain.SettlementEvent) error {
	now := s.clock.Now()

	settlement := &settlementdomain.Settlement{
		ID:             s.genID.Generate(),
		SettlementID:   event.Data.SettlementID,
		PartnerID:      event.Data.PartnerID,
		PaymentID:      event.Data.PaymentID,
		Status:         event.Status(),
		Currency:       "KRW",
		SettlementDate: parseDate(event.Data.SettlementDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if event.Data.Amount != nil {
		settlement.OrderAmount = event.Data.Amount.Order
		settlement.SettlementAmount = event.Data.Amount.Settlement
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.settlements.UpsertSettlement(ctx, tx, settlement); err != nil {
			return fmt.Errorf("upsert settlement: %w", err)
		}

		if settlement.Status == settlementdomain.SettlementSettled && event.Data.PaymentID != nil {
			marked, err := s.subscriptions.MarkInvoicePaidByPaymentID(ctx, tx, *event.Data.PaymentID, now)
			if err != nil {
				return fmt.Errorf("mark invoice paid: %w", err)
			}
			if marked {
				s.log.Info("invoice settled by webhook",
					zap.String("payment_id", *event.Data.PaymentID),
				)
			}
		}

		return s.repo.MarkApplied(ctx, tx, record.ID, now)
	})
}

func (s *Service) applyPayout(ctx context.Context, record *domain.EventRecord, event *domain.PayoutEvent) error {
	now := s.clock.Now()

	currency := event.Data.Currency
	if currency == "" {
		currency = "KRW"
	}
	payout := &settlementdomain.Payout{
		ID:            s.genID.Generate(),
		PayoutID:      event.Data.PayoutID,
		PartnerID:     event.Data.PartnerID,
		Status:        event.Status(),
		Amount:        event.Data.Amount,
		Currency:      currency,
		ScheduledAt:   parseDate(event.Data.ScheduledAt),
		PayoutAt:      parseDate(event.Data.PayoutAt),
		FailureReason: event.Data.FailureReason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.settlements.UpsertPayout(ctx, tx, payout); err != nil {
			return fmt.Errorf("upsert payout: %w", err)
		}
		return s.repo.MarkApplied(ctx, tx, record.ID, now)
	})
	if err != nil {
		return err
	}

	if payout.Status == settlementdomain.PayoutFailed {
		reason := ""
		if event.Data.FailureReason != nil {
			reason = *event.Data.FailureReason
		}
		_ = s.alerts.PayoutFailed(ctx, payout.PayoutID, payout.PartnerID, payout.Amount, payout.Currency, reason)
	}
	return nil
}

func parseDate(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
