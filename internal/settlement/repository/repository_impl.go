package repository

import (
	"context"

	"github.com/hakwonlab/wonpay/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertSettlement(ctx context.Context, db *gorm.DB, settlement *domain.Settlement) error {
	settlement.StatusRank = settlement.Status.Rank()
	return db.WithContext(ctx).Exec(
		`INSERT INTO settlements (
			id, settlement_id, partner_id, payment_id, status, status_rank,
			order_amount, settlement_amount, currency, settlement_date,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (settlement_id) DO UPDATE SET
			partner_id = excluded.partner_id,
			payment_id = COALESCE(excluded.payment_id, settlements.payment_id),
			status = excluded.status,
			status_rank = excluded.status_rank,
			order_amount = excluded.order_amount,
			settlement_amount = excluded.settlement_amount,
			currency = excluded.currency,
			settlement_date = COALESCE(excluded.settlement_date, settlements.settlement_date),
			updated_at = excluded.updated_at
		WHERE excluded.status_rank >= settlements.status_rank`,
		settlement.ID,
		settlement.SettlementID,
		settlement.PartnerID,
		settlement.PaymentID,
		settlement.Status,
		settlement.StatusRank,
		settlement.OrderAmount,
		settlement.SettlementAmount,
		settlement.Currency,
		settlement.SettlementDate,
		settlement.CreatedAt,
		settlement.UpdatedAt,
	).Error
}

func (r *repo) UpsertPayout(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	payout.StatusRank = payout.Status.Rank()
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, payout_id, partner_id, status, status_rank, amount, currency,
			scheduled_at, payout_at, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payout_id) DO UPDATE SET
			partner_id = excluded.partner_id,
			status = excluded.status,
			status_rank = excluded.status_rank,
			amount = excluded.amount,
			currency = excluded.currency,
			scheduled_at = COALESCE(excluded.scheduled_at, payouts.scheduled_at),
			payout_at = COALESCE(excluded.payout_at, payouts.payout_at),
			failure_reason = COALESCE(excluded.failure_reason, payouts.failure_reason),
			updated_at = excluded.updated_at
		WHERE excluded.status_rank >= payouts.status_rank`,
		payout.ID,
		payout.PayoutID,
		payout.PartnerID,
		payout.Status,
		payout.StatusRank,
		payout.Amount,
		payout.Currency,
		payout.ScheduledAt,
		payout.PayoutAt,
		payout.FailureReason,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindSettlement(ctx context.Context, db *gorm.DB, settlementID string) (*domain.Settlement, error) {
	var item domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM settlements WHERE settlement_id = ? LIMIT 1`,
		settlementID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPayout(ctx context.Context, db *gorm.DB, payoutID string) (*domain.Payout, error) {
	var item domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts WHERE payout_id = ? LIMIT 1`,
		payoutID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListSettlements(ctx context.Context, db *gorm.DB, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM settlements ORDER BY updated_at DESC LIMIT ?`,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListPayouts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts ORDER BY updated_at DESC LIMIT ?`,
		limit,
	).Scan(&items).Error
	return items, err
}
