package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			plan_tier = ?,
			status = ?,
			billing_cycle = ?,
			billing_key = ?,
			current_period_start = ?,
			current_period_end = ?,
			next_payment_at = ?,
			auto_renew = ?,
			failed_attempts = ?,
			next_retry_at = ?,
			suspended_reason = ?,
			updated_at = ?
		WHERE id = ?`,
		sub.PlanTier,
		sub.Status,
		sub.BillingCycle,
		sub.BillingKey,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextPaymentAt,
		sub.AutoRenew,
		sub.FailedAttempts,
		sub.NextRetryAt,
		sub.SuspendedReason,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByAcademyID(ctx context.Context, db *gorm.DB, academyID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE academy_id = ? LIMIT 1`,
		academyID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE auto_renew = ?
		   AND (
			(status = ? AND next_payment_at IS NOT NULL AND next_payment_at <= ?)
			OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
		   )
		 ORDER BY next_payment_at
		 LIMIT ?`,
		true,
		domain.StatusActive, now,
		domain.StatusPastDue, now,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) FindLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE status = ?
		   AND auto_renew = ?
		   AND current_period_end <= ?
		 ORDER BY current_period_end
		 LIMIT ?`,
		domain.StatusActive,
		false,
		now,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListInvoices(ctx context.Context, db *gorm.DB, academyID string, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE academy_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		academyID,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) MarkInvoicePaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, paidAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, payment_id = ?, paid_at = ?, failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoicePaid,
		paymentID,
		paidAt,
		paidAt,
		id,
		domain.InvoicePaid,
	).Error
}

func (r *repo) MarkInvoiceFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, failedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, failure_reason = ?, failed_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoiceFailed,
		reason,
		failedAt,
		failedAt,
		id,
		domain.InvoicePaid,
	).Error
}

func (r *repo) MarkInvoicePaidByPaymentID(ctx context.Context, db *gorm.DB, paymentID string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE payment_id = ? AND status <> ?`,
		domain.InvoicePaid,
		paidAt,
		paidAt,
		paymentID,
		domain.InvoicePaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
