package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByAcademyID(ctx context.Context, db *gorm.DB, academyID string) (*Subscription, error)

	// FindDue returns auto-renewing subscriptions whose next payment or
	// retry is at or before now.
	FindDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)

	// FindLapsed returns active subscriptions past their period end with
	// auto-renew off.
	FindLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)

	InsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, db *gorm.DB, academyID string, limit int) ([]Invoice, error)

	// MarkInvoicePaid and MarkInvoiceFailed never touch invoices that are
	// already paid.
	MarkInvoicePaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string, paidAt time.Time) error
	MarkInvoiceFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, failedAt time.Time) error

	// MarkInvoicePaidByPaymentID settles the pending invoice carrying the
	// given gateway payment id. Reports whether a row was updated.
	MarkInvoicePaidByPaymentID(ctx context.Context, db *gorm.DB, paymentID string, paidAt time.Time) (bool, error)
}
