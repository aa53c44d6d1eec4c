package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// UpsertSettlement inserts or advances a settlement row. Writes with
	// a status ranked below the stored one leave the row untouched.
	UpsertSettlement(ctx context.Context, db *gorm.DB, settlement *Settlement) error
	UpsertPayout(ctx context.Context, db *gorm.DB, payout *Payout) error

	FindSettlement(ctx context.Context, db *gorm.DB, settlementID string) (*Settlement, error)
	FindPayout(ctx context.Context, db *gorm.DB, payoutID string) (*Payout, error)

	ListSettlements(ctx context.Context, db *gorm.DB, limit int) ([]Settlement, error)
	ListPayouts(ctx context.Context, db *gorm.DB, limit int) ([]Payout, error)
}
