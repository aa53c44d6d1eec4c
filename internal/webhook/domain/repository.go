package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent records a delivery if its webhook id is new. The bool
	// reports whether this call won the insert.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindByWebhookID(ctx context.Context, db *gorm.DB, webhookID string) (*EventRecord, error)
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, appliedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, limit int) ([]EventRecord, error)
}
