package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, webhook_id, resource, event_type, entity_id, partner_id,
			payload, received_at, applied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (webhook_id) DO NOTHING`,
		event.ID,
		event.WebhookID,
		event.Resource,
		event.EventType,
		event.EntityID,
		event.PartnerID,
		event.Payload,
		event.ReceivedAt,
		event.AppliedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByWebhookID(ctx context.Context, db *gorm.DB, webhookID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, webhook_id, resource, event_type, entity_id, partner_id,
			payload, received_at, applied_at
		 FROM webhook_events
		 WHERE webhook_id = ?
		 LIMIT 1`,
		webhookID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, appliedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET applied_at = ?
		 WHERE id = ?`,
		appliedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, webhook_id, resource, event_type, entity_id, partner_id,
			payload, received_at, applied_at
		 FROM webhook_events
		 ORDER BY received_at DESC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	return items, err
}
