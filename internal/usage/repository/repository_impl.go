package repository

import (
	"context"
	"time"

	"github.com/hakwonlab/wonpay/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, snapshot *domain.Snapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_snapshots (
			id, academy_id, student_count, teacher_count, classroom_count,
			storage_gb, api_calls_month, sms_sent_month, emails_sent_month,
			calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (academy_id) DO UPDATE SET
			student_count = excluded.student_count,
			teacher_count = excluded.teacher_count,
			classroom_count = excluded.classroom_count,
			storage_gb = excluded.storage_gb,
			api_calls_month = excluded.api_calls_month,
			sms_sent_month = excluded.sms_sent_month,
			emails_sent_month = excluded.emails_sent_month,
			calculated_at = excluded.calculated_at`,
		snapshot.ID,
		snapshot.AcademyID,
		snapshot.StudentCount,
		snapshot.TeacherCount,
		snapshot.ClassroomCount,
		snapshot.StorageGb,
		snapshot.APICallsMonth,
		snapshot.SMSSentMonth,
		snapshot.EmailsSentMonth,
		snapshot.CalculatedAt,
	).Error
}

func (r *repo) FindByAcademyID(ctx context.Context, db *gorm.DB, academyID string) (*domain.Snapshot, error) {
	var item domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM usage_snapshots WHERE academy_id = ? LIMIT 1`,
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

func (r *repo) FindStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM usage_snapshots
		 WHERE calculated_at < ?
		 ORDER BY calculated_at
		 LIMIT ?`,
		cutoff,
		limit,
	).Scan(&items).Error
	return items, err
}
