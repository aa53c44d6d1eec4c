package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Snapshot is the per-academy usage counters that limit enforcement
// reads. Absolute counts come from the academy application; the *Month
// counters reset at each month boundary.
type Snapshot struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id,string"`
	AcademyID       string       `gorm:"uniqueIndex;not null" json:"academyId"`
	StudentCount    int64        `json:"studentCount"`
	TeacherCount    int64        `json:"teacherCount"`
	ClassroomCount  int64        `json:"classroomCount"`
	StorageGb       float64      `json:"storageGb"`
	APICallsMonth   int64        `json:"apiCallsMonth"`
	SMSSentMonth    int64        `json:"smsSentMonth"`
	EmailsSentMonth int64        `json:"emailsSentMonth"`
	CalculatedAt    time.Time    `gorm:"not null" json:"calculatedAt"`
}

func (Snapshot) TableName() string { return "usage_snapshots" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	FindByAcademyID(ctx context.Context, db *gorm.DB, academyID string) (*Snapshot, error)

	// FindStale returns snapshots last calculated before the cutoff.
	FindStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Snapshot, error)
}
