package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMissingAcademyID = errors.New("academy id is required")

// Report is the usage counters pushed by the academy application.
type Report struct {
	AcademyID       string  `json:"academyId" binding:"required"`
	StudentCount    int64   `json:"studentCount"`
	TeacherCount    int64   `json:"teacherCount"`
	ClassroomCount  int64   `json:"classroomCount"`
	StorageGb       float64 `json:"storageGb"`
	APICallsMonth   int64   `json:"apiCallsMonth"`
	SMSSentMonth    int64   `json:"smsSentMonth"`
	EmailsSentMonth int64   `json:"emailsSentMonth"`
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Ingest stores the latest usage counters for an academy.
func (s *Service) Ingest(ctx context.Context, report Report) (*domain.Snapshot, error) {
	if report.AcademyID == "" {
		return nil, ErrMissingAcademyID
	}

	snapshot := &domain.Snapshot{
		ID:              s.genID.Generate(),
		AcademyID:       report.AcademyID,
		StudentCount:    report.StudentCount,
		TeacherCount:    report.TeacherCount,
		ClassroomCount:  report.ClassroomCount,
		StorageGb:       report.StorageGb,
		APICallsMonth:   report.APICallsMonth,
		SMSSentMonth:    report.SMSSentMonth,
		EmailsSentMonth: report.EmailsSentMonth,
		CalculatedAt:    s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) Get(ctx context.Context, academyID string) (*domain.Snapshot, error) {
	return s.repo.FindByAcademyID(ctx, s.db, academyID)
}
