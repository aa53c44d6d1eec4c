package snapshot

import (
	"context"
	"time"

	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/hakwonlab/wonpay/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker rolls monthly usage counters over. Snapshots whose counters
// were last calculated in a previous month have their per-month fields
// zeroed so limit checks start fresh each billing month.
type Worker struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	cfg   Config
}

func NewWorker(db *gorm.DB, log *zap.Logger, clk clock.Clock, repo domain.Repository, cfg Config) *Worker {
	return &Worker{
		db:    db,
		log:   log.Named("usage.snapshot"),
		clock: clk,
		repo:  repo,
		cfg:   cfg.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("usage snapshot pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, w.cfg.RunTimeout)
	defer cancel()

	now := w.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stale, err := w.repo.FindStale(ctx, w.db, monthStart, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range stale {
		snap := stale[i]
		snap.APICallsMonth = 0
		snap.SMSSentMonth = 0
		snap.EmailsSentMonth = 0
		snap.CalculatedAt = now

		rowCtx, rowCancel := context.WithTimeout(ctx, w.cfg.RowTimeout)
		err := w.repo.Upsert(rowCtx, w.db, &snap)
		rowCancel()
		if err != nil {
			w.log.Warn("monthly counter reset failed",
				zap.String("academy_id", snap.AcademyID),
				zap.Error(err),
			)
			continue
		}
	}

	if len(stale) > 0 {
		w.log.Info("monthly usage counters reset", zap.Int("academies", len(stale)))
	}
	return nil
}
