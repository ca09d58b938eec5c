package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"simplicity-itsm/config"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

// Sweeper deletes audit entries older than the retention window on a cron
// schedule.
type Sweeper struct {
	store     store.AuditStore
	retention time.Duration
	schedule  string
	logger    *utils.Logger
	cron      *cron.Cron
}

func NewSweeper(st store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *Sweeper {
	days := cfg.Audit.RetentionDays
	if days <= 0 {
		days = 730
	}
	return &Sweeper{
		store:     st,
		retention: time.Duration(days) * 24 * time.Hour,
		schedule:  cfg.Audit.SweepSchedule,
		logger:    logger,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.SweepOnce(ctx); err != nil && s.logger != nil {
			s.logger.Errorf("audit sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.Printf("audit retention sweeper started schedule=%q retention=%s", s.schedule, s.retention)
	}
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// SweepOnce deletes everything older than the retention window.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := utils.NowUTC().Add(-s.retention)
	deleted, err := s.store.DeleteAuditBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 && s.logger != nil {
		s.logger.Printf("audit sweep deleted=%d cutoff=%s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}
