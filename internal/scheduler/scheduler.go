package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/config"
	"github.com/mamadbah2/piecework/internal/service/reporting"
)

const auditTimeout = 10 * time.Minute

// Auditor runs one ledger audit.
type Auditor interface {
	RunAudit(ctx context.Context) (*reporting.AuditReport, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	auditor Auditor
	cfg     config.ReportingConfig
	logger  *zap.Logger
}

// NewScheduler creates a scheduler running cron expressions in cfg.Timezone.
func NewScheduler(cfg config.ReportingConfig, auditor Auditor, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	// Standard 5-field cron; overlapping runs are skipped.
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:    c,
		auditor: auditor,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Start registers the audit job and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.runAudit); err != nil {
		return fmt.Errorf("schedule ledger audit %q: %w", s.cfg.CronSchedule, err)
	}

	s.logger.Info("starting scheduler", zap.String("audit_schedule", s.cfg.CronSchedule), zap.Bool("auto_repair", s.cfg.AutoRepair))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running audit to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runAudit() {
	s.logger.Info("running ledger audit")
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	if _, err := s.auditor.RunAudit(ctx); err != nil {
		s.logger.Error("ledger audit failed", zap.Error(err))
	}
}
