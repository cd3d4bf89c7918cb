// Package reporting runs the ledger drift audit over every job and publishes its outcome.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

const dateLayout = "2006-01-02 15:04"

// JobLister enumerates the jobs to audit.
type JobLister interface {
	ListJobNumbers(ctx context.Context) ([]string, error)
}

// Reconciler checks and repairs one job.
type Reconciler interface {
	ComputeJobSummary(ctx context.Context, jobID string) (*models.JobSummary, error)
	DetectDrift(ctx context.Context, jobID string) (*models.DriftReport, error)
	RepairDrift(ctx context.Context, jobID string) (*models.DriftReport, error)
}

// SummaryExporter receives the summaries produced by an audit run.
type SummaryExporter interface {
	ExportSummaries(ctx context.Context, runAt time.Time, summaries []models.JobSummary) error
}

// Notifier delivers the audit digest.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// AuditReport is the outcome of one audit run.
type AuditReport struct {
	RunAt       time.Time
	JobsChecked int
	Drifted     []models.DriftReport
	Failed      map[string]string
}

// Repaired counts the drifted jobs that were rewritten.
func (r *AuditReport) Repaired() int {
	n := 0
	for _, d := range r.Drifted {
		if d.Repaired {
			n++
		}
	}
	return n
}

// Digest renders the report as a short plain-text message.
func (r *AuditReport) Digest() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ledger audit %s: %d jobs checked", r.RunAt.Format(dateLayout), r.JobsChecked)

	if len(r.Drifted) == 0 {
		b.WriteString(", no drift.")
	} else {
		fmt.Fprintf(&b, ", %d drifted (%d repaired).", len(r.Drifted), r.Repaired())
		for _, d := range r.Drifted {
			fmt.Fprintf(&b, "\n- %s:", d.JobID)
			for _, e := range d.Drifted {
				fmt.Fprintf(&b, " %s stored %.2f expected %.2f;", e.OperationID, e.StoredPending, e.RecomputedPending)
			}
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, "\n%d jobs could not be checked.", len(r.Failed))
	}
	return b.String()
}

// Service audits every ledger against its event log.
type Service struct {
	jobs       JobLister
	reconciler Reconciler
	exporter   SummaryExporter
	notifier   Notifier
	autoRepair bool
	now        func() time.Time
	logger     *zap.Logger
}

// NewService wires a new audit service. exporter and notifier may be nil.
func NewService(jobs JobLister, reconciler Reconciler, exporter SummaryExporter, notifier Notifier, autoRepair bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		jobs:       jobs,
		reconciler: reconciler,
		exporter:   exporter,
		notifier:   notifier,
		autoRepair: autoRepair,
		now:        time.Now,
		logger:     logger,
	}
}

// RunAudit checks every job, repairs drift when enabled, exports summaries
// and sends the digest. A failing job is recorded and the run continues.
func (s *Service) RunAudit(ctx context.Context) (*AuditReport, error) {
	ids, err := s.jobs.ListJobNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	report := &AuditReport{RunAt: s.now(), Failed: map[string]string{}}
	var summaries []models.JobSummary

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		drift, err := s.check(ctx, id)
		if err != nil {
			s.logger.Warn("job audit failed", zap.String("job_id", id), zap.Error(err))
			report.Failed[id] = err.Error()
			continue
		}
		report.JobsChecked++
		if len(drift.Drifted) > 0 {
			report.Drifted = append(report.Drifted, *drift)
		}

		if s.exporter != nil {
			summary, err := s.reconciler.ComputeJobSummary(ctx, id)
			if err != nil {
				s.logger.Warn("job summary failed", zap.String("job_id", id), zap.Error(err))
				continue
			}
			summaries = append(summaries, *summary)
		}
	}

	s.logger.Info("ledger audit finished",
		zap.Int("jobs", report.JobsChecked),
		zap.Int("drifted", len(report.Drifted)),
		zap.Int("repaired", report.Repaired()),
		zap.Int("failed", len(report.Failed)))

	if s.exporter != nil && len(summaries) > 0 {
		if err := s.exporter.ExportSummaries(ctx, report.RunAt, summaries); err != nil {
			s.logger.Error("summary export failed", zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report.Digest()); err != nil {
			s.logger.Error("audit digest not sent", zap.Error(err))
		}
	}

	return report, nil
}

func (s *Service) check(ctx context.Context, jobID string) (*models.DriftReport, error) {
	drift, err := s.reconciler.DetectDrift(ctx, jobID)
	if err != nil || len(drift.Drifted) == 0 || !s.autoRepair {
		return drift, err
	}
	return s.reconciler.RepairDrift(ctx, jobID)
}
