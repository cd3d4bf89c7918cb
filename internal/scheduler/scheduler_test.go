package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/piecework/internal/config"
	"github.com/mamadbah2/piecework/internal/service/reporting"
)

type countingAuditor struct{ runs atomic.Int32 }

func (a *countingAuditor) RunAudit(context.Context) (*reporting.AuditReport, error) {
	a.runs.Add(1)
	return &reporting.AuditReport{}, nil
}

func TestNewSchedulerRejectsBadTimezone(t *testing.T) {
	_, err := NewScheduler(config.ReportingConfig{CronSchedule: "0 2 * * *", Timezone: "Nowhere/Land"}, &countingAuditor{}, nil)
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, err := NewScheduler(config.ReportingConfig{CronSchedule: "every night", Timezone: "UTC"}, &countingAuditor{}, nil)
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestStartRegistersAudit(t *testing.T) {
	auditor := &countingAuditor{}
	s, err := NewScheduler(config.ReportingConfig{CronSchedule: "0 2 * * *", Timezone: "UTC"}, auditor, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	entries := s.cron.Entries()
	require.Len(t, entries, 1)

	entries[0].Job.Run()
	assert.Equal(t, int32(1), auditor.runs.Load())
}
