package reporting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository/memory"
	"github.com/mamadbah2/piecework/internal/service/ledger"
	"github.com/mamadbah2/piecework/internal/service/reconcile"
	"github.com/mamadbah2/piecework/internal/service/reporting"
	"github.com/mamadbah2/piecework/internal/validation"
)

type recordingExporter struct {
	summaries []models.JobSummary
}

func (e *recordingExporter) ExportSummaries(_ context.Context, _ time.Time, summaries []models.JobSummary) error {
	e.summaries = append(e.summaries, summaries...)
	return nil
}

type recordingNotifier struct {
	texts []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

func seed(t *testing.T) (*memory.Store, *ledger.Service, *reconcile.Service) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	locker := lock.NewLocalLocker(time.Second)
	ledgers := ledger.NewService(store, locker, nil)

	for _, id := range []string{"J1", "J2"} {
		_, err := ledgers.CreateOrExtend(ctx, ledger.CreateOrExtendRequest{
			JobID:      id,
			TotalUnits: validation.NumberOf(10),
			Operations: []validation.OperationSpecInput{{OperationID: validation.IDOf("a"), QuantityPerUnit: validation.NumberOf(1), ValuePerUnit: validation.NumberOf(1)}},
		})
		require.NoError(t, err)
	}

	// J2 gets an event whose decrement was lost.
	_, err := store.AppendEvents(ctx, "C1", "J2", "", []models.CompletionEvent{{OperationID: "a", QuantityCompleted: 3, CompletedAt: time.Now()}})
	require.NoError(t, err)

	return store, ledgers, reconcile.NewService(store, store, store, locker, nil)
}

func TestRunAuditReportsDriftWithoutRepair(t *testing.T) {
	store, ledgers, engine := seed(t)
	exporter := &recordingExporter{}
	notifier := &recordingNotifier{}

	svc := reporting.NewService(ledgers, engine, exporter, notifier, false, nil)
	report, err := svc.RunAudit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.JobsChecked)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, "J2", report.Drifted[0].JobID)
	assert.Equal(t, 0, report.Repaired())
	assert.Len(t, exporter.summaries, 2)

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "2 jobs checked, 1 drifted (0 repaired)")
	assert.Contains(t, notifier.texts[0], "J2: a stored 10.00 expected 7.00;")

	stored, err := store.FindLedger(context.Background(), "J2")
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Operations[0].PendingQuantity)
}

func TestRunAuditAutoRepair(t *testing.T) {
	store, ledgers, engine := seed(t)

	svc := reporting.NewService(ledgers, engine, nil, &recordingNotifier{err: errors.New("whatsapp down")}, true, nil)
	report, err := svc.RunAudit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired())

	stored, err := store.FindLedger(context.Background(), "J2")
	require.NoError(t, err)
	assert.Equal(t, 7.0, stored.Operations[0].PendingQuantity)

	report, err = svc.RunAudit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Drifted)
	assert.Contains(t, report.Digest(), "no drift.")
}

type failingReconciler struct{ reporting.Reconciler }

func (failingReconciler) DetectDrift(context.Context, string) (*models.DriftReport, error) {
	return nil, errors.New("mongo timeout")
}

func TestRunAuditContinuesPastFailingJobs(t *testing.T) {
	_, ledgers, _ := seed(t)

	svc := reporting.NewService(ledgers, failingReconciler{}, nil, nil, false, nil)
	report, err := svc.RunAudit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.JobsChecked)
	assert.Len(t, report.Failed, 2)
	assert.Contains(t, report.Digest(), "2 jobs could not be checked.")
}
