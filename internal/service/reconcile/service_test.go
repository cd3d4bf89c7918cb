package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository/memory"
	"github.com/mamadbah2/piecework/internal/service/ledger"
	"github.com/mamadbah2/piecework/internal/service/reconcile"
	"github.com/mamadbah2/piecework/internal/service/worklog"
	"github.com/mamadbah2/piecework/internal/validation"
)

type fixture struct {
	store     *memory.Store
	ledgers   *ledger.Service
	completes *worklog.Service
	engine    *reconcile.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	locker := lock.NewLocalLocker(time.Second)
	return &fixture{
		store:     store,
		ledgers:   ledger.NewService(store, locker, nil),
		completes: worklog.NewService(store, store, store, locker, nil),
		engine:    reconcile.NewService(store, store, store, locker, nil),
	}
}

func (f *fixture) createJob(t *testing.T, jobID string, units float64, ops ...validation.OperationSpecInput) {
	t.Helper()
	_, err := f.ledgers.CreateOrExtend(context.Background(), ledger.CreateOrExtendRequest{JobID: jobID, TotalUnits: validation.NumberOf(units), Operations: ops})
	require.NoError(t, err)
}

func (f *fixture) complete(t *testing.T, contractor, jobID, op string, qty float64) {
	t.Helper()
	_, err := f.completes.RecordCompletions(context.Background(), worklog.RecordRequest{
		ContractorID: contractor,
		JobID:        jobID,
		Entries:      []validation.CompletionEntryInput{{OperationID: validation.IDOf(op), Quantity: validation.NumberOf(qty)}},
	})
	require.NoError(t, err)
}

func op(id string, qty, value float64) validation.OperationSpecInput {
	return validation.OperationSpecInput{OperationID: validation.IDOf(id), QuantityPerUnit: validation.NumberOf(qty), ValuePerUnit: validation.NumberOf(value)}
}

func TestSummarySurfacesOverCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedOperation("op1", "Folding")
	f.store.SeedContractor("C1", "Asha")

	f.createJob(t, "J100", 100, op("op1", 2, 5))
	f.complete(t, "C1", "J100", "op1", 150)
	f.complete(t, "C2", "J100", "op1", 80)

	summary, err := f.engine.ComputeJobSummary(ctx, "J100")
	require.NoError(t, err)

	assert.Equal(t, []models.ContractorRef{{ID: "C1", Name: "Asha"}, {ID: "C2", Name: "C2"}}, summary.Contractors)
	require.Len(t, summary.Operations, 1)

	got := summary.Operations[0]
	assert.Equal(t, "Folding", got.Name)
	assert.Equal(t, 200.0, got.TotalQuantity)
	assert.Equal(t, 230.0, got.TotalCompleted)
	assert.Equal(t, 0.0, got.Pending)
	assert.Equal(t, map[string]float64{"C1": 150, "C2": 80}, got.CompletedByContractor)

	stored, err := f.store.FindLedger(ctx, "J100")
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.Operations[0].PendingQuantity)
}

func TestSummaryAgreesWithLedgerWithoutOverReporting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createJob(t, "J5", 10, op("a", 3, 1), op("b", 1, 1))
	f.complete(t, "C1", "J5", "a", 4)
	f.complete(t, "C2", "J5", "a", 7.5)
	f.complete(t, "C1", "J5", "b", 2)

	summary, err := f.engine.ComputeJobSummary(ctx, "J5")
	require.NoError(t, err)
	stored, err := f.store.FindLedger(ctx, "J5")
	require.NoError(t, err)

	for _, s := range summary.Operations {
		q, ok := stored.Operation(s.OperationID)
		require.True(t, ok)
		assert.InDelta(t, q.TotalQuantity-s.TotalCompleted, q.PendingQuantity, 1e-9)
		assert.Equal(t, models.UnknownOperationName, s.Name)
	}

	drift, err := f.engine.DetectDrift(ctx, "J5")
	require.NoError(t, err)
	assert.Empty(t, drift.Drifted)
}

func TestSummaryForUnknownJobIsEmpty(t *testing.T) {
	f := newFixture(t)

	summary, err := f.engine.ComputeJobSummary(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Equal(t, "NOPE", summary.JobID)
	assert.Empty(t, summary.Contractors)
	assert.Empty(t, summary.Operations)
}

func TestSummaryIgnoresEventsForUnassignedOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createJob(t, "J1", 10, op("a", 1, 1))

	_, err := f.store.AppendEvents(ctx, "C9", "J1", "", []models.CompletionEvent{
		{OperationID: "ghost", QuantityCompleted: 5, CompletedAt: time.Now()},
		{OperationID: "a", QuantityCompleted: 2, CompletedAt: time.Now()},
	})
	require.NoError(t, err)

	summary, err := f.engine.ComputeJobSummary(ctx, "J1")
	require.NoError(t, err)
	require.Len(t, summary.Operations, 1)
	assert.Equal(t, 2.0, summary.Operations[0].TotalCompleted)
	assert.Len(t, summary.Contractors, 1)
}

type failingCatalog struct{}

func (failingCatalog) OperationNames(context.Context, []string) (map[string]string, error) {
	return nil, &models.DependencyError{Dependency: "operation catalog", Err: errors.New("connection refused")}
}

func (failingCatalog) ContractorNames(context.Context, []string) (map[string]string, error) {
	return nil, &models.DependencyError{Dependency: "contractor directory", Err: errors.New("connection refused")}
}

func TestSummaryDegradesWhenCatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createJob(t, "J2", 5, op("a", 1, 2))
	f.complete(t, "C1", "J2", "a", 1)

	engine := reconcile.NewService(f.store, f.store, failingCatalog{}, lock.NewLocalLocker(time.Second), nil)

	summary, err := engine.ComputeJobSummary(ctx, "J2")
	require.NoError(t, err)
	assert.Equal(t, models.UnknownOperationName, summary.Operations[0].Name)
	assert.Equal(t, "C1", summary.Contractors[0].Name)

	pending, err := engine.ListPendingOperations(ctx, "J2")
	require.NoError(t, err)
	require.Len(t, pending.Operations, 1)
	assert.Equal(t, models.UnknownOperationName, pending.Operations[0].Name)
}

func TestListPendingOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SeedOperation("a", "Binding")

	f.createJob(t, "J3", 10, op("a", 2, 5), op("b", 1, 4), op("z", 0, 7))
	f.complete(t, "C1", "J3", "b", 10)

	pending, err := f.engine.ListPendingOperations(ctx, "J3")
	require.NoError(t, err)
	assert.Equal(t, "J3", pending.JobID)
	require.Len(t, pending.Operations, 1)

	got := pending.Operations[0]
	assert.Equal(t, "a", got.OperationID)
	assert.Equal(t, "Binding", got.Name)
	assert.Equal(t, 20.0, got.PendingQuantity)
	assert.Equal(t, 2.5, got.UnitRate)

	_, err = f.engine.ListPendingOperations(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUnitRateZeroWhenQuantityPerUnitZero(t *testing.T) {
	l := &models.JobLedger{JobID: "J", Operations: []models.OperationQuota{{OperationID: "z", PendingQuantity: 1, ValuePerUnit: decimal.NewFromInt(7)}}}
	pending := reconcile.Pending(l, nil)
	require.Len(t, pending.Operations, 1)
	assert.Equal(t, 0.0, pending.Operations[0].UnitRate)
}

func TestRepairDriftRewritesPendingFromEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createJob(t, "J4", 10, op("a", 1, 1))

	// An appended event whose ledger decrement never happened.
	_, err := f.store.AppendEvents(ctx, "C1", "J4", "", []models.CompletionEvent{{OperationID: "a", QuantityCompleted: 4, CompletedAt: time.Now()}})
	require.NoError(t, err)

	report, err := f.engine.DetectDrift(ctx, "J4")
	require.NoError(t, err)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, 10.0, report.Drifted[0].StoredPending)
	assert.Equal(t, 6.0, report.Drifted[0].RecomputedPending)
	assert.False(t, report.Repaired)

	report, err = f.engine.RepairDrift(ctx, "J4")
	require.NoError(t, err)
	assert.True(t, report.Repaired)

	stored, err := f.store.FindLedger(ctx, "J4")
	require.NoError(t, err)
	assert.Equal(t, 6.0, stored.Operations[0].PendingQuantity)

	report, err = f.engine.DetectDrift(ctx, "J4")
	require.NoError(t, err)
	assert.Empty(t, report.Drifted)
}
