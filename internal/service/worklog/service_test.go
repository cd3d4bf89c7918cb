package worklog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func setup(t *testing.T) (*worklog.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	locker := lock.NewLocalLocker(time.Second)

	ledgers := ledger.NewService(store, locker, nil)
	_, err := ledgers.CreateOrExtend(context.Background(), ledger.CreateOrExtendRequest{
		JobID:      "J100",
		TotalUnits: validation.NumberOf(100),
		Operations: []validation.OperationSpecInput{
			{OperationID: validation.IDOf("op1"), QuantityPerUnit: validation.NumberOf(2), ValuePerUnit: validation.NumberOf(5)},
			{OperationID: validation.IDOf("op2"), QuantityPerUnit: validation.NumberOf(1), ValuePerUnit: validation.NumberOf(3)},
		},
	})
	require.NoError(t, err)

	return worklog.NewService(store, store, store, locker, nil), store
}

func entry(op string, qty float64) validation.CompletionEntryInput {
	return validation.CompletionEntryInput{OperationID: validation.IDOf(op), Quantity: validation.NumberOf(qty)}
}

func pendingOf(t *testing.T, store *memory.Store, op string) float64 {
	t.Helper()
	l, err := store.FindLedger(context.Background(), "J100")
	require.NoError(t, err)
	q, ok := l.Operation(op)
	require.True(t, ok)
	return q.PendingQuantity
}

func TestRecordCompletionsClampsLedgerButLogsRequestedQuantity(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	res, err := svc.RecordCompletions(ctx, worklog.RecordRequest{ContractorID: "C1", JobID: "J100", Entries: []validation.CompletionEntryInput{entry("op1", 150)}})
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, 50.0, res.Updates[0].NewPendingQuantity)
	assert.NotEmpty(t, res.BatchID)

	res, err = svc.RecordCompletions(ctx, worklog.RecordRequest{ContractorID: "C2", JobID: "J100", Entries: []validation.CompletionEntryInput{entry("op1", 80)}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Updates[0].NewPendingQuantity)
	assert.Equal(t, 80.0, res.Updates[0].RequestedQuantity)
	assert.Equal(t, 0.0, pendingOf(t, store, "op1"))

	logs, err := store.FindByJob(ctx, "J100")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "C1", logs[0].ContractorID)
	require.Len(t, logs[0].Events, 1)
	assert.Equal(t, 150.0, logs[0].Events[0].QuantityCompleted)
	assert.Equal(t, 80.0, logs[1].Events[0].QuantityCompleted)
}

func TestRecordCompletionsPendingNeverNegative(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	for _, qty := range []float64{30, 500, 1, 0.5, 99} {
		_, err := svc.RecordCompletions(ctx, worklog.RecordRequest{ContractorID: "C1", JobID: "J100", Entries: []validation.CompletionEntryInput{entry("op2", qty)}})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pendingOf(t, store, "op2"), 0.0)
	}
	assert.Equal(t, 0.0, pendingOf(t, store, "op2"))
}

func TestRecordCompletionsUnknownJob(t *testing.T) {
	svc, _ := setup(t)

	_, err := svc.RecordCompletions(context.Background(), worklog.RecordRequest{ContractorID: "C1", JobID: "NOPE", Entries: []validation.CompletionEntryInput{entry("op1", 1)}})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestRecordCompletionsRejectsEmptyBatch(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	_, err := svc.RecordCompletions(ctx, worklog.RecordRequest{
		ContractorID: "C1",
		JobID:        "J100",
		Entries:      []validation.CompletionEntryInput{entry("op1", 0), entry("op9", 5), {OperationID: validation.IDOf("op1")}},
	})
	require.Error(t, err)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Rejected, 3)

	reasons := map[int]string{}
	for _, r := range verr.Rejected {
		reasons[r.Index] = r.Reason
	}
	assert.Equal(t, "quantity must be greater than zero", reasons[0])
	assert.Equal(t, "operation not assigned to job", reasons[1])
	assert.Equal(t, "quantity missing", reasons[2])

	logs, err := store.FindByJob(ctx, "J100")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRecordCompletionsSkipsBadEntriesInValidBatch(t *testing.T) {
	svc, store := setup(t)

	res, err := svc.RecordCompletions(context.Background(), worklog.RecordRequest{
		ContractorID: "C1",
		JobID:        "J100",
		Entries:      []validation.CompletionEntryInput{entry("op9", 5), entry("op1", 10), entry("op2", -1)},
	})
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "op1", res.Updates[0].OperationID)
	assert.Len(t, res.Rejected, 2)
	assert.Equal(t, 190.0, pendingOf(t, store, "op1"))
}

func TestRecordCompletionsIdempotencyKey(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	req := worklog.RecordRequest{ContractorID: "C1", JobID: "J100", IdempotencyKey: "batch-1", Entries: []validation.CompletionEntryInput{entry("op1", 40)}}

	first, err := svc.RecordCompletions(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.RecordCompletions(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Empty(t, second.BatchID)
	assert.Equal(t, 160.0, second.Updates[0].NewPendingQuantity)

	assert.Equal(t, 160.0, pendingOf(t, store, "op1"))
	logs, err := store.FindByJob(ctx, "J100")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Len(t, logs[0].Events, 1)
}

func TestRecordCompletionsConcurrentWritersLoseNothing(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, contractor := range []string{"C1", "C2", "C3", "C4"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(contractor string) {
				defer wg.Done()
				_, err := svc.RecordCompletions(ctx, worklog.RecordRequest{ContractorID: contractor, JobID: "J100", Entries: []validation.CompletionEntryInput{entry("op1", 2)}})
				assert.NoError(t, err)
			}(contractor)
		}
	}
	wg.Wait()

	logs, err := store.FindByJob(ctx, "J100")
	require.NoError(t, err)

	var events int
	for _, l := range logs {
		events += len(l.Events)
	}
	assert.Equal(t, 40, events)
	assert.Equal(t, 120.0, pendingOf(t, store, "op1"))
}

// repairAfterAppend runs a drift repair between the event append and the
// pending decrements.
type repairAfterAppend struct {
	*memory.Store
	repair func(ctx context.Context, jobID string) error
	err    error
}

func (r *repairAfterAppend) AppendEvents(ctx context.Context, contractorID, jobID, batchKey string, events []models.CompletionEvent) (bool, error) {
	appended, err := r.Store.AppendEvents(ctx, contractorID, jobID, batchKey, events)
	if err == nil {
		r.err = r.repair(ctx, jobID)
	}
	return appended, err
}

func TestRepairCannotInterleaveWithCompletion(t *testing.T) {
	store := memory.NewStore()
	locker := lock.NewLocalLocker(50 * time.Millisecond)
	ctx := context.Background()

	_, err := ledger.NewService(store, locker, nil).CreateOrExtend(ctx, ledger.CreateOrExtendRequest{
		JobID:      "J100",
		TotalUnits: validation.NumberOf(200),
		Operations: []validation.OperationSpecInput{{OperationID: validation.IDOf("op1"), QuantityPerUnit: validation.NumberOf(1), ValuePerUnit: validation.NumberOf(1)}},
	})
	require.NoError(t, err)

	engine := reconcile.NewService(store, store, store, locker, nil)
	logs := &repairAfterAppend{Store: store, repair: func(ctx context.Context, jobID string) error {
		_, err := engine.RepairDrift(ctx, jobID)
		return err
	}}
	svc := worklog.NewService(store, logs, store, locker, nil)

	res, err := svc.RecordCompletions(ctx, worklog.RecordRequest{ContractorID: "C1", JobID: "J100", Entries: []validation.CompletionEntryInput{entry("op1", 50)}})
	require.NoError(t, err)
	assert.Equal(t, 150.0, res.Updates[0].NewPendingQuantity)

	var conflict *models.ConflictError
	assert.True(t, errors.As(logs.err, &conflict), "repair must wait for the job lock, got %v", logs.err)
	assert.Equal(t, 150.0, pendingOf(t, store, "op1"))

	report, err := engine.RepairDrift(ctx, "J100")
	require.NoError(t, err)
	assert.Empty(t, report.Drifted)
	assert.False(t, report.Repaired)
}
