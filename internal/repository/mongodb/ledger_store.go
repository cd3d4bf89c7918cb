package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/repository"
)

// FindLedger loads the JobOpsMaster document for jobID, or nil if none exists.
func (r *MongoDBRepository) FindLedger(ctx context.Context, jobID string) (*models.JobLedger, error) {
	var ledger models.JobLedger
	err := r.db.Collection(ledgerCollection).FindOne(ctx, bson.D{{Key: "jobId", Value: jobID}}).Decode(&ledger)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger %s: %w", jobID, err)
	}
	return &ledger, nil
}

// InsertLedger creates the document; the unique jobId index turns a racing
// second insert into ErrDuplicateKey.
func (r *MongoDBRepository) InsertLedger(ctx context.Context, ledger *models.JobLedger) error {
	now := time.Now().UTC()
	ledger.Version = 1
	ledger.CreatedAt = now
	ledger.UpdatedAt = now

	if _, err := r.db.Collection(ledgerCollection).InsertOne(ctx, ledger); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger %s: %w", ledger.JobID, err)
	}
	return nil
}

// ReplaceLedger performs the whole-record write guarded by the stored version.
func (r *MongoDBRepository) ReplaceLedger(ctx context.Context, ledger *models.JobLedger) error {
	expected := ledger.Version
	ledger.Version = expected + 1
	ledger.UpdatedAt = time.Now().UTC()

	res, err := r.db.Collection(ledgerCollection).ReplaceOne(ctx, bson.D{
		{Key: "jobId", Value: ledger.JobID},
		{Key: "version", Value: versionFilter(expected)},
	}, ledger)
	if err != nil {
		ledger.Version = expected
		return fmt.Errorf("replace ledger %s: %w", ledger.JobID, err)
	}
	if res.MatchedCount == 0 {
		ledger.Version = expected
		return repository.ErrVersionMismatch
	}
	return nil
}

// DecrementPending applies the clamped decrement server-side in one update so
// concurrent completions on the same job never overwrite each other.
func (r *MongoDBRepository) DecrementPending(ctx context.Context, jobID, operationID string, qty float64, at time.Time) (float64, error) {
	match := bson.D{{Key: "$eq", Value: bson.A{"$$op.opId", bson.D{{Key: "$literal", Value: operationID}}}}}
	decremented := bson.D{{Key: "$mergeObjects", Value: bson.A{
		"$$op",
		bson.D{
			{Key: "pendingOpsQty", Value: bson.D{{Key: "$max", Value: bson.A{
				0,
				bson.D{{Key: "$subtract", Value: bson.A{"$$op.pendingOpsQty", qty}}},
			}}}},
			{Key: "lastUpdatedDate", Value: at},
		},
	}}}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "ops", Value: bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: "$ops"},
				{Key: "as", Value: "op"},
				{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{match, decremented, "$$op"}}}},
			}}}},
			{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$version", 0}}}, 1}}}},
			{Key: "updatedAt", Value: at},
		}}},
	}

	filter := bson.D{{Key: "jobId", Value: jobID}, {Key: "ops.opId", Value: operationID}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var ledger models.JobLedger
	err := r.db.Collection(ledgerCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&ledger)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, &models.NotFoundError{Resource: "operation", ID: operationID}
	}
	if err != nil {
		return 0, fmt.Errorf("decrement pending %s/%s: %w", jobID, operationID, err)
	}

	op, ok := ledger.Operation(operationID)
	if !ok {
		return 0, &models.NotFoundError{Resource: "operation", ID: operationID}
	}
	return op.PendingQuantity, nil
}

// ListJobIDs returns every ledger's jobId in ascending order.
func (r *MongoDBRepository) ListJobIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "jobId", Value: 1}, {Key: "_id", Value: 0}}).
		SetSort(bson.D{{Key: "jobId", Value: 1}})

	cur, err := r.db.Collection(ledgerCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}

	var rows []struct {
		JobID string `bson:"jobId"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode job ids: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.JobID)
	}
	return ids, nil
}

// versionFilter also matches legacy documents that predate the version field.
func versionFilter(v int64) any {
	if v == 0 {
		return bson.D{{Key: "$in", Value: bson.A{0, nil}}}
	}
	return v
}
