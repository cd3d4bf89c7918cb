package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// AppendEvents pushes events onto the contractor's log with a single upsert so
// concurrent writers to the same (contractor, job) pair never lose events.
func (r *MongoDBRepository) AppendEvents(ctx context.Context, contractorID, jobID, batchKey string, events []models.CompletionEvent) (bool, error) {
	coll := r.db.Collection(workLogCollection)
	key := bson.D{{Key: "contractorId", Value: contractorID}, {Key: "jobId", Value: jobID}}

	filter := key
	push := bson.D{{Key: "opsDone", Value: bson.D{{Key: "$each", Value: events}}}}

	if batchKey != "" {
		seen, err := coll.CountDocuments(ctx, append(key, bson.E{Key: "batchKeys", Value: batchKey}), options.Count().SetLimit(1))
		if err != nil {
			return false, fmt.Errorf("check batch key: %w", err)
		}
		if seen > 0 {
			return false, nil
		}

		filter = append(key, bson.E{Key: "batchKeys", Value: bson.D{{Key: "$ne", Value: batchKey}}})
		push = append(push, bson.E{Key: "batchKeys", Value: batchKey})
	}

	update := bson.D{
		{Key: "$push", Value: push},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: time.Now().UTC()}}},
	}

	_, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// A racing writer recorded the same batch key first; the upsert then
		// collides with the (contractorId, jobId) unique index.
		if batchKey != "" && mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("append work log %s/%s: %w", contractorID, jobID, err)
	}
	return true, nil
}

// FindByJob loads every contractor's log for jobID.
func (r *MongoDBRepository) FindByJob(ctx context.Context, jobID string) ([]models.ContractorWorkLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "contractorId", Value: 1}})
	cur, err := r.db.Collection(workLogCollection).Find(ctx, bson.D{{Key: "jobId", Value: jobID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find work logs for %s: %w", jobID, err)
	}

	var logs []models.ContractorWorkLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode work logs for %s: %w", jobID, err)
	}
	return logs, nil
}
