package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// OperationNames resolves operation ids (hex ObjectIDs) to names. Ids that are
// not valid ObjectIDs are left unresolved rather than failing the lookup.
func (r *MongoDBRepository) OperationNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			r.logger.Debug("operation id is not an object id", zap.String("operation_id", id))
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}, {Key: "opsName", Value: 1}})
	cur, err := r.db.Collection(operationCollection).Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}}, opts)
	if err != nil {
		return nil, &models.DependencyError{Dependency: "operation catalog", Err: err}
	}

	var rows []struct {
		ID   primitive.ObjectID `bson:"_id"`
		Name string             `bson:"opsName"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, &models.DependencyError{Dependency: "operation catalog", Err: err}
	}

	for _, row := range rows {
		out[row.ID.Hex()] = row.Name
	}
	return out, nil
}

// ContractorNames resolves contractor ids to display names.
func (r *MongoDBRepository) ContractorNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.D{{Key: "contractorId", Value: 1}, {Key: "name", Value: 1}})
	cur, err := r.db.Collection(contractorCollection).Find(ctx, bson.D{{Key: "contractorId", Value: bson.D{{Key: "$in", Value: ids}}}}, opts)
	if err != nil {
		return nil, &models.DependencyError{Dependency: "contractor directory", Err: err}
	}

	var rows []struct {
		ID   string `bson:"contractorId"`
		Name string `bson:"name"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, &models.DependencyError{Dependency: "contractor directory", Err: err}
	}

	for _, row := range rows {
		out[row.ID] = row.Name
	}
	return out, nil
}
