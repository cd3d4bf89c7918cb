package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/repository"
)

// Collection names match the ones the UI backend has always written to.
const (
	ledgerCollection     = "JobOpsMaster"
	workLogCollection    = "Contractor_WD"
	operationCollection  = "operations"
	contractorCollection = "Contractor"
)

// Options tunes the repository beyond the connection string.
type Options struct {
	// Transactions wraps completion writes in a multi-document transaction.
	// Requires a replica set or sharded cluster.
	Transactions bool
}

// MongoDBRepository implements the ledger, work log and catalog contracts on MongoDB.
type MongoDBRepository struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	logger       *zap.Logger
}

var (
	_ repository.LedgerStore   = (*MongoDBRepository)(nil)
	_ repository.WorkLogStore  = (*MongoDBRepository)(nil)
	_ repository.CatalogReader = (*MongoDBRepository)(nil)
	_ repository.Transactor    = (*MongoDBRepository)(nil)
)

// NewMongoDBRepository connects, verifies the connection and ensures indexes.
func NewMongoDBRepository(ctx context.Context, uri, dbName string, opts Options, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri).SetRegistry(newRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client:       client,
		db:           client.Database(dbName),
		transactions: opts.Transactions,
		logger:       logger,
	}

	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("mongodb repository ready", zap.String("db", dbName), zap.Bool("transactions", opts.Transactions))
	return r, nil
}

// EnsureIndexes creates the natural-key indexes both collections rely on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(ledgerCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "jobId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_jobId"),
	})
	if err != nil {
		return fmt.Errorf("create ledger index: %w", err)
	}

	_, err = r.db.Collection(workLogCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "contractorId", Value: 1}, {Key: "jobId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_contractor_job"),
		},
		{
			Keys:    bson.D{{Key: "jobId", Value: 1}},
			Options: options.Index().SetName("by_jobId"),
		},
	})
	if err != nil {
		return fmt.Errorf("create work log indexes: %w", err)
	}

	return nil
}

// WithinTransaction runs fn in a multi-document transaction when enabled,
// otherwise directly.
func (r *MongoDBRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.transactions {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongodb session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
