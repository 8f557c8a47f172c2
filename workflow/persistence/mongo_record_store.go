package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/agentos/studio/config"
	"github.com/agentos/studio/workflow"
)

// executionDocument is the MongoDB shape of a record
type executionDocument struct {
	ID         string     `bson:"_id"`
	WorkflowID string     `bson:"workflow_id"`
	Status     string     `bson:"status"`
	StartTime  time.Time  `bson:"start_time"`
	EndTime    *time.Time `bson:"end_time,omitempty"`
	Error      string     `bson:"error,omitempty"`
	Record     string     `bson:"record"`
}

func toDocument(record *workflow.ExecutionRecord) (*executionDocument, error) {
	row, err := toRow(record)
	if err != nil {
		return nil, err
	}
	return &executionDocument{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		Status:     row.Status,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		Error:      row.Error,
		Record:     row.Document,
	}, nil
}

func (d *executionDocument) toRecord() (*workflow.ExecutionRecord, error) {
	return decodeRecord([]byte(d.Record))
}

// MongoRecordStore persists records in one collection keyed by execution id
type MongoRecordStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// DialMongo connects to MongoDB and verifies the primary is reachable
func DialMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return client, nil
}

// NewMongoRecordStore uses database/collection on the client and ensures indexes
func NewMongoRecordStore(ctx context.Context, client *mongo.Client, database, collection string, logger *zap.Logger) (*MongoRecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "executions"
	}
	coll := client.Database(database).Collection(collection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "start_time", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_time", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create execution indexes: %w", err)
	}

	return &MongoRecordStore{
		client:     client,
		collection: coll,
		logger:     logger.With(zap.String("component", "mongo_record_store")),
	}, nil
}

// Save implements workflow.RecordStore
func (s *MongoRecordStore) Save(ctx context.Context, record *workflow.ExecutionRecord) error {
	doc, err := toDocument(record)
	if err != nil {
		return err
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", doc.ID, err)
	}
	return nil
}

// Get implements workflow.RecordStore
func (s *MongoRecordStore) Get(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	var doc executionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return doc.toRecord()
}

// ListByWorkflow implements workflow.RecordStore
func (s *MongoRecordStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	return s.find(ctx, bson.M{"workflow_id": workflowID})
}

// ListByStatus implements workflow.RecordStore
func (s *MongoRecordStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus) ([]*workflow.ExecutionRecord, error) {
	return s.find(ctx, bson.M{"status": string(status)})
}

func (s *MongoRecordStore) find(ctx context.Context, filter bson.M) ([]*workflow.ExecutionRecord, error) {
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	var docs []executionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}

	out := make([]*workflow.ExecutionRecord, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].toRecord()
		if err != nil {
			s.logger.Warn("skipping unreadable execution document", zap.String("execution_id", docs[i].ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete implements workflow.RecordStore
func (s *MongoRecordStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

// Ping implements workflow.RecordStore
func (s *MongoRecordStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements workflow.RecordStore
func (s *MongoRecordStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
