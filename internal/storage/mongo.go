package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/igscrape/internal/types"
)

// MongoStorage upserts reports into a MongoDB collection keyed by
// "<inspector>/<report_id>".
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, reports []*types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(reports) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(reports))
	for _, r := range reports {
		doc, err := reportDocument(r)
		if err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.Key()}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongodb upsert: %w", err)
	}

	s.count += len(reports)
	s.logger.Debug("reports stored in mongodb", "count", len(reports), "total", s.count)
	return nil
}

// reportDocument converts a report to a bson document with the same keys as
// report.json.
func reportDocument(r *types.Report) (bson.M, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.Key(), err)
	}
	doc := bson.M{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", r.Key(), err)
	}
	doc["_id"] = r.Key()
	doc["indexed_at"] = time.Now().UTC()
	return doc, nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_reports", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
