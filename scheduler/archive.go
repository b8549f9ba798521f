package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

// archivedBatch is the append-only document written to Mongo on
// completeBatch, independent of the mandatory JSON checkpoint (spec §4.3
// "optional archive").
type archivedBatch struct {
	Repository  string      `bson:"repository"`
	Team        string      `bson:"team"`
	BatchID     string      `bson:"batchId"`
	BatchNumber int         `bson:"batchNumber"`
	CompletedAt time.Time   `bson:"completedAt"`
	Stats       *BatchStats `bson:"stats"`
}

// collection is the subset of *mongo.Collection the archiver needs, so
// tests can substitute a fake instead of standing up a real server.
type collection interface {
	InsertOne(ctx context.Context, document any) (*mongo.InsertOneResult, error)
	Indexes() mongo.IndexView
}

type mongoCollection struct{ coll *mongo.Collection }

func (c mongoCollection) InsertOne(ctx context.Context, document any) (*mongo.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document)
}
func (c mongoCollection) Indexes() mongo.IndexView { return c.coll.Indexes() }

// Archiver appends completed batches to a best-effort MongoDB collection
// for cross-repo analytics. A write failure is logged by the caller and
// never blocks the JSON checkpoint.
type Archiver struct {
	collection collection
	logger     *zap.Logger
}

// NewArchiver wraps an already-connected collection handle.
func NewArchiver(coll *mongo.Collection, logger *zap.Logger) *Archiver {
	return &Archiver{collection: mongoCollection{coll: coll}, logger: logger.With(zap.String("component", "batch_archiver"))}
}

// Append writes one completed batch to the archive collection.
func (a *Archiver) Append(ctx context.Context, repository, team string, window BatchWindow) error {
	doc := archivedBatch{
		Repository:  repository,
		Team:        team,
		BatchID:     window.ID,
		BatchNumber: window.Number,
		CompletedAt: time.Now(),
		Stats:       window.Stats,
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("archive batch %s: %w", window.ID, err)
	}
	return nil
}

// EnsureIndexes creates the (repository, team, batchNumber) index used by
// cross-repo analytics queries. Safe to call repeatedly.
func (a *Archiver) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "repository", Value: 1}, {Key: "team", Value: 1}, {Key: "batchNumber", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("ensure archive indexes: %w", err)
	}
	return nil
}
