package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

type fakeCollection struct {
	insertedDoc any
	insertErr   error
}

func (f *fakeCollection) InsertOne(ctx context.Context, document any) (*mongo.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.insertedDoc = document
	return &mongo.InsertOneResult{InsertedID: bson.NewObjectID()}, nil
}

func (f *fakeCollection) Indexes() mongo.IndexView { return mongo.IndexView{} }

func TestArchiver_AppendWritesBatchDocument(t *testing.T) {
	fc := &fakeCollection{}
	a := &Archiver{collection: fc, logger: zap.NewNop()}

	window := BatchWindow{
		ID: batchID(1), Number: 1,
		Stats: &BatchStats{Commits: 50, EntitiesCreated: 12},
	}
	if err := a.Append(context.Background(), "repo", "team", window); err != nil {
		t.Fatalf("Append: %v", err)
	}

	doc, ok := fc.insertedDoc.(archivedBatch)
	if !ok {
		t.Fatalf("expected archivedBatch document, got %T", fc.insertedDoc)
	}
	if doc.Repository != "repo" || doc.Team != "team" || doc.BatchID != batchID(1) || doc.BatchNumber != 1 {
		t.Fatalf("unexpected archived document: %+v", doc)
	}
	if doc.Stats == nil || doc.Stats.Commits != 50 {
		t.Fatalf("expected stats carried through: %+v", doc.Stats)
	}
	if doc.CompletedAt.IsZero() || doc.CompletedAt.After(time.Now()) {
		t.Fatalf("expected a sane CompletedAt timestamp, got %v", doc.CompletedAt)
	}
}

func TestArchiver_AppendWrapsInsertError(t *testing.T) {
	fc := &fakeCollection{insertErr: errors.New("connection reset")}
	a := &Archiver{collection: fc, logger: zap.NewNop()}

	err := a.Append(context.Background(), "repo", "team", BatchWindow{ID: batchID(1)})
	if err == nil {
		t.Fatal("expected error")
	}
}
