package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/filmgraph/backend/pkg/common"
)

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	f := idFilter(oid.Hex())
	in, ok := f[0].Value.(bson.D)
	if !ok || in[0].Key != "$in" {
		t.Fatalf("expected $in filter for hex id, got %v", f)
	}
	if got := in[0].Value.(bson.A); len(got) != 2 || got[0] != oid {
		t.Fatalf("expected ObjectID and string candidates, got %v", got)
	}

	f = idFilter("tt0120338")
	if f[0].Value != "tt0120338" {
		t.Fatalf("expected plain string filter, got %v", f)
	}
}

func TestRenderID(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, _ := bson.Marshal(bson.D{{Key: "a", Value: oid}, {Key: "b", Value: "s1"}})
	doc := bson.Raw(raw)
	if got := renderID(doc.Lookup("a")); got != oid.Hex() {
		t.Fatalf("expected %s, got %s", oid.Hex(), got)
	}
	if got := renderID(doc.Lookup("b")); got != "s1" {
		t.Fatalf("expected s1, got %s", got)
	}
}

func TestWrapErr_ConnectionClassification(t *testing.T) {
	err := wrapErr("ping", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	if !errors.Is(err, common.ErrConnection) {
		t.Fatalf("expected timeout to be a connection error, got %v", err)
	}
	err = wrapErr("find", context.Canceled)
	if errors.Is(err, common.ErrConnection) {
		t.Fatalf("expected cancellation to stay a plain error, got %v", err)
	}
}

func skipIfNoMongo(t *testing.T) *FilmStore {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" || testing.Short() {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, Options{
		URI:        uri,
		Database:   "filmgraph_test",
		Collection: fmt.Sprintf("films_%d", time.Now().UnixNano()),
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestFilmStore_CRUD(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, common.Film{Title: "Arrival", Genre: "Drama,Mystery,Sci-Fi", Description: "A linguist..."})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	f, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if f.Votes.Int64 != 0 || !f.Votes.Valid || f.Rating.Value != 0 || f.Year.Valid {
		t.Fatalf("unexpected insert defaults %+v", f)
	}

	year := common.NewNullInt(2016)
	n, err := s.Update(ctx, id, common.FilmPatch{Year: &year})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 matched, got %d err=%v", n, err)
	}

	missing := primitive.NewObjectID().Hex()
	n, err = s.Update(ctx, missing, common.FilmPatch{Year: &year})
	if err != nil || n != 0 {
		t.Fatalf("expected 0 for missing id, got %d err=%v", n, err)
	}

	out, err := s.Delete(ctx, missing)
	if err != nil || out != common.DeleteNotFound {
		t.Fatalf("expected not_found, got %s err=%v", out, err)
	}
	out, err = s.Delete(ctx, id)
	if err != nil || out != common.DeleteDeleted {
		t.Fatalf("expected deleted, got %s err=%v", out, err)
	}
	if _, err := s.FindByID(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilmStore_MigrateLegacyFields(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	_, err := s.coll.InsertOne(ctx, bson.D{
		{Key: "_id", Value: "legacy-1"},
		{Key: "Title", Value: "Old"},
		{Key: "genre", Value: "Drama"},
		{Key: "Description", Value: "x"},
		{Key: "Revenue (Millions)", Value: ""},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.MigrateLegacyFields(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f, err := s.FindByID(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if f.Title != "Old" || f.Description != "x" || f.Revenue.Valid {
		t.Fatalf("unexpected migrated film %+v", f)
	}
}

func TestFilmStore_StreamOutlivesStoreTimeout(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	films := make([]common.Film, 150)
	for i := range films {
		films[i] = common.Film{Title: fmt.Sprintf("Film %03d", i), Genre: "Drama", Description: "x"}
	}
	if _, err := s.InsertMany(ctx, films); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The first batch holds 101 documents, so the rest need a getMore issued
	// after the stream has run longer than one store timeout.
	s.timeout = 500 * time.Millisecond
	seen := 0
	err := s.Stream(ctx, func(id string, film common.Film) error {
		seen++
		time.Sleep(6 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if seen != len(films) {
		t.Fatalf("expected %d films, got %d", len(films), seen)
	}
}

func TestFilmStore_StreamStopsOnCancel(t *testing.T) {
	s := skipIfNoMongo(t)
	if _, err := s.InsertMany(context.Background(), []common.Film{
		{Title: "A", Genre: "Drama", Description: "a"},
		{Title: "B", Genre: "Drama", Description: "b"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Stream(ctx, func(string, common.Film) error { return nil }); err == nil {
		t.Fatal("expected an error for a cancelled stream")
	}
}
