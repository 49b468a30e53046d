package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/logger"
)

// Options configures the MongoDB film collection.
type Options struct {
	URI        string
	Database   string
	Collection string
	// Timeout bounds every call. Defaults to 10s.
	Timeout time.Duration
}

// OptionsFromEnv reads MONGO_URI, MONGO_DATABASE, MONGO_COLLECTION and
// MONGO_TIMEOUT.
func OptionsFromEnv() Options {
	return Options{
		URI:        util.GetEnvString("MONGO_URI", "mongodb://localhost:27017"),
		Database:   util.GetEnvString("MONGO_DATABASE", "entertainment"),
		Collection: util.GetEnvString("MONGO_COLLECTION", "films"),
		Timeout:    util.GetEnvDuration("MONGO_TIMEOUT", 10*time.Second),
	}
}

// FilmStore implements docstore.Store on a MongoDB collection.
type FilmStore struct {
	client     *mongo.Client
	coll       *mongo.Collection
	timeout    time.Duration
	ownsClient bool
}

// Connect dials MongoDB and verifies the connection with a ping. The
// returned store owns the client and disconnects it on Close.
func Connect(ctx context.Context, opts Options) (*FilmStore, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(opts.Timeout).
		SetConnectTimeout(opts.Timeout))
	if err != nil {
		return nil, wrapErr("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, wrapErr("ping", err)
	}

	s := NewFilmStore(client, opts)
	s.ownsClient = true
	logger.Debug("[Mongo] connected", "database", opts.Database, "collection", opts.Collection)
	return s, nil
}

// NewFilmStore wraps an existing client. Close leaves the client open.
func NewFilmStore(client *mongo.Client, opts Options) *FilmStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Collection == "" {
		opts.Collection = "films"
	}
	return &FilmStore{
		client:  client,
		coll:    client.Database(opts.Database).Collection(opts.Collection),
		timeout: opts.Timeout,
	}
}

func (s *FilmStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *FilmStore) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// filmDoc decodes a stored film with its identity.
type filmDoc struct {
	ID          bson.RawValue `bson:"_id"`
	common.Film `bson:",inline"`
}

// insertDoc encodes a new film with a generated identity.
type insertDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	common.Film `bson:",inline"`
}

func renderID(rv bson.RawValue) string {
	if oid, ok := rv.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := rv.StringValueOK(); ok {
		return s
	}
	return rv.String()
}

// idFilter matches both identity flavours: imported datasets use string ids
// while documents inserted here use ObjectIDs.
func idFilter(id string) bson.D {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, id}}}}}
	}
	return bson.D{{Key: "_id", Value: id}}
}

func (s *FilmStore) List(ctx context.Context, limit int) ([]string, []common.Film, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, nil, wrapErr("list films", err)
	}
	defer cur.Close(ctx)

	var docs []filmDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, nil, wrapErr("decode films", err)
	}

	ids := make([]string, len(docs))
	films := make([]common.Film, len(docs))
	for i, d := range docs {
		ids[i] = renderID(d.ID)
		films[i] = d.Film
	}
	return ids, films, nil
}

func (s *FilmStore) FindByID(ctx context.Context, id string) (*common.Film, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc filmDoc
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("film %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("find film", err)
	}
	return &doc.Film, nil
}

func (s *FilmStore) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, idFilter(id), options.Count().SetLimit(1))
	if err != nil {
		return false, wrapErr("count film", err)
	}
	return n > 0, nil
}

func (s *FilmStore) Insert(ctx context.Context, film common.Film) (string, error) {
	film.ApplyDefaults()
	if err := common.ValidateFilm(film); err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := insertDoc{ID: primitive.NewObjectID(), Film: film}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", wrapErr("insert film", err)
	}
	return doc.ID.Hex(), nil
}

func (s *FilmStore) InsertMany(ctx context.Context, films []common.Film) ([]string, error) {
	if len(films) == 0 {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docs := make([]any, len(films))
	ids := make([]string, len(films))
	for i, f := range films {
		f.ApplyDefaults()
		oid := primitive.NewObjectID()
		docs[i] = insertDoc{ID: oid, Film: f}
		ids[i] = oid.Hex()
	}
	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, wrapErr("insert films", err)
	}
	return ids, nil
}

func (s *FilmStore) Update(ctx context.Context, id string, patch common.FilmPatch) (int64, error) {
	if err := common.ValidatePatch(patch); err != nil {
		return 0, err
	}

	set := bson.D{}
	for k, v := range patch.Fields() {
		set = append(set, bson.E{Key: k, Value: v})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx, idFilter(id), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, wrapErr("update film", err)
	}
	return res.MatchedCount, nil
}

func (s *FilmStore) Delete(ctx context.Context, id string) (common.DeleteOutcome, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if !exists {
		return common.DeleteNotFound, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return "", wrapErr("delete film", err)
	}
	if res.DeletedCount == 0 {
		return common.DeleteNotFound, nil
	}
	return common.DeleteDeleted, nil
}

func (s *FilmStore) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr("aggregate", err)
	}
	defer cur.Close(ctx)

	var rows []bson.Raw
	for cur.Next(ctx) {
		row := make(bson.Raw, len(cur.Current))
		copy(row, cur.Current)
		rows = append(rows, row)
	}
	if err := cur.Err(); err != nil {
		return nil, wrapErr("aggregate", err)
	}
	return rows, nil
}

func (s *FilmStore) Stream(ctx context.Context, fn func(id string, film common.Film) error) error {
	findCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(findCtx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return wrapErr("stream films", err)
	}
	defer cur.Close(context.Background())

	// Each getMore gets its own deadline; fn runs outside of it.
	for s.next(ctx, cur) {
		var doc filmDoc
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode film: %w", err)
		}
		if err := fn(renderID(doc.ID), doc.Film); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return wrapErr("stream films", err)
	}
	return nil
}

func (s *FilmStore) next(ctx context.Context, cur *mongo.Cursor) bool {
	nextCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return cur.Next(nextCtx)
}

func (s *FilmStore) MigrateLegacyFields(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var modified int64
	for legacy, canonical := range common.LegacyFieldNames {
		res, err := s.coll.UpdateMany(ctx,
			bson.D{{Key: legacy, Value: bson.D{{Key: "$exists", Value: true}}}},
			bson.D{{Key: "$rename", Value: bson.D{{Key: legacy, Value: canonical}}}},
		)
		if err != nil {
			return modified, wrapErr("rename "+legacy, err)
		}
		if res.ModifiedCount > 0 {
			logger.Info("[Mongo] renamed legacy field", "from", legacy, "to", canonical, "documents", res.ModifiedCount)
		}
		modified += res.ModifiedCount
	}

	res, err := s.coll.UpdateMany(ctx,
		bson.D{{Key: common.FieldRevenue, Value: ""}},
		bson.D{{Key: "$set", Value: bson.D{{Key: common.FieldRevenue, Value: nil}}}},
	)
	if err != nil {
		return modified, wrapErr("clear empty revenue", err)
	}
	return modified + res.ModifiedCount, nil
}

func wrapErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("mongo %s: %w: %w", op, common.ErrConnection, err)
	}
	return fmt.Errorf("mongo %s: %w", op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var sse topology.ServerSelectionError
	if errors.As(err, &sse) {
		return true
	}
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, topology.ErrServerSelectionTimeout)
}
