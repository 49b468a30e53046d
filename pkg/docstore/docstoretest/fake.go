// Package docstoretest provides an in-memory docstore.Store for tests.
package docstoretest

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/filmgraph/backend/pkg/common"
)

// Fake keeps films in insertion order. Aggregate delegates to AggregateFunc
// and records every pipeline it receives.
type Fake struct {
	mu     sync.Mutex
	ids    []string
	films  map[string]common.Film
	nextID int

	AggregateFunc func(pipeline mongo.Pipeline) ([]bson.Raw, error)
	Pipelines     []mongo.Pipeline

	// Err, when set, is returned by every call.
	Err error
	// Calls counts invocations per method name.
	Calls map[string]int
}

func New() *Fake {
	return &Fake{films: make(map[string]common.Film), Calls: make(map[string]int)}
}

// Seed stores films under the given ids, bypassing validation.
func (f *Fake) Seed(id string, film common.Film) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.films[id]; !ok {
		f.ids = append(f.ids, id)
	}
	f.films[id] = film
}

func (f *Fake) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[name]++
	return f.Err
}

func (f *Fake) List(ctx context.Context, limit int) ([]string, []common.Film, error) {
	if err := f.call("List"); err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.ids)
	if limit > 0 && limit < n {
		n = limit
	}
	ids := append([]string(nil), f.ids[:n]...)
	films := make([]common.Film, n)
	for i, id := range ids {
		films[i] = f.films[id]
	}
	return ids, films, nil
}

func (f *Fake) FindByID(ctx context.Context, id string) (*common.Film, error) {
	if err := f.call("FindByID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	film, ok := f.films[id]
	if !ok {
		return nil, fmt.Errorf("film %s: %w", id, common.ErrNotFound)
	}
	return &film, nil
}

func (f *Fake) Exists(ctx context.Context, id string) (bool, error) {
	if err := f.call("Exists"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.films[id]
	return ok, nil
}

func (f *Fake) Insert(ctx context.Context, film common.Film) (string, error) {
	if err := f.call("Insert"); err != nil {
		return "", err
	}
	film.ApplyDefaults()
	if err := common.ValidateFilm(film); err != nil {
		return "", err
	}
	return f.add(film), nil
}

func (f *Fake) add(film common.Film) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("film-%d", f.nextID)
	f.ids = append(f.ids, id)
	f.films[id] = film
	return id
}

func (f *Fake) InsertMany(ctx context.Context, films []common.Film) ([]string, error) {
	if err := f.call("InsertMany"); err != nil {
		return nil, err
	}
	ids := make([]string, len(films))
	for i, film := range films {
		film.ApplyDefaults()
		ids[i] = f.add(film)
	}
	return ids, nil
}

func (f *Fake) Update(ctx context.Context, id string, patch common.FilmPatch) (int64, error) {
	if err := f.call("Update"); err != nil {
		return 0, err
	}
	if err := common.ValidatePatch(patch); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	film, ok := f.films[id]
	if !ok {
		return 0, nil
	}
	applyPatch(&film, patch)
	f.films[id] = film
	return 1, nil
}

func applyPatch(film *common.Film, p common.FilmPatch) {
	if p.Title != nil {
		film.Title = *p.Title
	}
	if p.Genre != nil {
		film.Genre = *p.Genre
	}
	if p.Description != nil {
		film.Description = *p.Description
	}
	if p.Director != nil {
		film.Director = *p.Director
	}
	if p.Actors != nil {
		film.Actors = *p.Actors
	}
	if p.Year != nil {
		film.Year = *p.Year
	}
	if p.Runtime != nil {
		film.Runtime = *p.Runtime
	}
	if p.Rating != nil {
		film.Rating = *p.Rating
	}
	if p.Votes != nil {
		film.Votes = *p.Votes
	}
	if p.Revenue != nil {
		film.Revenue = *p.Revenue
	}
	if p.Metascore != nil {
		film.Metascore = *p.Metascore
	}
}

func (f *Fake) Delete(ctx context.Context, id string) (common.DeleteOutcome, error) {
	if err := f.call("Delete"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.films[id]; !ok {
		return common.DeleteNotFound, nil
	}
	delete(f.films, id)
	for i, v := range f.ids {
		if v == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			break
		}
	}
	return common.DeleteDeleted, nil
}

func (f *Fake) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	if err := f.call("Aggregate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Pipelines = append(f.Pipelines, pipeline)
	fn := f.AggregateFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(pipeline)
}

func (f *Fake) Stream(ctx context.Context, fn func(id string, film common.Film) error) error {
	if err := f.call("Stream"); err != nil {
		return err
	}
	f.mu.Lock()
	ids := append([]string(nil), f.ids...)
	films := make([]common.Film, len(ids))
	for i, id := range ids {
		films[i] = f.films[id]
	}
	f.mu.Unlock()

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, films[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) MigrateLegacyFields(ctx context.Context) (int64, error) {
	return 0, f.call("MigrateLegacyFields")
}

func (f *Fake) Close(ctx context.Context) error {
	return nil
}

// Rows marshals documents into aggregation results.
func Rows(docs ...bson.M) []bson.Raw {
	out := make([]bson.Raw, 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			panic(err)
		}
		out = append(out, raw)
	}
	return out
}
