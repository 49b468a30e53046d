package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/filmgraph/backend/pkg/common"
)

// Store is the document collection holding the film catalog.
//
// Implementations never retry. Unreachable stores are reported with
// common.ErrConnection so that callers can decide whether the operation is
// safe to repeat.
type Store interface {
	// List returns up to limit films in natural order together with their
	// ids. A limit <= 0 returns every film.
	List(ctx context.Context, limit int) ([]string, []common.Film, error)
	// FindByID returns common.ErrNotFound when no film has the id.
	FindByID(ctx context.Context, id string) (*common.Film, error)
	Exists(ctx context.Context, id string) (bool, error)

	// Insert validates the film and stores it with a generated id.
	Insert(ctx context.Context, film common.Film) (string, error)
	// InsertMany stores films without validation and returns the generated
	// ids in input order. Used by dataset import.
	InsertMany(ctx context.Context, films []common.Film) ([]string, error)
	// Update sets the fields of patch and returns the number of matched
	// documents; 0 means there is no film with the id.
	Update(ctx context.Context, id string, patch common.FilmPatch) (int64, error)
	// Delete checks existence first and never deletes when the film is
	// missing.
	Delete(ctx context.Context, id string) (common.DeleteOutcome, error)

	// Aggregate runs a pipeline and returns the result documents in order.
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.Raw, error)
	// Stream calls fn for every film. Iteration stops at the first error
	// returned by fn.
	Stream(ctx context.Context, fn func(id string, film common.Film) error) error

	// MigrateLegacyFields renames legacy keys to the canonical schema and
	// returns the number of modified documents.
	MigrateLegacyFields(ctx context.Context) (int64, error)

	Close(ctx context.Context) error
}
