package store

import (
	"context"

	"github.com/filmgraph/backend/pkg/common"
)

// GraphStorage persists the film graph. Every write is an idempotent upsert:
// running the same call twice leaves the graph unchanged.
type GraphStorage interface {
	// EnsureConstraints creates the uniqueness constraints on Film.id and on
	// the name of every entity kind.
	EnsureConstraints(ctx context.Context) error

	// UpsertFilms merges Film nodes on id and sets their projection. It
	// returns the number of rows written.
	UpsertFilms(ctx context.Context, films []common.FilmNode) (int, error)

	// UpsertEntities merges one node per name.
	UpsertEntities(ctx context.Context, kind common.EntityKind, names []string) (int, error)

	// UpsertRelationships merges one edge per row between existing nodes.
	// Rows whose film or entity node is missing are not written and are
	// reported with a *common.MissingNodesError.
	UpsertRelationships(ctx context.Context, kind common.RelationshipKind, rels []common.Relationship) (int, error)

	// DeriveDirectorRelationships computes a Director to Director
	// relationship from the materialized graph and returns the number of
	// pairs merged.
	DeriveDirectorRelationships(ctx context.Context, kind common.RelationshipKind) (int64, error)

	// Counts returns node counts per label and relationship counts per type.
	Counts(ctx context.Context) (*common.GraphCounts, error)
}
