package cypher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/graphstore"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/store"
)

const defaultBatchSize = 500

// GraphStorage implements store.GraphStorage with Cypher statements sent
// through a graphstore.Runner. All statements are MERGE based and safe to
// retry on connection errors.
type GraphStorage struct {
	runner    graphstore.Runner
	batchSize int
	retry     util.RetryPolicy
}

type GraphStorageOption func(*GraphStorage)

// WithBatchSize sets the number of rows sent per UNWIND statement.
func WithBatchSize(n int) GraphStorageOption {
	return func(s *GraphStorage) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithRetryPolicy(p util.RetryPolicy) GraphStorageOption {
	return func(s *GraphStorage) {
		s.retry = p
	}
}

// NewGraphStorage creates a GraphStorage on top of runner.
func NewGraphStorage(runner graphstore.Runner, opts ...GraphStorageOption) *GraphStorage {
	s := &GraphStorage{
		runner:    runner,
		batchSize: defaultBatchSize,
		retry:     util.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

var _ store.GraphStorage = (*GraphStorage)(nil)

func (s *GraphStorage) run(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return util.RetryWithContext(ctx, s.retry, func(ctx context.Context) ([]graphstore.Record, error) {
		return s.runner.Run(ctx, query, params)
	})
}

func (s *GraphStorage) read(ctx context.Context, query string, params map[string]any) ([]graphstore.Record, error) {
	return util.RetryWithContext(ctx, s.retry, func(ctx context.Context) ([]graphstore.Record, error) {
		return s.runner.Read(ctx, query, params)
	})
}

func (s *GraphStorage) EnsureConstraints(ctx context.Context) error {
	stmts := []string{
		"CREATE CONSTRAINT film_id IF NOT EXISTS FOR (n:Film) REQUIRE n.id IS UNIQUE",
	}
	for _, kind := range common.EntityKinds {
		label, err := entityLabel(kind)
		if err != nil {
			return err
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_name IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE",
			strings.ToLower(label), label,
		))
	}

	for _, stmt := range stmts {
		err := util.RetryErrWithContext(ctx, s.retry, func(ctx context.Context) error {
			_, err := s.runner.Run(ctx, stmt, nil)
			return err
		})
		if err != nil {
			return fmt.Errorf("ensure constraints: %w", err)
		}
	}
	return nil
}

const upsertFilmsQuery = `
UNWIND $rows AS row
MERGE (f:Film {id: row.id})
SET f.title = row.title,
    f.year = row.year,
    f.votes = row.votes,
    f.revenue = row.revenue,
    f.rating = row.rating,
    f.director = row.director
RETURN count(f) AS n`

func (s *GraphStorage) UpsertFilms(ctx context.Context, films []common.FilmNode) (int, error) {
	written := 0
	err := store.ChunkRange(len(films), s.batchSize, func(start, end int) error {
		rows := make([]any, 0, end-start)
		for _, f := range films[start:end] {
			rows = append(rows, f.Props())
		}
		recs, err := s.run(ctx, upsertFilmsQuery, map[string]any{"rows": rows})
		if err != nil {
			return fmt.Errorf("upsert films: %w", err)
		}
		written += countOf(recs)
		return nil
	})
	return written, err
}

func (s *GraphStorage) UpsertEntities(ctx context.Context, kind common.EntityKind, names []string) (int, error) {
	label, err := entityLabel(kind)
	if err != nil {
		return 0, err
	}
	names = store.DedupeStrings(names)
	query := fmt.Sprintf("UNWIND $names AS name\nMERGE (n:%s {name: name})\nRETURN count(n) AS n", label)

	written := 0
	err = store.ChunkRange(len(names), s.batchSize, func(start, end int) error {
		recs, err := s.run(ctx, query, map[string]any{"names": toAny(names[start:end])})
		if err != nil {
			return fmt.Errorf("upsert %s nodes: %w", label, err)
		}
		written += countOf(recs)
		return nil
	})
	return written, err
}

func relationshipQuery(kind common.RelationshipKind) (string, error) {
	relType, err := relationshipType(kind)
	if err != nil {
		return "", err
	}
	if kind.Derived() {
		return "", fmt.Errorf("relationship %s is derived and has no film side", kind)
	}
	label, err := entityLabel(kind.Entity())
	if err != nil {
		return "", err
	}

	pattern := fmt.Sprintf("(e)-[:%s]->(f)", relType)
	if kind.FromFilm() {
		pattern = fmt.Sprintf("(f)-[:%s]->(e)", relType)
	}

	return fmt.Sprintf(`
UNWIND $rows AS row
OPTIONAL MATCH (f:Film {id: row.film})
OPTIONAL MATCH (e:%s {name: row.name})
FOREACH (_ IN CASE WHEN f IS NOT NULL AND e IS NOT NULL THEN [1] ELSE [] END |
  MERGE %s)
RETURN row.film AS film, row.name AS name, f IS NOT NULL AS film_found, e IS NOT NULL AS entity_found`,
		label, pattern,
	), nil
}

func (s *GraphStorage) UpsertRelationships(ctx context.Context, kind common.RelationshipKind, rels []common.Relationship) (int, error) {
	query, err := relationshipQuery(kind)
	if err != nil {
		return 0, err
	}

	written := 0
	missingFilms := map[string]struct{}{}
	missingEntities := map[string]struct{}{}

	err = store.ChunkRange(len(rels), s.batchSize, func(start, end int) error {
		rows := make([]any, 0, end-start)
		for _, r := range rels[start:end] {
			rows = append(rows, map[string]any{"film": r.FilmID, "name": r.Name})
		}
		recs, err := s.run(ctx, query, map[string]any{"rows": rows})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", kind, err)
		}
		for _, rec := range recs {
			filmFound, entityFound := rec.Bool("film_found"), rec.Bool("entity_found")
			if filmFound && entityFound {
				written++
				continue
			}
			if !filmFound {
				missingFilms[rec.String("film")] = struct{}{}
			}
			if !entityFound {
				missingEntities[rec.String("name")] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	if len(missingFilms) > 0 || len(missingEntities) > 0 {
		merr := &common.MissingNodesError{
			Kind:     kind,
			Films:    sortedKeys(missingFilms),
			Entities: sortedKeys(missingEntities),
		}
		logger.Warn("[Materialize] relationship rows skipped", "kind", kind, "films", len(merr.Films), "entities", len(merr.Entities))
		return written, merr
	}
	return written, nil
}

func derivedQuery(kind common.RelationshipKind) (string, error) {
	relType, err := relationshipType(kind)
	if err != nil {
		return "", err
	}

	var extra string
	switch kind {
	case common.RelInfluencedBy:
	case common.RelCompetesWith:
		extra = " AND f1.year IS NOT NULL AND f1.year = f2.year"
	default:
		return "", fmt.Errorf("relationship %s is not derived", kind)
	}

	return fmt.Sprintf(`
MATCH (d1:Director)-[:DIRECTED_BY]->(f1:Film)-[:HAS_GENRE]->(:Genre)<-[:HAS_GENRE]-(f2:Film)<-[:DIRECTED_BY]-(d2:Director)
WHERE d1 <> d2%s
WITH DISTINCT d1, d2
MERGE (d1)-[:%s]->(d2)
RETURN count(*) AS n`, extra, relType), nil
}

func (s *GraphStorage) DeriveDirectorRelationships(ctx context.Context, kind common.RelationshipKind) (int64, error) {
	query, err := derivedQuery(kind)
	if err != nil {
		return 0, err
	}
	recs, err := s.run(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("derive %s: %w", kind, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].Int("n"), nil
}

const (
	nodeCountsQuery = "MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS n"
	relCountsQuery  = "MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS n"
)

func (s *GraphStorage) Counts(ctx context.Context) (*common.GraphCounts, error) {
	counts := &common.GraphCounts{
		Nodes:         map[string]int64{},
		Relationships: map[string]int64{},
	}

	recs, err := s.read(ctx, nodeCountsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	for _, rec := range recs {
		counts.Nodes[rec.String("label")] = rec.Int("n")
	}

	recs, err = s.read(ctx, relCountsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	for _, rec := range recs {
		counts.Relationships[rec.String("type")] = rec.Int("n")
	}
	return counts, nil
}

// entityLabel renders a label only from the fixed set of kinds.
func entityLabel(kind common.EntityKind) (string, error) {
	switch kind {
	case common.KindActor, common.KindDirector, common.KindGenre:
		return kind.Label(), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

func relationshipType(kind common.RelationshipKind) (string, error) {
	switch kind {
	case common.RelActedIn, common.RelDirectedBy, common.RelHasGenre,
		common.RelInfluencedBy, common.RelCompetesWith:
		return string(kind), nil
	}
	return "", fmt.Errorf("unknown relationship kind %q", kind)
}

func countOf(recs []graphstore.Record) int {
	if len(recs) == 0 {
		return 0
	}
	return int(recs[0].Int("n"))
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
