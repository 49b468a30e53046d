package query

import (
	"context"
	"slices"
	"sort"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/graphstore"
)

type ActorCount struct {
	Actor string `json:"actor"`
	Count int64  `json:"count"`
}

type ActorRevenue struct {
	Actor string  `json:"actor"`
	Total float64 `json:"total_revenue"`
}

type GenreCount struct {
	Genre string `json:"genre"`
	Films int64  `json:"films"`
}

type DirectorActors struct {
	Director string `json:"director"`
	Actors   int64  `json:"actors"`
}

type ActorDirectors struct {
	Actor     string `json:"actor"`
	Directors int64  `json:"directors"`
}

type FilmPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Shared int64  `json:"shared"`
}

type CoActorFilm struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	CoActors []string `json:"co_actors"`
}

type Recommendation struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SharedGenres int64  `json:"shared_genres"`
}

type GenrePair struct {
	Genre  string `json:"genre"`
	First  string `json:"first"`
	Second string `json:"second"`
}

type Collaboration struct {
	Director       string   `json:"director"`
	Actor          string   `json:"actor"`
	Films          int64    `json:"films"`
	AverageRevenue *float64 `json:"average_revenue"`
	AverageRating  *float64 `json:"average_rating"`
}

type DirectorPair struct {
	Director string `json:"director"`
	Other    string `json:"other"`
}

type VotesSummary struct {
	Average float64 `json:"average"`
	Films   int64   `json:"films"`
}

// PathStep is one node of a path, either an actor or a film.
type PathStep struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

const (
	StepActor = "actor"
	StepFilm  = "film"
)

const (
	actorMostFilmsQuery = `
MATCH (a:Actor)-[:ACTED_IN]->(f:Film)
WITH a.name AS actor, count(DISTINCT f) AS films
RETURN actor, films
ORDER BY films DESC, actor ASC
LIMIT 1`

	coActorsQuery = `
MATCH (a:Actor {name: $actor})-[:ACTED_IN]->(:Film)<-[:ACTED_IN]-(co:Actor)
WHERE co <> a
RETURN DISTINCT co.name AS actor
ORDER BY actor ASC`

	coActorFilmsQuery = `
MATCH (a:Actor {name: $actor})-[:ACTED_IN]->(:Film)<-[:ACTED_IN]-(co:Actor)
WHERE co <> a
MATCH (co)-[:ACTED_IN]->(other:Film)
WHERE NOT (a)-[:ACTED_IN]->(other)
RETURN other.id AS id, other.title AS title, collect(DISTINCT co.name) AS co_actors
ORDER BY title ASC, id ASC`

	actorHighestRevenueQuery = `
MATCH (a:Actor)-[:ACTED_IN]->(f:Film)
WITH a.name AS actor, sum(coalesce(f.revenue, 0.0)) AS total
RETURN actor, total
ORDER BY total DESC, actor ASC
LIMIT 1`

	averageVotesQuery = `
MATCH (f:Film)
RETURN avg(f.votes) AS average, count(f) AS films`

	mostCommonGenreQuery = `
MATCH (f:Film)-[:HAS_GENRE]->(g:Genre)
WITH g.name AS genre, count(DISTINCT f) AS films
RETURN genre, films
ORDER BY films DESC, genre ASC
LIMIT 1`

	directorMostActorsQuery = `
MATCH (d:Director)-[:DIRECTED_BY]->(f:Film)<-[:ACTED_IN]-(a:Actor)
WITH d.name AS director, count(DISTINCT a) AS actors
RETURN director, actors
ORDER BY actors DESC, director ASC
LIMIT 1`

	mostConnectedFilmsQuery = `
MATCH (f1:Film)<-[:ACTED_IN]-(a:Actor)-[:ACTED_IN]->(f2:Film)
WHERE f1.id < f2.id
WITH f1, f2, count(DISTINCT a) AS shared
WITH CASE WHEN f1.title <= f2.title THEN [f1.title, f2.title] ELSE [f2.title, f1.title] END AS pair, shared
RETURN pair[0] AS first, pair[1] AS second, shared
ORDER BY shared DESC, first ASC, second ASC
LIMIT $limit`

	actorsMostDirectorsQuery = `
MATCH (a:Actor)-[:ACTED_IN]->(:Film)<-[:DIRECTED_BY]-(d:Director)
WITH a.name AS actor, count(DISTINCT d) AS directors
RETURN actor, directors
ORDER BY directors DESC, actor ASC
LIMIT $limit`

	genreRecommendationsQuery = `
MATCH (a:Actor {name: $actor})-[:ACTED_IN]->(:Film)-[:HAS_GENRE]->(g:Genre)
WITH a, collect(DISTINCT g) AS genres
MATCH (rec:Film)-[:HAS_GENRE]->(g:Genre)
WHERE g IN genres AND NOT (a)-[:ACTED_IN]->(rec)
WITH rec, count(DISTINCT g) AS shared
RETURN rec.id AS id, rec.title AS title, shared
ORDER BY shared DESC, title ASC
LIMIT $limit`

	shortestActorPathQuery = `
MATCH (from:Actor {name: $from}), (to:Actor {name: $to})
MATCH p = shortestPath((from)-[:ACTED_IN*]-(to))
RETURN [n IN nodes(p) | {labels: labels(n), name: n.name, title: n.title, id: n.id}] AS steps`

	actorExistsQuery = `
MATCH (a:Actor {name: $from})
RETURN a.name AS name`

	coActingEdgesQuery = `
MATCH (a1:Actor)-[:ACTED_IN]->(:Film)<-[:ACTED_IN]-(a2:Actor)
WHERE a1.name < a2.name
RETURN DISTINCT a1.name AS source, a2.name AS target`

	sharedGenreFilmsQuery = `
MATCH (f1:Film)-[:HAS_GENRE]->(g:Genre)<-[:HAS_GENRE]-(f2:Film)
WHERE f1.id < f2.id
  AND f1.director IS NOT NULL AND f2.director IS NOT NULL
  AND f1.director <> f2.director
WITH g.name AS genre, CASE WHEN f1.title <= f2.title THEN [f1.title, f2.title] ELSE [f2.title, f1.title] END AS pair
RETURN genre, pair[0] AS first, pair[1] AS second
ORDER BY genre ASC, first ASC, second ASC
LIMIT $limit`

	collaborationsQuery = `
MATCH (d:Director)-[:DIRECTED_BY]->(f:Film)<-[:ACTED_IN]-(a:Actor)
WITH d.name AS director, a.name AS actor, count(DISTINCT f) AS films,
     avg(f.revenue) AS avg_revenue, avg(f.rating) AS avg_rating
RETURN director, actor, films, avg_revenue, avg_rating
ORDER BY films DESC, director ASC, actor ASC
LIMIT $limit`
)

// directorPairsQuery reads a derived relationship. The type comes from the
// fixed relationship enum.
func directorPairsQuery(kind common.RelationshipKind) string {
	return `
MATCH (d1:Director)-[:` + string(kind) + `]->(d2:Director)
RETURN d1.name AS director, d2.name AS other
ORDER BY director ASC, other ASC
LIMIT $limit`
}

// readRows runs a read statement and maps every record. No records is
// ErrEmptyResult.
func readRows[T any](ctx context.Context, v *env, query string, params map[string]any, fn func(graphstore.Record) T) ([]T, error) {
	recs, err := v.read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrEmptyResult
	}
	out := make([]T, len(recs))
	for i, rec := range recs {
		out[i] = fn(rec)
	}
	return out, nil
}

func optionalFloat(rec graphstore.Record, key string) *float64 {
	f, ok := rec.Float(key)
	if !ok {
		return nil
	}
	return &f
}

func traversalEntries() []*Entry {
	entries := []*Entry{
		{
			Name:     "actor-most-films",
			Question: "Which actor appeared in the most films?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, name asc",
			OnEmpty:  "No ACTED_IN relationships in the graph.",
			Kind:     KindRecords,
			Shape:    ActorCount{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := readRows(ctx, v, actorMostFilmsQuery, nil, func(r graphstore.Record) ActorCount {
					return ActorCount{Actor: r.String("actor"), Count: r.Int("films")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "co-actors",
			Question: "Who has acted alongside a given actor?",
			Adapter:  AdapterGraph,
			TieBreak: "name asc",
			OnEmpty:  "No co-actors found for {actor}.",
			Params:   []Param{stringParam("actor", "Anne Hathaway")},
			Kind:     KindRecords,
			Shape:    "",
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				actor, err := required(p, "actor")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, coActorsQuery, map[string]any{"actor": actor}, func(r graphstore.Record) string {
					return r.String("actor")
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "co-actor-films",
			Question: "Which other films did a given actor's co-actors appear in?",
			Adapter:  AdapterGraph,
			TieBreak: "title asc",
			OnEmpty:  "No other films of {actor}'s co-actors.",
			Params:   []Param{stringParam("actor", "Anne Hathaway")},
			Kind:     KindRecords,
			Shape:    CoActorFilm{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				actor, err := required(p, "actor")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, coActorFilmsQuery, map[string]any{"actor": actor}, func(r graphstore.Record) CoActorFilm {
					co := slices.Clone(r.Strings("co_actors"))
					sort.Strings(co)
					return CoActorFilm{ID: r.String("id"), Title: r.String("title"), CoActors: co}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "actor-highest-revenue",
			Question: "Which actor's films earned the highest total revenue?",
			Adapter:  AdapterGraph,
			TieBreak: "total desc, name asc",
			OnEmpty:  "No ACTED_IN relationships in the graph.",
			Kind:     KindRecords,
			Shape:    ActorRevenue{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := readRows(ctx, v, actorHighestRevenueQuery, nil, func(r graphstore.Record) ActorRevenue {
					total, _ := r.Float("total")
					return ActorRevenue{Actor: r.String("actor"), Total: total}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "average-votes",
			Question: "What is the average number of votes across all films?",
			Adapter:  AdapterGraph,
			OnEmpty:  "No Film nodes with votes in the graph.",
			Kind:     KindScalar,
			Shape:    VotesSummary{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				recs, err := v.read(ctx, averageVotesQuery, nil)
				if err != nil {
					return nil, err
				}
				if len(recs) == 0 || recs[0].Int("films") == 0 {
					return nil, common.ErrEmptyResult
				}
				avg, ok := recs[0].Float("average")
				if !ok {
					return nil, common.ErrEmptyResult
				}
				return scalar(VotesSummary{Average: avg, Films: recs[0].Int("films")}), nil
			},
		},
		{
			Name:     "most-common-genre",
			Question: "Which genre has the most films?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, name asc",
			OnEmpty:  "No HAS_GENRE relationships in the graph.",
			Kind:     KindRecords,
			Shape:    GenreCount{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := readRows(ctx, v, mostCommonGenreQuery, nil, func(r graphstore.Record) GenreCount {
					return GenreCount{Genre: r.String("genre"), Films: r.Int("films")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "director-most-actors",
			Question: "Which director worked with the most distinct actors?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, name asc",
			OnEmpty:  "No director shares a film with an actor.",
			Kind:     KindRecords,
			Shape:    DirectorActors{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := readRows(ctx, v, directorMostActorsQuery, nil, func(r graphstore.Record) DirectorActors {
					return DirectorActors{Director: r.String("director"), Actors: r.Int("actors")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "most-connected-films",
			Question: "Which film pairs share the most actors?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, titles asc",
			OnEmpty:  "No films share an actor.",
			Params:   []Param{intParam("limit", "5")},
			Kind:     KindRecords,
			Shape:    FilmPair{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, mostConnectedFilmsQuery, map[string]any{"limit": limit}, func(r graphstore.Record) FilmPair {
					return FilmPair{First: r.String("first"), Second: r.String("second"), Shared: r.Int("shared")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "actors-most-directors",
			Question: "Which actors worked with the most distinct directors?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, name asc",
			OnEmpty:  "No actor shares a film with a director.",
			Params:   []Param{intParam("limit", "5")},
			Kind:     KindRecords,
			Shape:    ActorDirectors{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, actorsMostDirectorsQuery, map[string]any{"limit": limit}, func(r graphstore.Record) ActorDirectors {
					return ActorDirectors{Actor: r.String("actor"), Directors: r.Int("directors")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "genre-recommendations",
			Question: "Which films share genres with a given actor's films without featuring them?",
			Adapter:  AdapterGraph,
			TieBreak: "shared genres desc, title asc",
			OnEmpty:  "No recommendations for {actor}.",
			Params:   []Param{stringParam("actor", "Tom Hanks"), intParam("limit", "5")},
			Kind:     KindRecords,
			Shape:    Recommendation{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				actor, err := required(p, "actor")
				if err != nil {
					return nil, err
				}
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, genreRecommendationsQuery, map[string]any{"actor": actor, "limit": limit}, func(r graphstore.Record) Recommendation {
					return Recommendation{ID: r.String("id"), Title: r.String("title"), SharedGenres: r.Int("shared")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "shortest-actor-path",
			Question: "What is the shortest chain of films connecting two actors?",
			Adapter:  AdapterGraph,
			OnEmpty:  "No path between {from} and {to}.",
			Params:   []Param{stringParam("from", "Tom Hanks"), stringParam("to", "Scarlett Johansson")},
			Kind:     KindPath,
			Shape:    PathStep{},
			run:      runShortestPath,
		},
		{
			Name:     "actor-communities",
			Question: "Which communities form in the co-acting network?",
			Adapter:  AdapterGraph,
			TieBreak: "community size desc, label asc",
			OnEmpty:  "No communities of at least {min_size} actors.",
			Params:   []Param{intParam("min_size", "2"), intParam("limit", "10")},
			Kind:     KindGroups,
			Shape:    Community{},
			run:      runCommunities,
		},
		{
			Name:     "shared-genre-films",
			Question: "Which films share a genre but have different directors?",
			Adapter:  AdapterGraph,
			TieBreak: "genre, titles asc",
			OnEmpty:  "No films share a genre across directors.",
			Params:   []Param{intParam("limit", "25")},
			Kind:     KindRecords,
			Shape:    GenrePair{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, sharedGenreFilmsQuery, map[string]any{"limit": limit}, func(r graphstore.Record) GenrePair {
					return GenrePair{Genre: r.String("genre"), First: r.String("first"), Second: r.String("second")}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "director-actor-collaborations",
			Question: "Which director and actor pairs collaborated most often?",
			Adapter:  AdapterGraph,
			TieBreak: "count desc, names asc",
			OnEmpty:  "No director shares a film with an actor.",
			Params:   []Param{intParam("limit", "5")},
			Kind:     KindRecords,
			Shape:    Collaboration{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := readRows(ctx, v, collaborationsQuery, map[string]any{"limit": limit}, func(r graphstore.Record) Collaboration {
					return Collaboration{
						Director:       r.String("director"),
						Actor:          r.String("actor"),
						Films:          r.Int("films"),
						AverageRevenue: optionalFloat(r, "avg_revenue"),
						AverageRating:  optionalFloat(r, "avg_rating"),
					}
				})
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
	}

	entries = append(entries,
		directorPairsEntry("director-influences", common.RelInfluencedBy,
			"Which directors influenced each other through shared genres?"),
		directorPairsEntry("director-competition", common.RelCompetesWith,
			"Which directors competed in the same genre and year?"),
	)
	return entries
}

func directorPairsEntry(name string, kind common.RelationshipKind, question string) *Entry {
	query := directorPairsQuery(kind)
	return &Entry{
		Name:     name,
		Question: question,
		Adapter:  AdapterGraph,
		TieBreak: "names asc",
		OnEmpty:  "No " + string(kind) + " relationships; run the derived materialization pass.",
		Params:   []Param{intParam("limit", "50")},
		Kind:     KindRecords,
		Shape:    DirectorPair{},
		run: func(ctx context.Context, v *env, p Params) (*Result, error) {
			limit, err := positive(p, "limit")
			if err != nil {
				return nil, err
			}
			rows, err := readRows(ctx, v, query, map[string]any{"limit": limit}, func(r graphstore.Record) DirectorPair {
				return DirectorPair{Director: r.String("director"), Other: r.String("other")}
			})
			if err != nil {
				return nil, err
			}
			return records(rows), nil
		},
	}
}

func runShortestPath(ctx context.Context, v *env, p Params) (*Result, error) {
	from, err := required(p, "from")
	if err != nil {
		return nil, err
	}
	to, err := required(p, "to")
	if err != nil {
		return nil, err
	}

	if from == to {
		recs, err := v.read(ctx, actorExistsQuery, map[string]any{"from": from})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, common.ErrEmptyResult
		}
		return &Result{Path: []PathStep{{Kind: StepActor, Name: from}}}, nil
	}

	recs, err := v.read(ctx, shortestActorPathQuery, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrEmptyResult
	}
	steps := decodePath(recs[0].Maps("steps"))
	if len(steps) == 0 {
		return nil, common.ErrEmptyResult
	}
	return &Result{Path: steps}, nil
}

func decodePath(nodes []map[string]any) []PathStep {
	steps := make([]PathStep, 0, len(nodes))
	for _, n := range nodes {
		rec := graphstore.Record(n)
		if slices.Contains(rec.Strings("labels"), common.FilmLabel) {
			steps = append(steps, PathStep{Kind: StepFilm, Name: rec.String("title"), ID: rec.String("id")})
			continue
		}
		steps = append(steps, PathStep{Kind: StepActor, Name: rec.String("name")})
	}
	return steps
}

func runCommunities(ctx context.Context, v *env, p Params) (*Result, error) {
	minSize, err := positive(p, "min_size")
	if err != nil {
		return nil, err
	}
	limit, err := positive(p, "limit")
	if err != nil {
		return nil, err
	}

	edges, err := readRows(ctx, v, coActingEdgesQuery, nil, func(r graphstore.Record) [2]string {
		return [2]string{r.String("source"), r.String("target")}
	})
	if err != nil {
		return nil, err
	}

	var groups []Community
	for _, c := range Communities(edges) {
		if int64(len(c.Members)) >= minSize {
			groups = append(groups, c)
		}
	}
	if len(groups) == 0 {
		return nil, common.ErrEmptyResult
	}
	if int64(len(groups)) > limit {
		groups = groups[:limit]
	}
	return &Result{Groups: groups}, nil
}
