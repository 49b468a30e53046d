package cypher

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore/docstoretest"
	"github.com/filmgraph/backend/pkg/graph"
	neostore "github.com/filmgraph/backend/pkg/graphstore/neo4j"
)

// skipIfNoNeo4j connects to an empty test database. The database is wiped
// before and after the test.
func skipIfNoNeo4j(t *testing.T) *neostore.Client {
	t.Helper()
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" || testing.Short() {
		t.Skip("NEO4J_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := neostore.Connect(ctx, neostore.Options{
		URI:      uri,
		Username: os.Getenv("NEO4J_TEST_USERNAME"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	wipe := func() {
		if _, err := c.Run(context.Background(), "MATCH (n) DETACH DELETE n", nil); err != nil {
			t.Fatalf("wipe: %v", err)
		}
	}
	wipe()
	t.Cleanup(func() {
		wipe()
		_ = c.Close(context.Background())
	})
	return c
}

func TestMaterialize_Neo4jIdempotent(t *testing.T) {
	neo := skipIfNoNeo4j(t)
	ctx := context.Background()

	docs := docstoretest.New()
	docs.Seed("f1", common.Film{
		Title:    "Arrival",
		Genre:    "Drama,Mystery,Sci-Fi",
		Director: "Denis Villeneuve",
		Actors:   "Amy Adams, Jeremy Renner, Forest Whitaker, Michael Stuhlbarg",
		Year:     common.NewNullInt(2016),
	})
	docs.Seed("f2", common.Film{
		Title:    "Sicario",
		Genre:    "Action,Crime,Drama",
		Director: "Denis Villeneuve",
		Actors:   "Emily Blunt, Josh Brolin, Benicio Del Toro, Jon Bernthal",
		Year:     common.NewNullInt(2015),
	})

	m, err := graph.NewMaterializer(graph.NewMaterializerParams{BatchSize: 1})
	if err != nil {
		t.Fatalf("new materializer: %v", err)
	}
	storage := NewGraphStorage(neo)
	opts := graph.RunOptions{Passes: []graph.Pass{graph.PassFilms, graph.PassEntities, graph.PassRelationships}}

	first, err := m.Run(ctx, docs, storage, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got := first.After.Nodes[common.FilmLabel]; got != 2 {
		t.Fatalf("expected 2 film nodes, got %d", got)
	}

	second, err := m.Run(ctx, docs, storage, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first.After, second.After) {
		t.Fatalf("second run changed the graph: %+v -> %+v", first.After, second.After)
	}
}
