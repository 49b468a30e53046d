package query

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/filmgraph/backend/pkg/graphstore"
	"github.com/filmgraph/backend/pkg/graphstore/graphstoretest"
)

func TestCoActors_BindsActor(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return []graphstore.Record{{"actor": "Emily Blunt"}, {"actor": "Meryl Streep"}}, nil
	}

	res, err := c.Run(context.Background(), "co-actors", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Rows.([]string); !reflect.DeepEqual(got, []string{"Emily Blunt", "Meryl Streep"}) {
		t.Fatalf("unexpected rows %v", got)
	}

	call := graph.Calls[0]
	if !call.Read {
		t.Fatal("expected read routing")
	}
	if call.Params["actor"] != "Anne Hathaway" {
		t.Fatalf("expected default actor param, got %v", call.Params)
	}
	if strings.Contains(call.Query, "Anne Hathaway") {
		t.Fatal("actor must be bound, not interpolated")
	}
}

func TestGenreRecommendations_BindsParams(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return []graphstore.Record{{"id": "f9", "title": "Cast Away", "shared": int64(2)}}, nil
	}

	res, err := c.Run(context.Background(), "genre-recommendations", map[string]string{"actor": "Tom Hanks", "limit": "3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []Recommendation{{ID: "f9", Title: "Cast Away", SharedGenres: 2}}
	if got := res.Rows.([]Recommendation); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rows %+v", got)
	}
	if p := graph.Calls[0].Params; p["actor"] != "Tom Hanks" || p["limit"] != int64(3) {
		t.Fatalf("unexpected params %v", p)
	}
}

func TestCoActorFilms_SortsCoActors(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return []graphstore.Record{{"id": "f2", "title": "Interstellar", "co_actors": []any{"Michael Caine", "Jessica Chastain"}}}, nil
	}
	res, err := c.Run(context.Background(), "co-actor-films", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := res.Rows.([]CoActorFilm)
	if !reflect.DeepEqual(got[0].CoActors, []string{"Jessica Chastain", "Michael Caine"}) {
		t.Fatalf("unexpected co-actors %v", got[0].CoActors)
	}
}

func TestAverageVotes(t *testing.T) {
	tests := []struct {
		name      string
		rec       graphstore.Record
		wantEmpty bool
	}{
		{name: "films", rec: graphstore.Record{"average": 1200.5, "films": int64(4)}},
		{name: "no films", rec: graphstore.Record{"average": nil, "films": int64(0)}, wantEmpty: true},
		{name: "no votes", rec: graphstore.Record{"average": nil, "films": int64(3)}, wantEmpty: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, graph := newTestCatalog()
			graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
				return []graphstore.Record{tt.rec}, nil
			}
			res, err := c.Run(context.Background(), "average-votes", nil)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Empty != tt.wantEmpty {
				t.Fatalf("expected empty=%v, got %+v", tt.wantEmpty, res)
			}
			if !tt.wantEmpty && res.Value.(VotesSummary).Average != 1200.5 {
				t.Fatalf("unexpected value %+v", res.Value)
			}
		})
	}
}

func TestShortestActorPath(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return []graphstore.Record{{"steps": []any{
			map[string]any{"labels": []any{"Actor"}, "name": "Tom Hanks"},
			map[string]any{"labels": []any{"Film"}, "title": "Cloud Atlas", "id": "f7"},
			map[string]any{"labels": []any{"Actor"}, "name": "Halle Berry"},
		}}}, nil
	}

	res, err := c.Run(context.Background(), "shortest-actor-path", map[string]string{"to": "Halle Berry"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []PathStep{
		{Kind: StepActor, Name: "Tom Hanks"},
		{Kind: StepFilm, Name: "Cloud Atlas", ID: "f7"},
		{Kind: StepActor, Name: "Halle Berry"},
	}
	if res.Kind != KindPath || !reflect.DeepEqual(res.Path, want) {
		t.Fatalf("unexpected path %+v", res.Path)
	}
}

func TestShortestActorPath_SameActor(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		if strings.Contains(call.Query, "shortestPath") {
			t.Fatal("shortestPath must not run for identical endpoints")
		}
		return []graphstore.Record{{"name": "Tom Hanks"}}, nil
	}

	res, err := c.Run(context.Background(), "shortest-actor-path", map[string]string{"to": "Tom Hanks"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(res.Path, []PathStep{{Kind: StepActor, Name: "Tom Hanks"}}) {
		t.Fatalf("unexpected path %+v", res.Path)
	}
}

func TestActorCommunities(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return []graphstore.Record{
			{"source": "A", "target": "B"},
			{"source": "A", "target": "C"},
			{"source": "B", "target": "C"},
			{"source": "D", "target": "E"},
		}, nil
	}

	res, err := c.Run(context.Background(), "actor-communities", map[string]string{"min_size": "3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []Community{{Label: "A", Size: 3, Members: []string{"A", "B", "C"}}}
	if !reflect.DeepEqual(res.Groups, want) {
		t.Fatalf("unexpected groups %+v", res.Groups)
	}

	res, err = c.Run(context.Background(), "actor-communities", map[string]string{"min_size": "4"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Empty {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestDirectorPairsQuery(t *testing.T) {
	c, _, graph := newTestCatalog()
	if _, err := c.Run(context.Background(), "director-competition", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(graph.Matching("[:COMPETES_WITH]")) != 1 {
		t.Fatalf("expected a COMPETES_WITH read, got %+v", graph.Calls)
	}
}
