package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore/docstoretest"
	"github.com/filmgraph/backend/pkg/store/storetest"
)

func seedDocs() *docstoretest.Fake {
	docs := docstoretest.New()
	docs.Seed("f1", common.Film{
		Title:    "Guardians of the Galaxy",
		Genre:    "Action,Adventure,Sci-Fi",
		Director: "James Gunn",
		Actors:   "Chris Pratt, Vin Diesel, Bradley Cooper, Zoe Saldana",
		Year:     common.NewNullInt(2014),
	})
	docs.Seed("f2", common.Film{
		Title:    "Prometheus",
		Genre:    "Adventure,Mystery,Sci-Fi",
		Director: "Ridley Scott",
		Actors:   "Noomi Rapace, Logan Marshall-Green, Michael Fassbender, Charlize Theron",
		Year:     common.NewNullInt(2012),
	})
	docs.Seed("f3", common.Film{
		Title:    "Mindhorn",
		Genre:    "Comedy",
		Director: "Sean Foley",
		Actors:   "Essie Davis, Andrea Riseborough, Julian Barratt,Kenneth Branagh",
		Year:     common.NewNullInt(2016),
	})
	return docs
}

func newTestMaterializer(t *testing.T) *Materializer {
	t.Helper()
	m, err := NewMaterializer(NewMaterializerParams{BatchSize: 2})
	if err != nil {
		t.Fatalf("new materializer: %v", err)
	}
	return m
}

func TestRun_Idempotent(t *testing.T) {
	docs := seedDocs()
	mem := storetest.NewMemory()
	m := newTestMaterializer(t)
	ctx := context.Background()
	opts := RunOptions{Passes: []Pass{PassFilms, PassEntities, PassRelationships, PassDerived}}

	first, err := m.Run(ctx, docs, mem, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := m.Run(ctx, docs, mem, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first.After, second.After) {
		t.Fatalf("second run changed the graph: %+v vs %+v", first.After, second.After)
	}
	if !reflect.DeepEqual(second.Before, second.After) {
		t.Fatalf("expected second run to add nothing: %+v vs %+v", second.Before, second.After)
	}
	if got := first.After.Nodes[common.FilmLabel]; got != 3 {
		t.Fatalf("expected 3 films, got %d", got)
	}
	if got := first.After.Nodes["Genre"]; got != 5 {
		t.Fatalf("expected 5 genres, got %d", got)
	}
}

func TestRun_ActedInEdgesMatchTokens(t *testing.T) {
	docs := seedDocs()
	mem := storetest.NewMemory()
	m := newTestMaterializer(t)

	if _, err := m.Run(context.Background(), docs, mem, RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, films, _ := docs.List(context.Background(), 0)
	want := 0
	for _, f := range films {
		want += len(common.SplitList(f.Actors))
	}
	if got := len(mem.Edges(common.RelActedIn)); got != want {
		t.Fatalf("expected %d ACTED_IN edges, got %d", want, got)
	}
	if got := mem.Edges(common.RelDirectedBy); !reflect.DeepEqual(got, []string{"James Gunn->f1", "Ridley Scott->f2", "Sean Foley->f3"}) {
		t.Fatalf("unexpected DIRECTED_BY edges %v", got)
	}
	if got := mem.Edges(common.RelHasGenre); len(got) != 7 || got[0] != "f1->Action" {
		t.Fatalf("unexpected HAS_GENRE edges %v", got)
	}
}

func TestRun_GenreNodesFromSpacedLists(t *testing.T) {
	docs := docstoretest.New()
	docs.Seed("f1", common.Film{Title: "Rush Hour", Genre: "Action, Comedy", Director: "Brett Ratner"})
	docs.Seed("f2", common.Film{Title: "Tootsie", Genre: "Comedy, Drama", Director: "Sydney Pollack"})
	mem := storetest.NewMemory()

	if _, err := newTestMaterializer(t).Run(context.Background(), docs, mem, RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := mem.Entities(common.KindGenre); !reflect.DeepEqual(got, []string{"Action", "Comedy", "Drama"}) {
		t.Fatalf("unexpected genre nodes %v", got)
	}
	want := []string{"f1->Action", "f1->Comedy", "f2->Comedy", "f2->Drama"}
	if got := mem.Edges(common.RelHasGenre); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected HAS_GENRE edges %v", got)
	}
}

func TestRun_MissingFilmNode(t *testing.T) {
	docs := seedDocs()
	mem := storetest.NewMemory()
	m := newTestMaterializer(t)
	ctx := context.Background()

	if _, err := m.Run(ctx, docs, mem, RunOptions{Passes: []Pass{PassFilms, PassEntities}}); err != nil {
		t.Fatalf("run: %v", err)
	}

	docs.Seed("late", common.Film{Title: "Late", Genre: "Drama", Actors: "Chris Pratt"})
	_, err := m.Run(ctx, docs, mem, RunOptions{Passes: []Pass{PassRelationships}})
	if !errors.Is(err, common.ErrNodeMissing) {
		t.Fatalf("expected ErrNodeMissing, got %v", err)
	}
	var merr *common.MissingNodesError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MissingNodesError, got %T", err)
	}
	if _, ok := mem.Film("late"); ok {
		t.Fatal("relationship pass must not create film nodes")
	}
	for _, e := range mem.Edges(common.RelActedIn) {
		if e == "Chris Pratt->late" {
			t.Fatal("edge to a missing film was created")
		}
	}
}

func TestRun_RelationshipsRequireFilms(t *testing.T) {
	m := newTestMaterializer(t)
	_, err := m.Run(context.Background(), seedDocs(), storetest.NewMemory(), RunOptions{Passes: []Pass{PassRelationships}})
	if !errors.Is(err, ErrNoFilmNodes) {
		t.Fatalf("expected ErrNoFilmNodes, got %v", err)
	}
}

func TestRun_PartialFailureConverges(t *testing.T) {
	docs := seedDocs()
	mem := storetest.NewMemory()
	m := newTestMaterializer(t)
	ctx := context.Background()

	mem.FailOn["UpsertRelationships"] = fmt.Errorf("bolt: %w", common.ErrConnection)
	if _, err := m.Run(ctx, docs, mem, RunOptions{}); !errors.Is(err, common.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}

	report, err := m.Run(ctx, docs, mem, RunOptions{})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}

	clean := storetest.NewMemory()
	want, err := m.Run(ctx, docs, clean, RunOptions{})
	if err != nil {
		t.Fatalf("clean run: %v", err)
	}
	if !reflect.DeepEqual(report.After, want.After) {
		t.Fatalf("expected convergence, got %+v want %+v", report.After, want.After)
	}
}

func TestRun_DerivedRelationships(t *testing.T) {
	docs := seedDocs()
	docs.Seed("f4", common.Film{
		Title:    "Alien: Covenant",
		Genre:    "Sci-Fi",
		Director: "Ridley Scott",
		Year:     common.NewNullInt(2014),
	})
	mem := storetest.NewMemory()
	m := newTestMaterializer(t)

	report, err := m.Run(context.Background(), docs, mem, RunOptions{Passes: []Pass{PassFilms, PassEntities, PassRelationships, PassDerived}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	influenced := mem.Edges(common.RelInfluencedBy)
	if !reflect.DeepEqual(influenced, []string{"James Gunn->Ridley Scott", "Ridley Scott->James Gunn"}) {
		t.Fatalf("unexpected INFLUENCED_BY %v", influenced)
	}
	competes := mem.Edges(common.RelCompetesWith)
	if !reflect.DeepEqual(competes, []string{"James Gunn->Ridley Scott", "Ridley Scott->James Gunn"}) {
		t.Fatalf("unexpected COMPETES_WITH %v", competes)
	}
	last := report.Passes[len(report.Passes)-1]
	if last.Pass != PassDerived || last.Written != 4 {
		t.Fatalf("unexpected derived report %+v", last)
	}
}

func TestRun_OnPassCallback(t *testing.T) {
	m := newTestMaterializer(t)
	var seen []Pass
	_, err := m.Run(context.Background(), seedDocs(), storetest.NewMemory(), RunOptions{
		OnPass: func(pr PassReport) { seen = append(seen, pr.Pass) },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(seen, DefaultPasses) {
		t.Fatalf("expected %v, got %v", DefaultPasses, seen)
	}
}

func TestParsePasses(t *testing.T) {
	tests := []struct {
		in      string
		want    []Pass
		wantErr bool
	}{
		{in: "", want: DefaultPasses},
		{in: "all", want: passOrder},
		{in: "derived, films", want: []Pass{PassFilms, PassDerived}},
		{in: "Entities", want: []Pass{PassEntities}},
		{in: "films,teams", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePasses(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
