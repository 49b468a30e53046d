package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/docstore/docstoretest"
	"github.com/filmgraph/backend/pkg/graphstore"
	"github.com/filmgraph/backend/pkg/graphstore/graphstoretest"
)

var fastRetry = util.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func newTestCatalog() (*Catalog, *docstoretest.Fake, *graphstoretest.Fake) {
	docs := docstoretest.New()
	graph := &graphstoretest.Fake{}
	return NewCatalog(docs, graph, WithRetryPolicy(fastRetry)), docs, graph
}

func TestCatalog_List(t *testing.T) {
	c, _, _ := newTestCatalog()
	entries := c.List()

	counts := map[Adapter]int{}
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.Name] {
			t.Fatalf("duplicate entry %s", e.Name)
		}
		seen[e.Name] = true
		counts[e.Adapter]++
		if e.Question == "" || e.OnEmpty == "" || e.Kind == "" || e.run == nil {
			t.Fatalf("entry %s is incomplete: %+v", e.Name, e)
		}
	}
	if counts[AdapterDocument] != 13 || counts[AdapterGraph] != 16 {
		t.Fatalf("unexpected entry counts %v", counts)
	}
	if entries[0].Adapter != AdapterDocument || entries[len(entries)-1].Adapter != AdapterGraph {
		t.Fatal("expected document entries before graph entries")
	}
}

func TestRun_EveryEntryEmptyOnZeroRows(t *testing.T) {
	c, _, _ := newTestCatalog()
	for _, e := range c.List() {
		t.Run(e.Name, func(t *testing.T) {
			res, err := c.Run(context.Background(), e.Name, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Empty {
				t.Fatalf("expected empty result, got %+v", res)
			}
			if res.Message == "" || strings.Contains(res.Message, "{") {
				t.Fatalf("unexpected message %q", res.Message)
			}
		})
	}
}

func TestRun_EmptyMessageUsesParams(t *testing.T) {
	c, _, _ := newTestCatalog()
	res, err := c.Run(context.Background(), "co-actors", map[string]string{"actor": "Nobody"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Message != "No co-actors found for Nobody." {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestRun_Params(t *testing.T) {
	c, _, _ := newTestCatalog()
	tests := []struct {
		name   string
		query  string
		params map[string]string
		field  string
	}{
		{name: "not an int", query: "releases-after-year", params: map[string]string{"year": "abc"}, field: "year"},
		{name: "not a number", query: "metascore-revenue-filter", params: map[string]string{"revenue": "lots"}, field: "revenue"},
		{name: "unknown", query: "year-most-releases", params: map[string]string{"limit": "3"}, field: "limit"},
		{name: "zero limit", query: "most-connected-films", params: map[string]string{"limit": "0"}, field: "limit"},
		{name: "negative k", query: "top-rated-per-decade", params: map[string]string{"k": "-1"}, field: "k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.query, tt.params)
			var verr *common.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Fatalf("expected field %s in %v", tt.field, verr.Fields)
			}
		})
	}
}

func TestRun_UnknownQuery(t *testing.T) {
	c, _, _ := newTestCatalog()
	if _, err := c.Run(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownQuery) {
		t.Fatalf("expected ErrUnknownQuery, got %v", err)
	}
}

func TestRun_MissingStore(t *testing.T) {
	c := NewCatalog(nil, &graphstoretest.Fake{})
	if _, err := c.Run(context.Background(), "distinct-genres", nil); err == nil {
		t.Fatal("expected error without a document store")
	}
}

func TestRun_RetriesConnectionErrors(t *testing.T) {
	c, docs, _ := newTestCatalog()
	calls := 0
	docs.AggregateFunc = func(p mongo.Pipeline) ([]bson.Raw, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("aggregate: %w", common.ErrConnection)
		}
		return docstoretest.Rows(bson.M{"year": int64(2000), "count": int32(2)}), nil
	}

	res, err := c.Run(context.Background(), "year-most-releases", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if rows := res.Rows.([]YearCount); rows[0].Year != 2000 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRun_DoesNotRetryOtherErrors(t *testing.T) {
	c, _, graph := newTestCatalog()
	graph.Handler = func(call graphstoretest.Call) ([]graphstore.Record, error) {
		return nil, errors.New("syntax error")
	}
	if _, err := c.Run(context.Background(), "actor-most-films", nil); err == nil {
		t.Fatal("expected error")
	}
	if len(graph.Calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(graph.Calls))
	}
}

func TestRun_Tracer(t *testing.T) {
	trace := NewQueryTrace()
	docs := docstoretest.New()
	c := NewCatalog(docs, nil, WithTracer(trace))
	docs.AggregateFunc = func(p mongo.Pipeline) ([]bson.Raw, error) {
		return docstoretest.Rows(bson.M{"genre": "Action"}), nil
	}

	if _, err := c.Run(context.Background(), "distinct-genres", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := trace.Snapshot()
	if len(snap.Statements) != 1 || snap.Statements[0].Adapter != AdapterDocument || snap.Statements[0].Rows != 1 {
		t.Fatalf("unexpected trace %+v", snap)
	}
}

func TestRun_ContextTracer(t *testing.T) {
	base := NewQueryTrace()
	docs := docstoretest.New()
	c := NewCatalog(docs, nil, WithTracer(base))
	docs.AggregateFunc = func(p mongo.Pipeline) ([]bson.Raw, error) {
		return docstoretest.Rows(bson.M{"genre": "Action"}, bson.M{"genre": "Drama"}), nil
	}

	perCall := NewQueryTrace()
	if _, err := c.Run(ContextWithTracer(context.Background(), perCall), "distinct-genres", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := c.Run(context.Background(), "distinct-genres", nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := len(base.Snapshot().Statements); got != 2 {
		t.Fatalf("expected the catalog tracer to see both runs, got %d statements", got)
	}
	snap := perCall.Snapshot()
	if len(snap.Statements) != 1 || snap.Statements[0].Rows != 2 {
		t.Fatalf("expected only the traced run, got %+v", snap)
	}
}

func TestTracerFrom(t *testing.T) {
	base := NewQueryTrace()
	if got := tracerFrom(context.Background(), base); got != Tracer(base) {
		t.Fatalf("expected the base tracer without a context tracer, got %T", got)
	}
	extra := NewQueryTrace()
	ctx := ContextWithTracer(context.Background(), extra)
	if got := tracerFrom(ctx, nil); got != Tracer(extra) {
		t.Fatalf("expected the context tracer alone, got %T", got)
	}
	if _, ok := tracerFrom(ctx, base).(MultiTracer); !ok {
		t.Fatal("expected both tracers to be combined")
	}
}

func TestJSONSchema(t *testing.T) {
	c, _, _ := newTestCatalog()
	for _, d := range c.Describe() {
		if d.Schema == nil {
			t.Fatalf("entry %s has no schema", d.Name)
		}
	}

	e, _ := c.Get("year-most-releases")
	s := e.JSONSchema()
	for _, key := range []string{"year", "count"} {
		if _, ok := s.Properties.Get(key); !ok {
			t.Fatalf("expected property %s", key)
		}
	}
}

func TestParams_Resolve(t *testing.T) {
	e := &Entry{Params: []Param{intParam("limit", "5"), stringParam("actor", "Anne Hathaway")}}
	got, err := e.resolveParams(map[string]string{"limit": " 7 ", "actor": "  "})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Params{"limit": "7", "actor": "Anne Hathaway"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
