package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/graph"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs    []execCall
	affected int64
	row      pgx.Row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.affected == 0 {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

type runRow struct {
	run    Run
	report []byte
}

func (r runRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.run.ID
	*(dest[1].(*string)) = r.run.Target
	*(dest[2].(*[]string)) = r.run.Passes
	*(dest[3].(*string)) = string(r.run.Status)
	*(dest[4].(*time.Time)) = r.run.StartedAt
	*(dest[5].(**time.Time)) = r.run.FinishedAt
	*(dest[6].(*[]byte)) = r.report
	if r.run.Error != "" {
		msg := r.run.Error
		*(dest[7].(**string)) = &msg
	}
	return nil
}

func TestStartFinish(t *testing.T) {
	db := &fakeDB{affected: 1}
	l := NewWithDB(db)
	ctx := context.Background()

	id, err := l.Start(ctx, "neo4j://localhost:7687", graph.DefaultPasses)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Fatal("expected a run id")
	}
	passes := db.execs[0].args[2].([]string)
	if len(passes) != 3 || passes[0] != "films" {
		t.Fatalf("unexpected passes %v", passes)
	}

	report := &graph.Report{
		Before: &common.GraphCounts{Nodes: map[string]int64{}, Relationships: map[string]int64{}},
		After:  &common.GraphCounts{Nodes: map[string]int64{"Film": 3, "Genre": 5}, Relationships: map[string]int64{"HAS_GENRE": 7}},
	}
	if err := l.Finish(ctx, id, report, errors.New("bad\x00byte")); err != nil {
		t.Fatalf("finish: %v", err)
	}

	args := db.execs[1].args
	if args[1] != string(StatusFailed) {
		t.Fatalf("expected failed status, got %v", args[1])
	}
	if msg := args[3].(*string); *msg != "badbyte" {
		t.Fatalf("expected sanitized error, got %q", *msg)
	}
	if nodes := args[6].(*int64); *nodes != 8 {
		t.Fatalf("expected 8 nodes after, got %d", *nodes)
	}
	var decoded graph.Report
	if err := json.Unmarshal(args[2].([]byte), &decoded); err != nil {
		t.Fatalf("report is not json: %v", err)
	}
}

func TestFinish_TruncatesLongErrors(t *testing.T) {
	db := &fakeDB{affected: 1}
	l := NewWithDB(db)

	long := errors.New(strings.Repeat("x", maxErrorLen+100))
	if err := l.Finish(context.Background(), "r1", nil, long); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if msg := db.execs[0].args[3].(*string); len(*msg) != maxErrorLen {
		t.Fatalf("expected %d bytes of error text, got %d", maxErrorLen, len(*msg))
	}
}

func TestFinish_UnknownRun(t *testing.T) {
	l := NewWithDB(&fakeDB{})
	if err := l.Finish(context.Background(), "missing", nil, nil); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestGet(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report, _ := json.Marshal(graph.Report{Passes: []graph.PassReport{{Pass: graph.PassFilms, Written: 3}}})
	db := &fakeDB{row: runRow{
		run:    Run{ID: "r1", Target: "t", Passes: []string{"films"}, Status: StatusSucceeded, StartedAt: started},
		report: report,
	}}

	run, err := NewWithDB(db).Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusSucceeded || run.Report == nil || run.Report.Passes[0].Written != 3 {
		t.Fatalf("unexpected run %+v", run)
	}

	db.row = errRow{err: pgx.ErrNoRows}
	if _, err := NewWithDB(db).Get(context.Background(), "r2"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
