package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/filmgraph/backend/pkg/docstore/docstoretest"
)

type memLoader struct {
	data []byte
	err  error
}

func (m memLoader) GetFileText(ctx context.Context, file DatasetFile) ([]byte, error) {
	return m.data, m.err
}

const dataset = `{"_id": {"$oid": "5f1b2c"}, "Title": "Inception", "Genre": "Action, Sci-Fi", "Description": "Dreams", "Director": "Christopher Nolan", "Actors": "Leonardo DiCaprio, Tom Hardy", "Year": 2010, "Runtime (Minutes)": 148, "Rating": 8.8, "Votes": 1583625, "Revenue (Millions)": 292.57, "Metascore": 74}

{"title": "Arrival", "genre": "Drama, Sci-Fi", "description": "Language", "year": "2016", "revenue_millions": "", "rating": "unrated",}
{"title": "No Description", "genre": "Drama"}
this is not a film
`

func TestParse(t *testing.T) {
	records, errs := Parse([]byte(dataset))
	if len(records) != 3 {
		t.Fatalf("expected 3 decoded records, got %d (%v)", len(records), errs)
	}
	if len(errs) != 1 || errs[0].Line != 5 {
		t.Fatalf("expected one error on line 5, got %v", errs)
	}

	inception := records[0].Film
	if inception.Title != "Inception" || inception.Runtime.Float64 != 148 || inception.Revenue.Float64 != 292.57 {
		t.Fatalf("legacy keys not mapped: %+v", inception)
	}
	if records[0].Line != 1 || records[0].Repaired {
		t.Fatalf("unexpected record meta %+v", records[0])
	}

	arrival := records[1]
	if !arrival.Repaired || arrival.Line != 3 {
		t.Fatalf("expected repaired line 3, got %+v", arrival)
	}
	if arrival.Film.Year.Int64 != 2016 || arrival.Film.Revenue.Valid || !arrival.Film.Rating.Unrated {
		t.Fatalf("tolerant numerics not applied: %+v", arrival.Film)
	}
}

func TestParse_Array(t *testing.T) {
	data := `[{"title": "A", "genre": "Drama", "description": "a"}, 3, {"Title": "B", "Genre": "Comedy", "Description": "b"}]`
	records, errs := Parse([]byte(data))
	if len(records) != 2 || records[1].Film.Title != "B" {
		t.Fatalf("unexpected records %+v", records)
	}
	if len(errs) != 1 || errs[0].Line != 2 {
		t.Fatalf("expected element 2 to fail, got %v", errs)
	}
}

func TestCanonicalFields_CanonicalWins(t *testing.T) {
	records, _ := Parse([]byte(`{"title": "Canonical", "Title": "Legacy", "genre": "Drama", "description": "d"}`))
	if len(records) != 1 || records[0].Film.Title != "Canonical" {
		t.Fatalf("expected canonical title, got %+v", records)
	}
}

func TestImport(t *testing.T) {
	docs := docstoretest.New()
	file := NewDatasetFile("films", "films.json", memLoader{data: []byte(dataset)})

	report, err := Import(context.Background(), file, docs, ImportOptions{BatchSize: 1})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 2 || report.Repaired != 1 || report.Lines != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skipped lines, got %v", report.Skipped)
	}
	if docs.Calls["InsertMany"] != 2 {
		t.Fatalf("expected one insert per batch, got %d", docs.Calls["InsertMany"])
	}

	_, films, _ := docs.List(context.Background(), 0)
	if len(films) != 2 || films[1].Votes.Int64 != 0 || !films[1].Votes.Valid {
		t.Fatalf("expected defaults applied on insert, got %+v", films)
	}
}

func TestImport_InsertNotRetried(t *testing.T) {
	docs := docstoretest.New()
	docs.Err = errors.New("boom")
	file := NewDatasetFile("films", "films.json", memLoader{data: []byte(dataset)})

	if _, err := Import(context.Background(), file, docs, ImportOptions{}); err == nil {
		t.Fatal("expected insert error")
	}
	if docs.Calls["InsertMany"] != 1 {
		t.Fatalf("expected a single insert attempt, got %d", docs.Calls["InsertMany"])
	}
}

func TestImport_ReadError(t *testing.T) {
	file := NewDatasetFile("films", "missing.json", memLoader{err: errors.New("no such file")})
	_, err := Import(context.Background(), file, docstoretest.New(), ImportOptions{})
	if err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Fatalf("expected read error naming the dataset, got %v", err)
	}
}

func TestIsDatasetKey(t *testing.T) {
	tests := map[string]bool{
		"films.json":          true,
		"exports/films.JSONL": true,
		"films.ndjson":        true,
		"films.csv":           false,
	}
	for key, want := range tests {
		if got := IsDatasetKey(key); got != want {
			t.Fatalf("IsDatasetKey(%q) = %v, want %v", key, got, want)
		}
	}
}
