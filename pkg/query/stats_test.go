package query

import (
	"math"
	"reflect"
	"testing"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name   string
		xs, ys []float64
		want   float64
		ok     bool
	}{
		{name: "positive", xs: []float64{1, 2, 3}, ys: []float64{2, 4, 6}, want: 1, ok: true},
		{name: "negative", xs: []float64{1, 2, 3}, ys: []float64{3, 2, 1}, want: -1, ok: true},
		{name: "uncorrelated", xs: []float64{1, 2, 3, 4}, ys: []float64{1, -1, -1, 1}, want: 0, ok: true},
		{name: "empty"},
		{name: "single", xs: []float64{1}, ys: []float64{1}},
		{name: "zero variance", xs: []float64{2, 2, 2}, ys: []float64{1, 2, 3}},
		{name: "mismatched", xs: []float64{1, 2}, ys: []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pearson(tt.xs, tt.ys)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCommunities(t *testing.T) {
	edges := [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}, {"D", "E"}, {"F", "F"}, {"C", "A"}}
	got := Communities(edges)
	want := []Community{
		{Label: "A", Size: 3, Members: []string{"A", "B", "C"}},
		{Label: "D", Size: 2, Members: []string{"D", "E"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	again := Communities(edges)
	if !reflect.DeepEqual(got, again) {
		t.Fatal("expected deterministic communities")
	}
}

func TestCommunities_TwoCliquesWithBridge(t *testing.T) {
	edges := [][2]string{
		{"a1", "a2"}, {"a1", "a3"}, {"a1", "a4"}, {"a2", "a3"}, {"a2", "a4"}, {"a3", "a4"},
		{"b1", "b2"}, {"b1", "b3"}, {"b1", "b4"}, {"b2", "b3"}, {"b2", "b4"}, {"b3", "b4"},
		{"a4", "b1"},
	}
	got := Communities(edges)
	want := []Community{
		{Label: "a1", Size: 4, Members: []string{"a1", "a2", "a3", "a4"}},
		{Label: "b1", Size: 4, Members: []string{"b1", "b2", "b3", "b4"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCommunities_Empty(t *testing.T) {
	if got := Communities(nil); len(got) != 0 {
		t.Fatalf("expected no communities, got %+v", got)
	}
	if got := Communities([][2]string{{"A", "A"}}); len(got) != 0 {
		t.Fatalf("self loops form no communities, got %+v", got)
	}
}
