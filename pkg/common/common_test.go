package common

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "blank", in: "  ,  , ", want: []string{}},
		{name: "single", in: "Drama", want: []string{"Drama"}},
		{name: "trims tokens", in: " Action ,Comedy,  Drama", want: []string{"Action", "Comedy", "Drama"}},
		{name: "drops empty tokens", in: "Action,,Comedy,", want: []string{"Action", "Comedy"}},
		{name: "keeps duplicates", in: "A, B, A", want: []string{"A", "B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitList(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitList(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDistinctList_ExactMatch(t *testing.T) {
	got := DistinctList("Chris Pratt, chris pratt, Chris Pratt ,Zoe Saldana")
	want := []string{"Chris Pratt", "chris pratt", "Zoe Saldana"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEntityKindNames(t *testing.T) {
	f := Film{
		Title:    "Prisoners",
		Genre:    "Crime, Drama,Mystery",
		Director: "Denis Villeneuve",
		Actors:   "Hugh Jackman, Jake Gyllenhaal, , Viola Davis",
	}

	if got := KindActor.Names(f); len(got) != 3 {
		t.Fatalf("expected 3 actors, got %v", got)
	}
	if got := KindGenre.Names(f); !reflect.DeepEqual(got, []string{"Crime", "Drama", "Mystery"}) {
		t.Fatalf("unexpected genres %v", got)
	}
	if got := KindDirector.Names(f); !reflect.DeepEqual(got, []string{"Denis Villeneuve"}) {
		t.Fatalf("unexpected directors %v", got)
	}
}

func TestRelationshipKindDirection(t *testing.T) {
	if !RelHasGenre.FromFilm() || RelActedIn.FromFilm() || RelDirectedBy.FromFilm() {
		t.Fatal("only HAS_GENRE points away from the film")
	}
	if RelActedIn.Entity() != KindActor || RelHasGenre.Entity() != KindGenre || RelDirectedBy.Entity() != KindDirector {
		t.Fatal("unexpected entity kinds")
	}
	if !RelInfluencedBy.Derived() || RelActedIn.Derived() {
		t.Fatal("unexpected derived flag")
	}
}

func TestFilm_DecodeLegacyBSON(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"title":            "Sing",
		"genre":            "Animation,Comedy,Family",
		"description":      "In a city of humanoid animals...",
		"year":             "2016",
		"runtime_minutes":  int32(108),
		"rating":           7.2,
		"votes":            int64(60545),
		"revenue_millions": "",
		"metascore":        nil,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var f Film
	if err := bson.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !f.Year.Valid || f.Year.Int64 != 2016 {
		t.Fatalf("expected year 2016, got %+v", f.Year)
	}
	if !f.Runtime.Valid || f.Runtime.Float64 != 108 {
		t.Fatalf("expected runtime 108, got %+v", f.Runtime)
	}
	if f.Revenue.Valid {
		t.Fatalf("expected empty revenue to read as missing, got %+v", f.Revenue)
	}
	if f.Metascore.Valid {
		t.Fatalf("expected null metascore to read as missing, got %+v", f.Metascore)
	}
	if f.Rating.Unrated || f.Rating.Value != 7.2 {
		t.Fatalf("expected rating 7.2, got %+v", f.Rating)
	}
	if f.Votes.Int64 != 60545 {
		t.Fatalf("expected 60545 votes, got %+v", f.Votes)
	}
}

func TestFilm_MissingNumericsStoredAsNull(t *testing.T) {
	f := Film{Title: "a", Genre: "b", Description: "c", Rating: Rating{Unrated: true}}
	raw, err := bson.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := bson.Raw(raw)
	if v := doc.Lookup(FieldRevenue); v.Type != bson.TypeNull {
		t.Fatalf("expected null revenue, got %s", v.Type)
	}
	if v := doc.Lookup(FieldRating); v.StringValue() != Unrated {
		t.Fatalf("expected unrated rating, got %v", v)
	}
}

func TestRating_JSON(t *testing.T) {
	var r Rating
	if err := json.Unmarshal([]byte(`"Unrated"`), &r); err != nil || !r.Unrated {
		t.Fatalf("expected unrated, got %+v err=%v", r, err)
	}
	if err := json.Unmarshal([]byte(`8.1`), &r); err != nil || r.Unrated || r.Value != 8.1 {
		t.Fatalf("expected 8.1, got %+v err=%v", r, err)
	}
	out, _ := json.Marshal(Rating{Unrated: true})
	if string(out) != `"unrated"` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestNullFloat_JSONRejectsGarbageNumber(t *testing.T) {
	var n NullFloat
	if err := json.Unmarshal([]byte(`"12.5"`), &n); err != nil || n.Float64 != 12.5 {
		t.Fatalf("expected 12.5 from numeric string, got %+v err=%v", n, err)
	}
	if err := json.Unmarshal([]byte(`""`), &n); err != nil || n.Valid {
		t.Fatalf("expected missing from empty string, got %+v err=%v", n, err)
	}
	if err := json.Unmarshal([]byte(`true`), &n); err == nil {
		t.Fatal("expected error for boolean")
	}
}

func TestFilmNodeProps(t *testing.T) {
	f := Film{
		Title:    "Split",
		Director: " M. Night Shyamalan ",
		Year:     NewNullInt(2016),
		Votes:    NewNullInt(157606),
		Rating:   Rating{Unrated: true},
	}
	props := f.Node("abc").Props()
	if props["id"] != "abc" || props["year"] != int64(2016) || props["votes"] != int64(157606) {
		t.Fatalf("unexpected props %v", props)
	}
	if props["revenue"] != nil || props["rating"] != nil {
		t.Fatalf("expected missing revenue and rating, got %v", props)
	}
	if props["director"] != "M. Night Shyamalan" {
		t.Fatalf("expected trimmed director, got %q", props["director"])
	}
}

func TestValidateFilm(t *testing.T) {
	err := ValidateFilm(Film{Title: "  ", Genre: "Drama"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields[FieldTitle]; !ok {
		t.Fatalf("expected title to be rejected, got %v", verr.Fields)
	}
	if _, ok := verr.Fields[FieldDescription]; !ok {
		t.Fatalf("expected description to be rejected, got %v", verr.Fields)
	}

	if err := ValidateFilm(Film{Title: "a", Genre: "b", Description: "c"}); err != nil {
		t.Fatalf("expected valid film, got %v", err)
	}
}

func TestValidatePatch(t *testing.T) {
	var verr *ValidationError
	if err := ValidatePatch(FilmPatch{}); !errors.As(err, &verr) {
		t.Fatalf("expected empty patch to be rejected, got %v", err)
	}
	blank := " "
	if err := ValidatePatch(FilmPatch{Title: &blank}); !errors.As(err, &verr) {
		t.Fatalf("expected blank title to be rejected, got %v", err)
	}
	year := NewNullInt(2001)
	if err := ValidatePatch(FilmPatch{Year: &year}); err != nil {
		t.Fatalf("expected valid patch, got %v", err)
	}
}

func TestMissingNodesError_IsNodeMissing(t *testing.T) {
	err := error(&MissingNodesError{Kind: RelActedIn, Films: []string{"f1"}})
	if !errors.Is(err, ErrNodeMissing) {
		t.Fatal("expected errors.Is(ErrNodeMissing)")
	}
}
