package query

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/filmgraph/backend/pkg/common"
)

type YearCount struct {
	Year  int64 `bson:"year" json:"year"`
	Count int64 `bson:"count" json:"count"`
}

type DirectorCount struct {
	Director string `bson:"director" json:"director"`
	Count    int64  `bson:"count" json:"count"`
}

type GenreRevenue struct {
	Genre          string  `bson:"genre" json:"genre"`
	AverageRevenue float64 `bson:"average_revenue" json:"average_revenue"`
}

type RevenueFilm struct {
	Title    string  `bson:"title" json:"title"`
	Director string  `bson:"director" json:"director,omitempty"`
	Year     *int64  `bson:"year" json:"year"`
	Revenue  float64 `bson:"revenue_millions" json:"revenue_millions"`
}

type RatedFilm struct {
	Title  string  `bson:"title" json:"title"`
	Year   int64   `bson:"year" json:"year"`
	Rating float64 `bson:"rating" json:"rating"`
}

type DecadeTop struct {
	Decade int64       `bson:"decade" json:"decade"`
	Films  []RatedFilm `bson:"films" json:"films"`
}

type GenreLongest struct {
	Genre   string  `bson:"genre" json:"genre"`
	Title   string  `bson:"title" json:"title"`
	Runtime float64 `bson:"runtime_minutes" json:"runtime_minutes"`
}

type ScoredFilm struct {
	Title     string  `bson:"title" json:"title"`
	Year      *int64  `bson:"year" json:"year"`
	Metascore int64   `bson:"metascore" json:"metascore"`
	Revenue   float64 `bson:"revenue_millions" json:"revenue_millions"`
}

type Correlation struct {
	R       float64 `json:"r"`
	Samples int     `json:"samples"`
}

type VotesAverage struct {
	Year    int64   `bson:"year" json:"year"`
	Average float64 `bson:"average" json:"average"`
	Films   int64   `bson:"films" json:"films"`
}

type countRow struct {
	Count int64 `bson:"count"`
}

type genreRow struct {
	Genre string `bson:"genre"`
}

type pairRow struct {
	Runtime float64 `bson:"runtime_minutes"`
	Revenue float64 `bson:"revenue_millions"`
}

type seriesRow struct {
	X float64 `bson:"x"`
	Y float64 `bson:"y"`
}

// numeric converts a field to a number in place. Numeric strings convert,
// while "", garbage, null and absent fields become null.
func numeric(to string, fields ...string) bson.D {
	set := bson.D{}
	for _, f := range fields {
		set = append(set, bson.E{Key: f, Value: bson.D{{Key: "$convert", Value: bson.D{
			{Key: "input", Value: "$" + f},
			{Key: "to", Value: to},
			{Key: "onError", Value: nil},
			{Key: "onNull", Value: nil},
		}}}})
	}
	return bson.D{{Key: "$addFields", Value: set}}
}

func present(fields ...string) bson.D {
	match := bson.D{}
	for _, f := range fields {
		match = append(match, bson.E{Key: f, Value: bson.D{{Key: "$ne", Value: nil}}})
	}
	return bson.D{{Key: "$match", Value: match}}
}

// splitTrim replaces a comma-separated string field with one document per
// trimmed, non-empty token stored under as.
func splitTrim(field, as string) []bson.D {
	return []bson.D{
		{{Key: "$match", Value: bson.D{{Key: field, Value: bson.D{{Key: "$type", Value: "string"}}}}}},
		{{Key: "$addFields", Value: bson.D{{Key: as, Value: bson.D{{Key: "$split", Value: bson.A{"$" + field, ","}}}}}}},
		{{Key: "$unwind", Value: "$" + as}},
		{{Key: "$addFields", Value: bson.D{{Key: as, Value: bson.D{{Key: "$trim", Value: bson.D{{Key: "input", Value: "$" + as}}}}}}}},
		{{Key: "$match", Value: bson.D{{Key: as, Value: bson.D{{Key: "$ne", Value: ""}}}}}},
	}
}

func decade(field string) bson.D {
	return bson.D{{Key: "$subtract", Value: bson.A{"$" + field, bson.D{{Key: "$mod", Value: bson.A{"$" + field, 10}}}}}}
}

func pipeline(parts ...any) mongo.Pipeline {
	out := mongo.Pipeline{}
	for _, p := range parts {
		switch v := p.(type) {
		case bson.D:
			out = append(out, v)
		case []bson.D:
			out = append(out, v...)
		}
	}
	return out
}

func stage(op string, v any) bson.D {
	return bson.D{{Key: op, Value: v}}
}

// aggregateRows runs the pipeline and decodes every row into T. No rows is
// ErrEmptyResult.
func aggregateRows[T any](ctx context.Context, v *env, p mongo.Pipeline) ([]T, error) {
	raw, err := v.aggregate(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, common.ErrEmptyResult
	}
	return decodeRows[T](raw)
}

func aggregationEntries() []*Entry {
	return []*Entry{
		{
			Name:     "year-most-releases",
			Question: "Which year had the most film releases?",
			Adapter:  AdapterDocument,
			TieBreak: "count desc, year asc",
			OnEmpty:  "No films with a release year.",
			Kind:     KindRecords,
			Shape:    YearCount{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[YearCount](ctx, v, yearMostReleasesPipeline())
				if err != nil {
					return nil, err
				}
				return records(rows[:1]), nil
			},
		},
		{
			Name:     "releases-after-year",
			Question: "How many films were released after a given year?",
			Adapter:  AdapterDocument,
			OnEmpty:  "No films released after {year}.",
			Params:   []Param{intParam("year", "1999")},
			Kind:     KindScalar,
			Shape:    int64(0),
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[countRow](ctx, v, pipeline(
					numeric("long", common.FieldYear),
					stage("$match", bson.D{{Key: common.FieldYear, Value: bson.D{{Key: "$gt", Value: p.Int("year")}}}}),
					stage("$count", "count"),
				))
				if err != nil {
					return nil, err
				}
				return scalar(rows[0].Count), nil
			},
		},
		{
			Name:     "average-votes-for-year",
			Question: "What is the average number of votes for films released in a given year?",
			Adapter:  AdapterDocument,
			OnEmpty:  "No films with votes released in {year}.",
			Params:   []Param{intParam("year", "2007")},
			Kind:     KindRecords,
			Shape:    VotesAverage{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[VotesAverage](ctx, v, pipeline(
					numeric("long", common.FieldYear, common.FieldVotes),
					stage("$match", bson.D{
						{Key: common.FieldYear, Value: p.Int("year")},
						{Key: common.FieldVotes, Value: bson.D{{Key: "$ne", Value: nil}}},
					}),
					stage("$group", bson.D{
						{Key: "_id", Value: "$" + common.FieldYear},
						{Key: "average", Value: bson.D{{Key: "$avg", Value: "$" + common.FieldVotes}}},
						{Key: "films", Value: bson.D{{Key: "$sum", Value: 1}}},
					}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "year", Value: "$_id"}, {Key: "average", Value: 1}, {Key: "films", Value: 1}}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "releases-per-year",
			Question: "How many films were released each year?",
			Adapter:  AdapterDocument,
			TieBreak: "year asc",
			OnEmpty:  "No films with a release year.",
			Kind:     KindSeries,
			Shape:    Point{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[seriesRow](ctx, v, pipeline(
					numeric("long", common.FieldYear),
					present(common.FieldYear),
					stage("$group", bson.D{{Key: "_id", Value: "$" + common.FieldYear}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}),
					stage("$sort", bson.D{{Key: "_id", Value: 1}}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "x", Value: bson.D{{Key: "$toDouble", Value: "$_id"}}}, {Key: "y", Value: bson.D{{Key: "$toDouble", Value: "$count"}}}}),
				))
				if err != nil {
					return nil, err
				}
				return series(rows), nil
			},
		},
		{
			Name:     "distinct-genres",
			Question: "Which distinct genres appear in the catalog?",
			Adapter:  AdapterDocument,
			TieBreak: "alphabetical",
			OnEmpty:  "No genres found.",
			Kind:     KindRecords,
			Shape:    "",
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[genreRow](ctx, v, distinctGenresPipeline())
				if err != nil {
					return nil, err
				}
				genres := make([]string, len(rows))
				for i, r := range rows {
					genres[i] = r.Genre
				}
				return records(genres), nil
			},
		},
		{
			Name:     "highest-revenue-film",
			Question: "Which film earned the highest revenue?",
			Adapter:  AdapterDocument,
			TieBreak: "revenue desc, title asc",
			OnEmpty:  "No films with revenue.",
			Kind:     KindRecords,
			Shape:    RevenueFilm{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[RevenueFilm](ctx, v, pipeline(
					numeric("double", common.FieldRevenue),
					numeric("long", common.FieldYear),
					present(common.FieldRevenue),
					stage("$sort", bson.D{{Key: common.FieldRevenue, Value: -1}, {Key: common.FieldTitle, Value: 1}}),
					stage("$limit", 1),
					stage("$project", bson.D{
						{Key: "_id", Value: 0},
						{Key: common.FieldTitle, Value: 1},
						{Key: common.FieldDirector, Value: 1},
						{Key: common.FieldYear, Value: 1},
						{Key: common.FieldRevenue, Value: 1},
					}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "directors-with-more-than",
			Question: "Which directors directed more than n films?",
			Adapter:  AdapterDocument,
			TieBreak: "count desc, name asc",
			OnEmpty:  "No director has more than {n} films.",
			Params:   []Param{intParam("n", "5")},
			Kind:     KindRecords,
			Shape:    DirectorCount{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[DirectorCount](ctx, v, pipeline(
					splitTrim(common.FieldDirector, "director_name"),
					stage("$group", bson.D{{Key: "_id", Value: "$director_name"}, {Key: "films", Value: bson.D{{Key: "$addToSet", Value: "$_id"}}}}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "director", Value: "$_id"}, {Key: "count", Value: bson.D{{Key: "$size", Value: "$films"}}}}),
					stage("$match", bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: p.Int("n")}}}}),
					stage("$sort", bson.D{{Key: "count", Value: -1}, {Key: "director", Value: 1}}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "average-revenue-by-genre",
			Question: "Which genres have the highest average revenue?",
			Adapter:  AdapterDocument,
			TieBreak: "average desc, genre asc",
			OnEmpty:  "No films with both a genre and revenue.",
			Params:   []Param{intParam("limit", "1")},
			Kind:     KindRecords,
			Shape:    GenreRevenue{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				limit, err := positive(p, "limit")
				if err != nil {
					return nil, err
				}
				rows, err := aggregateRows[GenreRevenue](ctx, v, pipeline(
					numeric("double", common.FieldRevenue),
					present(common.FieldRevenue),
					splitTrim(common.FieldGenre, "genre_name"),
					stage("$group", bson.D{{Key: "_id", Value: "$genre_name"}, {Key: "average_revenue", Value: bson.D{{Key: "$avg", Value: "$" + common.FieldRevenue}}}}),
					stage("$sort", bson.D{{Key: "average_revenue", Value: -1}, {Key: "_id", Value: 1}}),
					stage("$limit", limit),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "genre", Value: "$_id"}, {Key: "average_revenue", Value: 1}}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "top-rated-per-decade",
			Question: "Which are the top rated films of each decade?",
			Adapter:  AdapterDocument,
			TieBreak: "rating desc, title asc",
			OnEmpty:  "No rated films with a release year.",
			Params:   []Param{intParam("k", "3")},
			Kind:     KindRecords,
			Shape:    DecadeTop{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				k, err := positive(p, "k")
				if err != nil {
					return nil, err
				}
				rows, err := aggregateRows[DecadeTop](ctx, v, pipeline(
					numeric("long", common.FieldYear),
					numeric("double", common.FieldRating),
					present(common.FieldYear, common.FieldRating),
					stage("$addFields", bson.D{{Key: "decade", Value: decade(common.FieldYear)}}),
					stage("$sort", bson.D{{Key: "decade", Value: 1}, {Key: common.FieldRating, Value: -1}, {Key: common.FieldTitle, Value: 1}}),
					stage("$group", bson.D{
						{Key: "_id", Value: "$decade"},
						{Key: "films", Value: bson.D{{Key: "$push", Value: bson.D{
							{Key: "title", Value: "$" + common.FieldTitle},
							{Key: "year", Value: "$" + common.FieldYear},
							{Key: "rating", Value: "$" + common.FieldRating},
						}}}},
					}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "decade", Value: "$_id"}, {Key: "films", Value: bson.D{{Key: "$slice", Value: bson.A{"$films", k}}}}}),
					stage("$sort", bson.D{{Key: "decade", Value: 1}}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "longest-runtime-per-genre",
			Question: "Which is the longest film in each genre?",
			Adapter:  AdapterDocument,
			TieBreak: "runtime desc, title asc",
			OnEmpty:  "No films with both a genre and runtime.",
			Kind:     KindRecords,
			Shape:    GenreLongest{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[GenreLongest](ctx, v, pipeline(
					numeric("double", common.FieldRuntime),
					present(common.FieldRuntime),
					splitTrim(common.FieldGenre, "genre_name"),
					stage("$sort", bson.D{{Key: common.FieldRuntime, Value: -1}, {Key: common.FieldTitle, Value: 1}}),
					stage("$group", bson.D{
						{Key: "_id", Value: "$genre_name"},
						{Key: "title", Value: bson.D{{Key: "$first", Value: "$" + common.FieldTitle}}},
						{Key: common.FieldRuntime, Value: bson.D{{Key: "$first", Value: "$" + common.FieldRuntime}}},
					}),
					stage("$sort", bson.D{{Key: "_id", Value: 1}}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "genre", Value: "$_id"}, {Key: "title", Value: 1}, {Key: common.FieldRuntime, Value: 1}}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "metascore-revenue-filter",
			Question: "Which films have a metascore and revenue above the given thresholds?",
			Adapter:  AdapterDocument,
			TieBreak: "title asc",
			OnEmpty:  "No films with metascore above {metascore} and revenue above {revenue}.",
			Params:   []Param{floatParam("metascore", "80"), floatParam("revenue", "50")},
			Kind:     KindRecords,
			Shape:    ScoredFilm{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[ScoredFilm](ctx, v, pipeline(
					numeric("long", common.FieldYear, common.FieldMetascore),
					numeric("double", common.FieldRevenue),
					stage("$match", bson.D{
						{Key: common.FieldMetascore, Value: bson.D{{Key: "$ne", Value: nil}, {Key: "$gt", Value: p.Float("metascore")}}},
						{Key: common.FieldRevenue, Value: bson.D{{Key: "$ne", Value: nil}, {Key: "$gt", Value: p.Float("revenue")}}},
					}),
					stage("$sort", bson.D{{Key: common.FieldTitle, Value: 1}}),
					stage("$project", bson.D{
						{Key: "_id", Value: 0},
						{Key: common.FieldTitle, Value: 1},
						{Key: common.FieldYear, Value: 1},
						{Key: common.FieldMetascore, Value: 1},
						{Key: common.FieldRevenue, Value: 1},
					}),
				))
				if err != nil {
					return nil, err
				}
				return records(rows), nil
			},
		},
		{
			Name:     "runtime-revenue-correlation",
			Question: "How strongly does runtime correlate with revenue?",
			Adapter:  AdapterDocument,
			OnEmpty:  "Not enough films with both runtime and revenue to correlate.",
			Kind:     KindScalar,
			Shape:    Correlation{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[pairRow](ctx, v, correlationPipeline())
				if err != nil {
					return nil, err
				}
				xs := make([]float64, len(rows))
				ys := make([]float64, len(rows))
				for i, r := range rows {
					xs[i], ys[i] = r.Runtime, r.Revenue
				}
				r, ok := Pearson(xs, ys)
				if !ok {
					return nil, common.ErrEmptyResult
				}
				return scalar(Correlation{R: r, Samples: len(rows)}), nil
			},
		},
		{
			Name:     "average-runtime-by-decade",
			Question: "What is the average runtime per decade?",
			Adapter:  AdapterDocument,
			TieBreak: "decade asc",
			OnEmpty:  "No films with both a release year and runtime.",
			Kind:     KindSeries,
			Shape:    Point{},
			run: func(ctx context.Context, v *env, p Params) (*Result, error) {
				rows, err := aggregateRows[seriesRow](ctx, v, pipeline(
					numeric("long", common.FieldYear),
					numeric("double", common.FieldRuntime),
					present(common.FieldYear, common.FieldRuntime),
					stage("$group", bson.D{
						{Key: "_id", Value: decade(common.FieldYear)},
						{Key: "average", Value: bson.D{{Key: "$avg", Value: "$" + common.FieldRuntime}}},
					}),
					stage("$sort", bson.D{{Key: "_id", Value: 1}}),
					stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "x", Value: bson.D{{Key: "$toDouble", Value: "$_id"}}}, {Key: "y", Value: "$average"}}),
				))
				if err != nil {
					return nil, err
				}
				return series(rows), nil
			},
		},
	}
}

func yearMostReleasesPipeline() mongo.Pipeline {
	return pipeline(
		numeric("long", common.FieldYear),
		present(common.FieldYear),
		stage("$group", bson.D{{Key: "_id", Value: "$" + common.FieldYear}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}),
		stage("$sort", bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}),
		stage("$limit", 1),
		stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "year", Value: "$_id"}, {Key: "count", Value: 1}}),
	)
}

func distinctGenresPipeline() mongo.Pipeline {
	return pipeline(
		splitTrim(common.FieldGenre, "genre_name"),
		stage("$group", bson.D{{Key: "_id", Value: "$genre_name"}}),
		stage("$sort", bson.D{{Key: "_id", Value: 1}}),
		stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: "genre", Value: "$_id"}}),
	)
}

func correlationPipeline() mongo.Pipeline {
	return pipeline(
		numeric("double", common.FieldRuntime, common.FieldRevenue),
		present(common.FieldRuntime, common.FieldRevenue),
		stage("$project", bson.D{{Key: "_id", Value: 0}, {Key: common.FieldRuntime, Value: 1}, {Key: common.FieldRevenue, Value: 1}}),
	)
}

func series(rows []seriesRow) *Result {
	points := make([]Point, len(rows))
	for i, r := range rows {
		points[i] = Point{X: r.X, Y: r.Y}
	}
	return &Result{Series: points}
}
