package common

import (
	"strings"
)

// Film is a film document in the canonical schema. The document identity
// is not part of the payload; adapters return it separately.
//
// Only title, genre and description are required. Every numeric field is
// read tolerantly so that documents written by older producers (empty
// string sentinels, numeric strings, missing keys) still decode.
type Film struct {
	Title       string    `bson:"title" json:"title" validate:"required"`
	Genre       string    `bson:"genre" json:"genre" validate:"required"`
	Description string    `bson:"description" json:"description" validate:"required"`
	Director    string    `bson:"director,omitempty" json:"director,omitempty"`
	Actors      string    `bson:"actors,omitempty" json:"actors,omitempty"`
	Year        NullInt   `bson:"year" json:"year"`
	Runtime     NullFloat `bson:"runtime_minutes" json:"runtime_minutes"`
	Rating      Rating    `bson:"rating" json:"rating"`
	Votes       NullInt   `bson:"votes" json:"votes"`
	Revenue     NullFloat `bson:"revenue_millions" json:"revenue_millions"`
	Metascore   NullInt   `bson:"metascore" json:"metascore"`
}

// Canonical document field names.
const (
	FieldTitle       = "title"
	FieldGenre       = "genre"
	FieldDescription = "description"
	FieldDirector    = "director"
	FieldActors      = "actors"
	FieldYear        = "year"
	FieldRuntime     = "runtime_minutes"
	FieldRating      = "rating"
	FieldVotes       = "votes"
	FieldRevenue     = "revenue_millions"
	FieldMetascore   = "metascore"
)

// LegacyFieldNames maps keys written by older producers to the canonical
// field names.
var LegacyFieldNames = map[string]string{
	"Title":              FieldTitle,
	"Genre":              FieldGenre,
	"Description":        FieldDescription,
	"Director":           FieldDirector,
	"Actors":             FieldActors,
	"Year":               FieldYear,
	"Runtime (Minutes)":  FieldRuntime,
	"Rating":             FieldRating,
	"Votes":              FieldVotes,
	"Revenue (Millions)": FieldRevenue,
	"Metascore":          FieldMetascore,
}

// ApplyDefaults fills the fields a freshly inserted film must carry.
func (f *Film) ApplyDefaults() {
	f.Title = strings.TrimSpace(f.Title)
	f.Genre = strings.TrimSpace(f.Genre)
	f.Description = strings.TrimSpace(f.Description)
	if !f.Votes.Valid {
		f.Votes = NewNullInt(0)
	}
}

// Node returns the reduced projection of the film stored on the graph node.
func (f Film) Node(id string) FilmNode {
	n := FilmNode{
		ID:       id,
		Title:    f.Title,
		Director: strings.TrimSpace(f.Director),
	}
	if f.Year.Valid {
		n.Year = &f.Year.Int64
	}
	if f.Votes.Valid {
		n.Votes = &f.Votes.Int64
	}
	if f.Revenue.Valid {
		n.Revenue = &f.Revenue.Float64
	}
	if !f.Rating.Unrated {
		n.Rating = &f.Rating.Value
	}
	return n
}

// FilmPatch is a partial update. Nil fields are left untouched.
type FilmPatch struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1"`
	Genre       *string    `json:"genre,omitempty" validate:"omitempty,min=1"`
	Description *string    `json:"description,omitempty" validate:"omitempty,min=1"`
	Director    *string    `json:"director,omitempty"`
	Actors      *string    `json:"actors,omitempty"`
	Year        *NullInt   `json:"year,omitempty"`
	Runtime     *NullFloat `json:"runtime_minutes,omitempty"`
	Rating      *Rating    `json:"rating,omitempty"`
	Votes       *NullInt   `json:"votes,omitempty"`
	Revenue     *NullFloat `json:"revenue_millions,omitempty"`
	Metascore   *NullInt   `json:"metascore,omitempty"`
}

// Fields returns the canonical field name to value mapping of the set
// fields of the patch.
func (p FilmPatch) Fields() map[string]any {
	out := make(map[string]any)
	if p.Title != nil {
		out[FieldTitle] = strings.TrimSpace(*p.Title)
	}
	if p.Genre != nil {
		out[FieldGenre] = strings.TrimSpace(*p.Genre)
	}
	if p.Description != nil {
		out[FieldDescription] = strings.TrimSpace(*p.Description)
	}
	if p.Director != nil {
		out[FieldDirector] = *p.Director
	}
	if p.Actors != nil {
		out[FieldActors] = *p.Actors
	}
	if p.Year != nil {
		out[FieldYear] = *p.Year
	}
	if p.Runtime != nil {
		out[FieldRuntime] = *p.Runtime
	}
	if p.Rating != nil {
		out[FieldRating] = *p.Rating
	}
	if p.Votes != nil {
		out[FieldVotes] = *p.Votes
	}
	if p.Revenue != nil {
		out[FieldRevenue] = *p.Revenue
	}
	if p.Metascore != nil {
		out[FieldMetascore] = *p.Metascore
	}
	return out
}

// FilmNode is the reduced attribute set carried by a Film node in the graph.
// Nil pointers are written as missing properties.
type FilmNode struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Year     *int64   `json:"year,omitempty"`
	Votes    *int64   `json:"votes,omitempty"`
	Revenue  *float64 `json:"revenue,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Director string   `json:"director"`
}

// Props returns the node as a driver parameter map.
func (n FilmNode) Props() map[string]any {
	props := map[string]any{
		"id":       n.ID,
		"title":    n.Title,
		"director": n.Director,
		"year":     nil,
		"votes":    nil,
		"revenue":  nil,
		"rating":   nil,
	}
	if n.Year != nil {
		props["year"] = *n.Year
	}
	if n.Votes != nil {
		props["votes"] = *n.Votes
	}
	if n.Revenue != nil {
		props["revenue"] = *n.Revenue
	}
	if n.Rating != nil {
		props["rating"] = *n.Rating
	}
	return props
}

// Relationship links a named Actor, Director or Genre node to a Film node.
type Relationship struct {
	Name   string `json:"name"`
	FilmID string `json:"film_id"`
}

// GraphCounts is a snapshot of node and relationship cardinalities keyed by
// label and relationship type.
type GraphCounts struct {
	Nodes         map[string]int64 `json:"nodes"`
	Relationships map[string]int64 `json:"relationships"`
}

// TotalNodes sums all node counts.
func (c GraphCounts) TotalNodes() int64 {
	var total int64
	for _, n := range c.Nodes {
		total += n
	}
	return total
}

// TotalRelationships sums all relationship counts.
func (c GraphCounts) TotalRelationships() int64 {
	var total int64
	for _, n := range c.Relationships {
		total += n
	}
	return total
}

// DeleteOutcome reports what a delete did.
type DeleteOutcome string

const (
	DeleteDeleted  DeleteOutcome = "deleted"
	DeleteNotFound DeleteOutcome = "not_found"
)
