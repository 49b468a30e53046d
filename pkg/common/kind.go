package common

// EntityKind is one of the graph-only node kinds derived from a film field.
type EntityKind string

const (
	KindActor    EntityKind = "Actor"
	KindDirector EntityKind = "Director"
	KindGenre    EntityKind = "Genre"
)

// EntityKinds lists every derived node kind in materialization order.
var EntityKinds = []EntityKind{KindActor, KindDirector, KindGenre}

// Label is the graph label of the kind.
func (k EntityKind) Label() string {
	return string(k)
}

// Names extracts the distinct trimmed names of this kind from a film.
func (k EntityKind) Names(f Film) []string {
	switch k {
	case KindActor:
		return DistinctList(f.Actors)
	case KindDirector:
		return DistinctList(f.Director)
	case KindGenre:
		return DistinctList(f.Genre)
	}
	return nil
}

// RelationshipKind is a typed relationship of the film graph.
type RelationshipKind string

const (
	RelActedIn      RelationshipKind = "ACTED_IN"
	RelDirectedBy   RelationshipKind = "DIRECTED_BY"
	RelHasGenre     RelationshipKind = "HAS_GENRE"
	RelInfluencedBy RelationshipKind = "INFLUENCED_BY"
	RelCompetesWith RelationshipKind = "COMPETES_WITH"
)

// FilmRelationshipKinds are the relationships connecting an entity node to a
// Film node, in materialization order.
var FilmRelationshipKinds = []RelationshipKind{RelActedIn, RelDirectedBy, RelHasGenre}

// DerivedRelationshipKinds connect two Director nodes and are computed from
// the materialized graph itself.
var DerivedRelationshipKinds = []RelationshipKind{RelInfluencedBy, RelCompetesWith}

// Entity returns the node kind on the non-film side of the relationship.
func (r RelationshipKind) Entity() EntityKind {
	switch r {
	case RelActedIn:
		return KindActor
	case RelHasGenre:
		return KindGenre
	}
	return KindDirector
}

// FromFilm reports whether the relationship points from the film to the
// entity (Film)-[:HAS_GENRE]->(Genre) rather than towards the film.
func (r RelationshipKind) FromFilm() bool {
	return r == RelHasGenre
}

// Derived reports whether the relationship is produced by the derived pass.
func (r RelationshipKind) Derived() bool {
	return r == RelInfluencedBy || r == RelCompetesWith
}

// FilmLabel is the graph label of film nodes.
const FilmLabel = "Film"
