// Package storetest provides an in-memory store.GraphStorage with the same
// merge semantics as the Cypher implementation.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/filmgraph/backend/pkg/common"
)

type edge struct {
	kind     common.RelationshipKind
	from, to string
}

// Memory keeps nodes keyed by "Label/key" and edges as a set.
type Memory struct {
	mu       sync.Mutex
	films    map[string]common.FilmNode
	entities map[common.EntityKind]map[string]struct{}
	edges    map[edge]struct{}

	// FailOn makes the named method return the error once.
	FailOn map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		films:    map[string]common.FilmNode{},
		entities: map[common.EntityKind]map[string]struct{}{},
		edges:    map[edge]struct{}{},
		FailOn:   map[string]error{},
	}
}

func (m *Memory) fail(name string) error {
	if err, ok := m.FailOn[name]; ok {
		delete(m.FailOn, name)
		return err
	}
	return nil
}

func (m *Memory) EnsureConstraints(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("EnsureConstraints")
}

func (m *Memory) UpsertFilms(ctx context.Context, films []common.FilmNode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertFilms"); err != nil {
		return 0, err
	}
	for _, f := range films {
		m.films[f.ID] = f
	}
	return len(films), nil
}

func (m *Memory) UpsertEntities(ctx context.Context, kind common.EntityKind, names []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertEntities"); err != nil {
		return 0, err
	}
	set, ok := m.entities[kind]
	if !ok {
		set = map[string]struct{}{}
		m.entities[kind] = set
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	return len(names), nil
}

func (m *Memory) UpsertRelationships(ctx context.Context, kind common.RelationshipKind, rels []common.Relationship) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertRelationships"); err != nil {
		return 0, err
	}

	written := 0
	var missingFilms, missingEntities []string
	for _, r := range rels {
		_, filmOK := m.films[r.FilmID]
		_, entityOK := m.entities[kind.Entity()][r.Name]
		if !filmOK {
			missingFilms = append(missingFilms, r.FilmID)
		}
		if !entityOK {
			missingEntities = append(missingEntities, r.Name)
		}
		if !filmOK || !entityOK {
			continue
		}
		e := edge{kind: kind, from: r.Name, to: r.FilmID}
		if kind.FromFilm() {
			e = edge{kind: kind, from: r.FilmID, to: r.Name}
		}
		m.edges[e] = struct{}{}
		written++
	}
	if len(missingFilms) > 0 || len(missingEntities) > 0 {
		return written, &common.MissingNodesError{Kind: kind, Films: missingFilms, Entities: missingEntities}
	}
	return written, nil
}

func (m *Memory) DeriveDirectorRelationships(ctx context.Context, kind common.RelationshipKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeriveDirectorRelationships"); err != nil {
		return 0, err
	}

	directorsOf := map[string][]string{}
	genresOf := map[string][]string{}
	for e := range m.edges {
		switch e.kind {
		case common.RelDirectedBy:
			directorsOf[e.to] = append(directorsOf[e.to], e.from)
		case common.RelHasGenre:
			genresOf[e.from] = append(genresOf[e.from], e.to)
		}
	}

	pairs := map[[2]string]struct{}{}
	for f1, g1 := range genresOf {
		for f2, g2 := range genresOf {
			if !shareAny(g1, g2) {
				continue
			}
			if kind == common.RelCompetesWith {
				y1, y2 := m.films[f1].Year, m.films[f2].Year
				if y1 == nil || y2 == nil || *y1 != *y2 {
					continue
				}
			}
			for _, d1 := range directorsOf[f1] {
				for _, d2 := range directorsOf[f2] {
					if d1 != d2 {
						pairs[[2]string{d1, d2}] = struct{}{}
					}
				}
			}
		}
	}
	for p := range pairs {
		m.edges[edge{kind: kind, from: p[0], to: p[1]}] = struct{}{}
	}
	return int64(len(pairs)), nil
}

func shareAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (m *Memory) Counts(ctx context.Context) (*common.GraphCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Counts"); err != nil {
		return nil, err
	}
	c := &common.GraphCounts{Nodes: map[string]int64{}, Relationships: map[string]int64{}}
	if len(m.films) > 0 {
		c.Nodes[common.FilmLabel] = int64(len(m.films))
	}
	for kind, set := range m.entities {
		if len(set) > 0 {
			c.Nodes[kind.Label()] = int64(len(set))
		}
	}
	for e := range m.edges {
		c.Relationships[string(e.kind)]++
	}
	return c, nil
}

// Edges returns the sorted "from->to" pairs of a relationship kind.
func (m *Memory) Edges(kind common.RelationshipKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for e := range m.edges {
		if e.kind == kind {
			out = append(out, e.from+"->"+e.to)
		}
	}
	sort.Strings(out)
	return out
}

// Film returns a stored film node.
func (m *Memory) Film(id string) (common.FilmNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.films[id]
	return f, ok
}

// Entities returns the sorted names stored for a node kind.
func (m *Memory) Entities(kind common.EntityKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entities[kind]))
	for name := range m.entities[kind] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
