package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/filmgraph/backend/pkg/common"
)

// Pass is one step of a materialization run.
type Pass string

const (
	PassFilms         Pass = "films"
	PassEntities      Pass = "entities"
	PassRelationships Pass = "relationships"
	PassDerived       Pass = "derived"
)

var passOrder = []Pass{PassFilms, PassEntities, PassRelationships, PassDerived}

// DefaultPasses materialize nodes and film relationships. The derived pass
// is opt-in.
var DefaultPasses = []Pass{PassFilms, PassEntities, PassRelationships}

// ParsePasses parses a comma-separated pass list and returns the passes in
// execution order. An empty string selects DefaultPasses; "all" selects every
// pass.
func ParsePasses(s string) ([]Pass, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPasses, nil
	}
	if s == "all" {
		return passOrder, nil
	}

	selected := map[Pass]bool{}
	for _, tok := range common.SplitList(s) {
		p := Pass(strings.ToLower(tok))
		if !p.valid() {
			return nil, fmt.Errorf("unknown pass %q", tok)
		}
		selected[p] = true
	}

	out := make([]Pass, 0, len(selected))
	for _, p := range passOrder {
		if selected[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (p Pass) valid() bool {
	for _, known := range passOrder {
		if p == known {
			return true
		}
	}
	return false
}

// needsFilms reports whether the pass attaches edges to existing Film nodes.
func (p Pass) needsFilms() bool {
	return p == PassRelationships || p == PassDerived
}

// PassReport summarizes one executed pass.
type PassReport struct {
	Pass     Pass          `json:"pass"`
	Written  int64         `json:"written"`
	Duration time.Duration `json:"duration"`
	// Counts breaks Written down by label or relationship type.
	Counts map[string]int64 `json:"counts,omitempty"`
}

// Report summarizes a materialization run.
type Report struct {
	Passes []PassReport       `json:"passes"`
	Before *common.GraphCounts `json:"before,omitempty"`
	After  *common.GraphCounts `json:"after,omitempty"`
}
