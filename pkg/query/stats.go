package query

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/stat"
)

// Pearson returns the correlation coefficient of paired samples. It reports
// false for fewer than two pairs, mismatched lengths or zero variance.
func Pearson(xs, ys []float64) (float64, bool) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

// Community is a group of actors found by modularity clustering. Label is
// the smallest member name.
type Community struct {
	Label   string   `json:"label"`
	Size    int      `json:"size"`
	Members []string `json:"members"`
}

// louvainSeed fixes the node visiting order of the Louvain local moves.
const louvainSeed = 0x66696c6d

// Communities clusters an undirected graph with the Louvain method at
// resolution 1. Self loops are ignored. Communities are returned by size
// desc, label asc, with sorted members.
func Communities(edges [][2]string) []Community {
	names := map[string]struct{}{}
	for _, e := range edges {
		if e[0] == e[1] {
			continue
		}
		names[e[0]] = struct{}{}
		names[e[1]] = struct{}{}
	}
	if len(names) == 0 {
		return nil
	}

	nodes := make([]string, 0, len(names))
	for n := range names {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	ids := make(map[string]int64, len(nodes))
	for i, n := range nodes {
		ids[n] = int64(i)
	}

	g := simple.NewUndirectedGraph()
	for _, n := range nodes {
		g.AddNode(simple.Node(ids[n]))
	}
	for _, e := range edges {
		if e[0] == e[1] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(ids[e[0]]), T: simple.Node(ids[e[1]])})
	}

	reduced := community.Modularize(g, 1, rand.NewPCG(louvainSeed, louvainSeed))

	out := make([]Community, 0)
	for _, c := range reduced.Communities() {
		if len(c) == 0 {
			continue
		}
		members := make([]string, len(c))
		for i, n := range c {
			members[i] = nodes[n.ID()]
		}
		sort.Strings(members)
		out = append(out, Community{Label: members[0], Size: len(members), Members: members})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].Label < out[j].Label
	})
	return out
}
