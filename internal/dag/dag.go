// Package dag provides the directed acyclic graph behind live model lineage.
// Edges point from a model to the models derived from it. Links closing a
// cycle are rejected, so level and downstream queries always terminate.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrUnknownNode is returned when linking a node that was never added.
	ErrUnknownNode = errors.New("unknown node")
	// ErrCycle is returned when a link would close a cycle.
	ErrCycle = errors.New("cycle detected")
)

// Graph is a DAG of named nodes. It is not safe for concurrent use.
type Graph struct {
	names    map[string]string   // id -> display name
	children map[string][]string // id -> derived ids
	parents  map[string][]string // id -> ids it derives from
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		names:    make(map[string]string),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// Set adds the node id, or renames it when it exists.
func (g *Graph) Set(id, name string) {
	g.names[id] = name
}

// Name returns the display name of id.
func (g *Graph) Name(id string) (string, bool) {
	name, ok := g.names[id]
	return name, ok
}

// Remove deletes id and every edge touching it.
func (g *Graph) Remove(id string) {
	if _, ok := g.names[id]; !ok {
		return
	}
	for _, p := range g.parents[id] {
		g.children[p] = slices.DeleteFunc(g.children[p], func(c string) bool { return c == id })
	}
	for _, c := range g.children[id] {
		g.parents[c] = slices.DeleteFunc(g.parents[c], func(p string) bool { return p == id })
	}
	delete(g.names, id)
	delete(g.children, id)
	delete(g.parents, id)
}

// Link records that child derives from parent. Linking twice is a no-op.
func (g *Graph) Link(parent, child string) error {
	for _, id := range []string{parent, child} {
		if _, ok := g.names[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	if parent == child || slices.Contains(g.Upstream(parent), child) {
		return fmt.Errorf("%w: %s already feeds %s", ErrCycle, g.names[child], g.names[parent])
	}
	if !slices.Contains(g.children[parent], child) {
		g.children[parent] = append(g.children[parent], child)
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Parents returns the ids child derives from.
func (g *Graph) Parents(child string) []string {
	return slices.Clone(g.parents[child])
}

// Children returns the ids derived directly from parent.
func (g *Graph) Children(parent string) []string {
	return slices.Clone(g.children[parent])
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.names) }

// Edges returns the number of links.
func (g *Graph) Edges() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

// Levels groups node ids by propagation level, each level sorted. Level 0
// holds the nodes without parents; any other node sits one level below its
// deepest parent, so a level is recomputed only after the previous one.
func (g *Graph) Levels() ([][]string, error) {
	pending := make(map[string]int, len(g.names))
	var current []string
	for id := range g.names {
		pending[id] = len(g.parents[id])
		if pending[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, c := range g.children[id] {
				pending[c]--
				if pending[c] == 0 {
					next = append(next, c)
				}
			}
		}
		current = next
	}

	if placed != len(g.names) {
		var stuck []string
		for id, n := range pending {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return levels, nil
}

// Downstream returns every id derived, directly or not, from id, sorted.
func (g *Graph) Downstream(id string) []string {
	return g.walk(id, g.children)
}

// Upstream returns every id that id derives from, directly or not, sorted.
func (g *Graph) Upstream(id string) []string {
	return g.walk(id, g.parents)
}

func (g *Graph) walk(start string, next map[string][]string) []string {
	seen := map[string]bool{start: true}
	queue := slices.Clone(next[start])
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, next[id]...)
	}
	sort.Strings(out)
	return out
}
