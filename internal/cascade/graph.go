package cascade

import "slices"

// Graph is a directed graph of tables. An edge from a to b means a change to
// a must also be reported as a change to b. Cycles and self-loops are
// allowed.
type Graph struct {
	edges map[string][]string // table -> dependents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// AddEdge records that a change to from also affects to. Duplicate edges
// are ignored.
func (g *Graph) AddEdge(from, to string) {
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
}

// Reachable returns every table reachable from the start tables, the start
// tables included, each once. Tables already visited are not expanded
// again, so cycles terminate.
func (g *Graph) Reachable(start []string) Set {
	visited := make(Set)

	var mark func(id string)
	mark = func(id string) {
		if visited.Has(id) {
			return
		}
		visited.Add(id)
		for _, child := range g.edges[id] {
			mark(child)
		}
	}

	for _, id := range start {
		mark(id)
	}
	return visited
}
