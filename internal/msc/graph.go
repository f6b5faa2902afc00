package msc

import (
	"fmt"
	"sort"
)

// graph is the dependency graph of installed services, keyed by canonical name.
// An edge dep -> dependent means dependent requires dep. It is guarded by the container lock.
type graph struct {
	nodes map[string]*node
}

type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

func newGraph() *graph {
	return &graph{nodes: make(map[string]*node)}
}

func (g *graph) addNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{id: id, deps: make(map[string]*node), dependents: make(map[string]*node)}
}

func (g *graph) removeNode(id string) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, d := range n.deps {
		delete(d.dependents, id)
	}
	for _, d := range n.dependents {
		delete(d.deps, id)
	}
	delete(g.nodes, id)
}

func (g *graph) addEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("service %s depends on itself", fromID)
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}
	to.deps[fromID] = from
	from.dependents[toID] = to
	return nil
}

func (g *graph) dependents(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedKeys(n.dependents)
}

// transitiveDependents returns every service that directly or indirectly requires id.
func (g *graph) transitiveDependents(id string) map[string]bool {
	out := map[string]bool{}
	var visit func(string)
	visit = func(cur string) {
		for _, d := range g.dependents(cur) {
			if !out[d] {
				out[d] = true
				visit(d)
			}
		}
	}
	visit(id)
	return out
}

// detectCycles runs a DFS with temporary and permanent marks.
func (g *graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("dependency cycle involving service %s", n.id)
		}
		temporary[n.id] = true
		for _, id := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}
	for _, id := range sortedKeys(g.nodes) {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// levels groups nodes so that every node comes after all of its dependencies.
// Nodes of one level are independent of each other. Requires an acyclic graph.
func (g *graph) levels() [][]string {
	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
	}
	var out [][]string
	var current []string
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}
	for len(current) > 0 {
		sort.Strings(current)
		out = append(out, current)
		var next []string
		for _, id := range current {
			for _, dep := range sortedKeys(g.nodes[id].dependents) {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
