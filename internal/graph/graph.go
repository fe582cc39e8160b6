// Package graph holds the mutable dependency graph the pipeline operates
// on: an adjacency map from node identifier to an ordered list of
// dependency identifiers, plus a metadata map carrying each node's
// resolved attributes. The package also provides the immutable snapshot,
// export formats, the SQLite run archive, and the Memgraph sync.
package graph

import (
	"sort"
	"strings"
)

// Graph is the adjacency map plus per-node metadata. Edge lists keep
// insertion order (it is meaningful for deterministic output) and never
// contain duplicates. Every node in Dict has an entry in Meta; read paths
// tolerate a missing entry, but every creation path must add one.
type Graph struct {
	Dict map[string][]string
	Meta map[string]map[string]any
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Dict: make(map[string][]string),
		Meta: make(map[string]map[string]any),
	}
}

// FromRaw builds a graph from raw adjacency and metadata maps, deduplicating
// edge lists and guaranteeing a metadata entry for every node.
func FromRaw(dict map[string][]string, meta map[string]map[string]any) *Graph {
	g := New()
	for _, id := range sortedKeys(dict) {
		g.AddNode(id)
		for _, dep := range dict[id] {
			g.AddEdge(id, dep)
		}
	}
	for id, attrs := range meta {
		m := g.ensureMeta(id)
		for k, v := range attrs {
			m[k] = v
		}
	}
	return g
}

// HasNode reports whether id exists in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Dict[id]
	return ok
}

// AddNode ensures id exists with an (initially empty) edge list and a
// metadata entry.
func (g *Graph) AddNode(id string) {
	if _, ok := g.Dict[id]; !ok {
		g.Dict[id] = []string{}
	}
	g.ensureMeta(id)
}

// AddEdge adds from -> to, creating both endpoints as needed. Self-loops
// and duplicates are dropped.
func (g *Graph) AddEdge(from, to string) {
	if from == to {
		return
	}
	g.AddNode(from)
	g.AddNode(to)
	for _, dep := range g.Dict[from] {
		if dep == to {
			return
		}
	}
	g.Dict[from] = append(g.Dict[from], to)
}

// HasEdge reports whether from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	for _, dep := range g.Dict[from] {
		if dep == to {
			return true
		}
	}
	return false
}

// RemoveEdge deletes from -> to if present.
func (g *Graph) RemoveEdge(from, to string) {
	deps, ok := g.Dict[from]
	if !ok {
		return
	}
	out := deps[:0]
	for _, dep := range deps {
		if dep != to {
			out = append(out, dep)
		}
	}
	g.Dict[from] = out
}

// Edges returns a copy of id's dependency list.
func (g *Graph) Edges(id string) []string {
	deps := g.Dict[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Parents returns, in sorted order, every node holding an edge to id.
func (g *Graph) Parents(id string) []string {
	var parents []string
	for _, node := range g.Nodes() {
		if g.HasEdge(node, id) {
			parents = append(parents, node)
		}
	}
	return parents
}

// Nodes returns all node identifiers in sorted order. Map iteration order
// is not stable in Go, so every caller that mutates during a scan or needs
// deterministic output goes through this.
func (g *Graph) Nodes() []string {
	return sortedKeys(g.Dict)
}

// MatchNodes returns, in sorted order, the nodes whose identifier contains
// pattern.
func (g *Graph) MatchNodes(pattern string) []string {
	if pattern == "" {
		return nil
	}
	var out []string
	for _, id := range g.Nodes() {
		if strings.Contains(id, pattern) {
			out = append(out, id)
		}
	}
	return out
}

// DeleteNode removes id and its metadata. When stripFromParents is set the
// node is also removed from every other node's edge list; otherwise
// dangling references are left for the caller to rewrite.
func (g *Graph) DeleteNode(id string, stripFromParents bool) {
	delete(g.Dict, id)
	delete(g.Meta, id)
	if !stripFromParents {
		return
	}
	for _, node := range g.Nodes() {
		g.RemoveEdge(node, id)
	}
}

// Rename changes a node's identifier in place: the adjacency key, every
// edge pointing at it, and its metadata entry. A rename onto an existing
// node merges edge lists (deduplicated) and keeps the existing node's
// metadata values on conflict.
func (g *Graph) Rename(old, new string) {
	if old == new {
		return
	}
	deps, ok := g.Dict[old]
	if !ok {
		return
	}
	g.AddNode(new)
	for _, dep := range deps {
		g.AddEdge(new, dep)
	}
	oldMeta := g.Meta[old]
	newMeta := g.ensureMeta(new)
	for k, v := range oldMeta {
		if _, exists := newMeta[k]; !exists {
			newMeta[k] = v
		}
	}
	for _, node := range g.Nodes() {
		if node == old || node == new {
			continue
		}
		if g.HasEdge(node, old) {
			g.RemoveEdge(node, old)
			g.AddEdge(node, new)
		}
	}
	delete(g.Dict, old)
	delete(g.Meta, old)
}

// Metadata returns id's attribute map, creating the entry when absent.
// The returned map is always live: mutations are visible in the graph.
func (g *Graph) Metadata(id string) map[string]any {
	return g.ensureMeta(id)
}

// SetMetadata stores one attribute on id, creating the entry as needed.
func (g *Graph) SetMetadata(id, key string, value any) {
	g.ensureMeta(id)[key] = value
}

// Snapshot returns a deep copy of the graph. Taken once before the handler
// pipeline runs, it gives provider handlers a stable view of
// pre-transformation values.
func (g *Graph) Snapshot() *Graph {
	s := New()
	for id, deps := range g.Dict {
		out := make([]string, len(deps))
		copy(out, deps)
		s.Dict[id] = out
	}
	for id, attrs := range g.Meta {
		s.Meta[id] = deepCopyMap(attrs)
	}
	return s
}

func (g *Graph) ensureMeta(id string) map[string]any {
	m, ok := g.Meta[id]
	if !ok {
		m = make(map[string]any)
		g.Meta[id] = m
	}
	return m
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
