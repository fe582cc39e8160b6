// Package transform is the closed library of generic graph-editing
// operations the handler pipeline composes: expansion to numbered
// instances, consolidation, intermediate-node insertion, linking,
// re-parenting, deletion, shared-service grouping, metadata propagation,
// and variant application. Every operation is safe to call when nothing
// matches (a no-op, never an error) and maintains the graph invariants:
// deduplicated edge lists and a metadata entry for every node. Operations
// never mutate an edge list while ranging over it; they iterate defensive
// copies.
package transform

import (
	"sort"
	"strings"

	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/pkg/models"
)

// Direction controls which way PropagateMetadata copies values.
type Direction string

const (
	Forward       Direction = "forward"
	Reverse       Direction = "reverse"
	Bidirectional Direction = "both"
)

// NameFunc computes the identifier of an intermediate node from the child
// it is inserted above and that child's metadata.
type NameFunc func(child string, meta map[string]any) string

// ExpandToNumberedInstances replaces each node matching pattern whose
// metadata field fanoutKey names K distinct target nodes with K clones
// base~1..base~K. Clone i keeps the edge to target i only; every non-fanout
// edge (and every incoming edge) is copied to all clones. Nodes already
// carrying a ~N suffix are left alone, making the operation idempotent.
func ExpandToNumberedInstances(g *graph.Graph, pattern, fanoutKey string) {
	for _, id := range g.MatchNodes(pattern) {
		if models.IsNumbered(id) {
			continue
		}
		targets := fanoutTargets(g, id, fanoutKey)
		if len(targets) == 0 {
			continue
		}
		expandNode(g, id, targets)
	}
}

func expandNode(g *graph.Graph, id string, targets []string) {
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	var otherDeps []string
	for _, dep := range g.Edges(id) {
		if !targetSet[dep] {
			otherDeps = append(otherDeps, dep)
		}
	}
	parents := g.Parents(id)
	meta := g.Metadata(id)

	for i, target := range targets {
		clone := models.Numbered(id, i+1)
		g.AddNode(clone)
		for k, v := range meta {
			g.Metadata(clone)[k] = deepCopy(v)
		}
		g.AddEdge(clone, target)
		for _, dep := range otherDeps {
			g.AddEdge(clone, dep)
		}
		for _, parent := range parents {
			g.AddEdge(parent, clone)
		}
	}

	g.DeleteNode(id, true)
}

// fanoutTargets resolves the fanout metadata field to existing node
// identifiers, preserving list order and dropping duplicates and entries
// that name no node.
func fanoutTargets(g *graph.Graph, id, fanoutKey string) []string {
	raw, ok := g.Metadata(id)[fanoutKey]
	if !ok {
		return nil
	}

	var entries []string
	switch val := raw.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				entries = append(entries, s)
			}
		}
	case []string:
		entries = val
	case string:
		entries = []string{val}
	}

	seen := make(map[string]bool)
	var out []string
	for _, entry := range entries {
		target := resolveTarget(g, entry)
		if target != "" && target != id && !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}
	return out
}

// resolveTarget maps a fanout entry to a node: by exact identifier first,
// then by local-name suffix of the entry's last path segment.
func resolveTarget(g *graph.Graph, entry string) string {
	if g.HasNode(entry) {
		return entry
	}
	segments := strings.Split(entry, "/")
	local := segments[len(segments)-1]
	for _, id := range g.Nodes() {
		if models.LocalName(id) == local {
			return id
		}
	}
	return ""
}

// Consolidate redirects every edge touching a node matching pattern to the
// canonical node instead, creates the canonical node if absent, and deletes
// the originals. canonicalMeta seeds the canonical node's metadata on
// creation. Idempotent and order-independent across matches.
func Consolidate(g *graph.Graph, pattern, canonical string, canonicalMeta map[string]any) {
	matches := g.MatchNodes(pattern)
	var victims []string
	for _, id := range matches {
		if id != canonical {
			victims = append(victims, id)
		}
	}
	if len(victims) == 0 {
		return
	}

	if !g.HasNode(canonical) {
		g.AddNode(canonical)
		for k, v := range canonicalMeta {
			g.Metadata(canonical)[k] = deepCopy(v)
		}
	}

	for _, id := range victims {
		for _, parent := range g.Parents(id) {
			g.RemoveEdge(parent, id)
			g.AddEdge(parent, canonical)
		}
		for _, dep := range g.Edges(id) {
			g.AddEdge(canonical, dep)
		}
		g.DeleteNode(id, true)
	}
}

// InsertIntermediateNode rewrites every parent->child edge (parent matching
// parentPattern, child matching childPattern) into parent->name and
// name->child, where name comes from nameFn. A name not yet in the graph is
// created only when createIfMissing is set, carrying forward the child's
// count field if present; otherwise that edge is skipped. No matching edge
// means no change.
func InsertIntermediateNode(g *graph.Graph, parentPattern, childPattern string, nameFn NameFunc, createIfMissing bool) {
	for _, parent := range g.MatchNodes(parentPattern) {
		for _, child := range g.Edges(parent) {
			if !strings.Contains(child, childPattern) {
				continue
			}
			name := nameFn(child, g.Metadata(child))
			if name == "" || name == parent || name == child {
				continue
			}
			if !g.HasNode(name) {
				if !createIfMissing {
					continue
				}
				g.AddNode(name)
				if count, ok := g.Metadata(child)["count"]; ok {
					g.Metadata(name)["count"] = count
				}
			}
			g.RemoveEdge(parent, child)
			g.AddEdge(parent, name)
			g.AddEdge(name, child)
		}
	}
}

// Link adds an edge from every node matching sourcePattern to every node
// matching targetPattern.
func Link(g *graph.Graph, sourcePattern, targetPattern string) {
	for _, src := range g.MatchNodes(sourcePattern) {
		for _, dst := range g.MatchNodes(targetPattern) {
			g.AddEdge(src, dst)
		}
	}
}

// Unlink removes every edge from nodes matching sourcePattern to nodes
// matching targetPattern.
func Unlink(g *graph.Graph, sourcePattern, targetPattern string) {
	for _, src := range g.MatchNodes(sourcePattern) {
		for _, dst := range g.Edges(src) {
			if strings.Contains(dst, targetPattern) {
				g.RemoveEdge(src, dst)
			}
		}
	}
}

// UnlinkFromParents removes matching nodes from their parents' edge lists
// without deleting the nodes. A non-empty parentFilter restricts which
// parents are touched.
func UnlinkFromParents(g *graph.Graph, pattern, parentFilter string) {
	for _, id := range g.MatchNodes(pattern) {
		for _, parent := range g.Parents(id) {
			if parentFilter != "" && !strings.Contains(parent, parentFilter) {
				continue
			}
			g.RemoveEdge(parent, id)
		}
	}
}

// MoveToParent removes matching nodes from parents matching fromFilter and
// attaches them under the node matching toPattern (the first match in
// sorted order; created verbatim when nothing matches and the value names a
// concrete identifier).
func MoveToParent(g *graph.Graph, pattern, fromFilter, toPattern string) {
	matches := g.MatchNodes(pattern)
	if len(matches) == 0 {
		return
	}
	target := firstMatch(g, toPattern)
	if target == "" {
		if !strings.Contains(toPattern, ".") {
			return
		}
		target = toPattern
		g.AddNode(target)
	}
	for _, id := range matches {
		if id == target {
			continue
		}
		for _, parent := range g.Parents(id) {
			if parent == target {
				continue
			}
			if fromFilter != "" && !strings.Contains(parent, fromFilter) {
				continue
			}
			g.RemoveEdge(parent, id)
		}
		g.AddEdge(target, id)
	}
}

// DeleteNodes removes matching nodes and their metadata; when
// removeFromParents is set they are also stripped from every other node's
// edge list.
func DeleteNodes(g *graph.Graph, pattern string, removeFromParents bool) {
	for _, id := range g.MatchNodes(pattern) {
		g.DeleteNode(id, removeFromParents)
	}
}

// GroupShared creates (or reuses) the synthetic group node and moves every
// node matching any of the patterns under it, detaching them from prior
// parents.
func GroupShared(g *graph.Graph, patterns []string, groupName string) {
	if groupName == "" {
		return
	}
	var members []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		for _, id := range g.MatchNodes(pattern) {
			if id != groupName && !seen[id] {
				seen[id] = true
				members = append(members, id)
			}
		}
	}
	if len(members) == 0 {
		return
	}
	sort.Strings(members)

	g.AddNode(groupName)
	for _, id := range members {
		for _, parent := range g.Parents(id) {
			if parent != groupName {
				g.RemoveEdge(parent, id)
			}
		}
		g.AddEdge(groupName, id)
	}
}

// PropagateMetadata copies the named metadata keys between nodes matching
// sourcePattern and nodes matching targetPattern. Forward copies source to
// target, Reverse the opposite, Bidirectional both ways. Existing values
// are never overwritten. With includeChildren set, forward copies also
// reach every graph child of each target.
func PropagateMetadata(g *graph.Graph, sourcePattern, targetPattern string, keys []string, dir Direction, includeChildren bool) {
	sources := g.MatchNodes(sourcePattern)
	targets := g.MatchNodes(targetPattern)

	for _, src := range sources {
		for _, dst := range targets {
			if src == dst {
				continue
			}
			if dir == Forward || dir == Bidirectional {
				copyKeys(g, src, dst, keys)
				if includeChildren {
					for _, child := range g.Edges(dst) {
						copyKeys(g, src, child, keys)
					}
				}
			}
			if dir == Reverse || dir == Bidirectional {
				copyKeys(g, dst, src, keys)
			}
		}
	}
}

func copyKeys(g *graph.Graph, from, to string, keys []string) {
	fromMeta := g.Metadata(from)
	toMeta := g.Metadata(to)
	for _, key := range keys {
		if v, ok := fromMeta[key]; ok {
			if _, exists := toMeta[key]; !exists {
				g.SetMetadata(to, key, deepCopy(v))
			}
		}
	}
}

// ApplyVariants rewrites the effective resource type of every node matching
// pattern whose metadata value at key maps to a variant type. Identifiers
// change in place, so later pattern matches observe the new type.
func ApplyVariants(g *graph.Graph, pattern string, variantMap map[string]string, key string) {
	if key == "" || len(variantMap) == 0 {
		return
	}
	for _, id := range g.MatchNodes(pattern) {
		value, ok := g.Metadata(id)[key].(string)
		if !ok {
			continue
		}
		variant, ok := variantMap[value]
		if !ok || variant == "" {
			continue
		}
		newID := models.WithResourceType(id, variant)
		if newID != id {
			g.Rename(id, newID)
		}
	}
}

func firstMatch(g *graph.Graph, pattern string) string {
	matches := g.MatchNodes(pattern)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
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
