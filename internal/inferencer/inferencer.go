// Package inferencer derives graph edges from resolved node attributes.
// A value referencing another node's identifier (fully qualified, or just
// its local name) produces an edge from the referencing node to the
// referenced node. The provider's implied-connection table additionally
// links nodes to the nearest node of a target type when a configured
// keyword appears anywhere in their metadata, covering relationships the
// source format never states literally (security boundaries and the like).
package inferencer

import (
	"log/slog"
	"strings"

	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/pkg/models"
)

// Infer scans every node's metadata and adds reference and implied edges
// in place, returning the number of edges added. It never fails: a value
// matching nothing simply contributes no edge.
func Infer(g *graph.Graph, implied []provider.ImpliedRule, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	nodes := g.Nodes()
	localIndex := make(map[string][]string)
	for _, id := range nodes {
		local := models.LocalName(id)
		localIndex[local] = append(localIndex[local], id)
	}

	added := 0
	for _, id := range nodes {
		for _, value := range collectStrings(g.Metadata(id)) {
			for _, target := range referencedNodes(value, id, nodes, localIndex) {
				if !g.HasEdge(id, target) {
					g.AddEdge(id, target)
					added++
					logger.Debug("inferred reference edge", "from", id, "to", target)
				}
			}
		}
	}

	added += inferImplied(g, implied, logger)
	return added
}

// referencedNodes returns every node the value references, first by full
// identifier containment, then by whole-token local-name match for
// partially-qualified references.
func referencedNodes(value, self string, nodes []string, localIndex map[string][]string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, id := range nodes {
		if id != self && strings.Contains(value, id) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, token := range tokenize(value) {
		for _, id := range localIndex[token] {
			if id != self && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func inferImplied(g *graph.Graph, rules []provider.ImpliedRule, logger *slog.Logger) int {
	added := 0
	for _, rule := range rules {
		targets := g.MatchNodes(rule.Target)
		if len(targets) == 0 {
			continue
		}
		for _, id := range g.Nodes() {
			if strings.Contains(id, rule.Target) {
				continue
			}
			if !metadataContainsKeyword(g.Metadata(id), rule.Keyword) {
				continue
			}
			target := nearest(id, targets)
			if target != "" && !g.HasEdge(id, target) {
				g.AddEdge(id, target)
				added++
				logger.Debug("implied connection",
					"from", id, "to", target, "keyword", rule.Keyword)
			}
		}
	}
	return added
}

// nearest picks the candidate sharing the longest module-path prefix with
// id; candidates arrive sorted, so ties break lexicographically.
func nearest(id string, candidates []string) string {
	idPath := models.ModulePath(id)
	best := ""
	bestLen := -1
	for _, c := range candidates {
		l := commonPrefixLen(idPath, models.ModulePath(c))
		if l > bestLen {
			best = c
			bestLen = l
		}
	}
	return best
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func metadataContainsKeyword(meta map[string]any, keyword string) bool {
	for key := range meta {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	for _, s := range collectStrings(meta) {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// collectStrings gathers every string in a metadata map, recursing through
// nested lists and maps.
func collectStrings(m map[string]any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			out = append(out, val)
		case []any:
			for _, item := range val {
				walk(item)
			}
		case []string:
			for _, item := range val {
				out = append(out, item)
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	for _, v := range m {
		walk(v)
	}
	return out
}

// tokenize splits a value into identifier-shaped tokens so local-name
// matches only fire on whole segments, not arbitrary substrings.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_', r == '-':
			return false
		default:
			return true
		}
	})
}
