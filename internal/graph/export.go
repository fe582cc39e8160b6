package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matijazezelj/terramap/pkg/models"
)

// Document is the stable export contract handed to the renderer and to
// other tooling. The graphdict/meta_data/original_graphdict/
// original_metadata field names must not change.
type Document struct {
	Graph         map[string][]string       `json:"graphdict"`
	Meta          map[string]map[string]any `json:"meta_data"`
	OriginalGraph map[string][]string       `json:"original_graphdict,omitempty"`
	OriginalMeta  map[string]map[string]any `json:"original_metadata,omitempty"`
	Provider      string                    `json:"provider,omitempty"`
	Warnings      models.Warnings           `json:"warnings,omitempty"`
}

// NewDocument assembles the export document from a final graph and the
// pre-transformation snapshot. snapshot may be nil.
func NewDocument(g *Graph, snapshot *Graph, provider string, warnings models.Warnings) *Document {
	doc := &Document{
		Graph:    g.Dict,
		Meta:     g.Meta,
		Provider: provider,
		Warnings: warnings,
	}
	if snapshot != nil {
		doc.OriginalGraph = snapshot.Dict
		doc.OriginalMeta = snapshot.Meta
	}
	return doc
}

// ExportJSON returns the document as indented JSON.
func ExportJSON(doc *Document) (string, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling graph document: %w", err)
	}
	return string(b), nil
}

// ExportDOT returns the final graph in Graphviz DOT format.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph terramap {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled];\n\n")

	for _, id := range g.Nodes() {
		label := fmt.Sprintf("%s\\n(%s)", models.LocalName(id), models.ResourceType(id))
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q];\n", id, label, nodeColor(id)))
	}

	b.WriteString("\n")

	for _, id := range g.Nodes() {
		for _, dep := range g.Dict[id] {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", id, dep))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid returns the final graph in Mermaid format.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, id := range g.Nodes() {
		b.WriteString(fmt.Sprintf("  %s[\"%s (%s)\"]\n",
			mermaidSafeID(id), models.LocalName(id), models.ResourceType(id)))
	}

	for _, id := range g.Nodes() {
		for _, dep := range g.Dict[id] {
			b.WriteString(fmt.Sprintf("  %s --> %s\n", mermaidSafeID(id), mermaidSafeID(dep)))
		}
	}

	return b.String()
}

func nodeColor(id string) string {
	t := models.ResourceType(id)
	switch {
	case strings.Contains(t, "instance"), strings.Contains(t, "vm"):
		return "#AED6F1"
	case strings.Contains(t, "lambda"), strings.Contains(t, "function"):
		return "#F5B041"
	case strings.Contains(t, "lb"), strings.Contains(t, "gateway"):
		return "#F5CBA7"
	case strings.Contains(t, "db"), strings.Contains(t, "rds"), strings.Contains(t, "dynamo"):
		return "#D7BDE2"
	case strings.Contains(t, "vpc"), strings.Contains(t, "network"):
		return "#85C1E9"
	case strings.Contains(t, "subnet"), strings.Contains(t, "az"):
		return "#A9CCE3"
	case strings.Contains(t, "security"), strings.Contains(t, "firewall"):
		return "#F0B27A"
	case strings.Contains(t, "bucket"), strings.Contains(t, "storage"):
		return "#A3E4D7"
	case strings.Contains(t, "dns"), strings.Contains(t, "route53"):
		return "#82E0AA"
	default:
		return "#D5D8DC"
	}
}

func mermaidSafeID(id string) string {
	r := strings.NewReplacer(":", "_", ".", "_", "-", "_", "/", "_", "~", "_")
	return r.Replace(id)
}
