// Package ingest loads and validates the source document the upstream
// plan/graph generator produces: the raw adjacency map, per-node attribute
// maps, and the declared variables, locals, and module outputs. Documents
// are accepted as JSON or YAML; a previous run's export is itself a valid
// input (the graphdict/meta_data contract), which is how archived runs are
// replayed.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/matijazezelj/terramap/internal/resolver"
)

// Document is the raw input to the engine.
type Document struct {
	Graph     map[string][]string       `json:"graphdict" yaml:"graphdict"`
	Meta      map[string]map[string]any `json:"meta_data" yaml:"meta_data"`
	Variables []resolver.Variable       `json:"variables,omitempty" yaml:"variables,omitempty"`
	Locals    []resolver.Local          `json:"locals,omitempty" yaml:"locals,omitempty"`
	Outputs   []resolver.Output         `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Provider optionally names the provider pack to use, overridable on
	// the command line.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// ParseError marks structurally invalid input. It is the one fatal error
// class: everything downstream degrades to warnings instead.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Path, e.Reason)
}

// Load reads and validates a source document from path. The format is
// chosen by extension, falling back to JSON.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a source document. path is used for error
// messages and format detection only.
func Parse(data []byte, path string) (*Document, error) {
	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ParseError{Path: path, Reason: err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &ParseError{Path: path, Reason: err.Error()}
		}
	}
	if err := doc.Validate(path); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate enforces the structural requirements: graphdict must be present
// and every listed dependency must be a string identifier. Missing
// metadata entries are tolerated here; graph construction backfills them.
func (d *Document) Validate(path string) error {
	if d.Graph == nil {
		return &ParseError{Path: path, Reason: "missing required field graphdict"}
	}
	for id, deps := range d.Graph {
		if id == "" {
			return &ParseError{Path: path, Reason: "graphdict contains an empty node identifier"}
		}
		for _, dep := range deps {
			if dep == "" {
				return &ParseError{Path: path, Reason: fmt.Sprintf("node %s lists an empty dependency", id)}
			}
		}
	}
	if d.Meta == nil {
		d.Meta = make(map[string]map[string]any)
	}
	return nil
}

// Inputs assembles the resolver inputs from the declarations.
func (d *Document) Inputs() resolver.Inputs {
	return resolver.Inputs{
		Variables: d.Variables,
		Locals:    d.Locals,
		Outputs:   d.Outputs,
	}
}
