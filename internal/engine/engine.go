// Package engine wires the pipeline stages together: build the graph from
// the ingested document, resolve references, infer relationships, snapshot,
// then run the provider handler table. Stages are strictly sequential;
// each depends on the previous one's completed output.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/internal/inferencer"
	"github.com/matijazezelj/terramap/internal/ingest"
	"github.com/matijazezelj/terramap/internal/pipeline"
	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/internal/resolver"
	"github.com/matijazezelj/terramap/pkg/models"
)

// Options configures one run.
type Options struct {
	// MaxIterations caps the resolver fixpoint loop (0 = default).
	MaxIterations int
	// Strict promotes unresolved references to an error.
	Strict bool
}

// Result is the outcome of a run: the final graph, the immutable
// pre-transformation snapshot, and every warning collected along the way.
type Result struct {
	Graph    *graph.Graph
	Snapshot *graph.Graph
	Provider string
	Warnings models.Warnings
}

// Engine runs the full transformation for one provider context.
type Engine struct {
	provider *provider.Context
	pipeline *pipeline.Pipeline
	opts     Options
	logger   *slog.Logger
}

// New builds an engine, validating the provider config against the custom
// function registry up front.
func New(pc *provider.Context, reg *pipeline.Registry, opts Options, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pl, err := pipeline.New(pc, reg, logger)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}
	return &Engine{provider: pc, pipeline: pl, opts: opts, logger: logger}, nil
}

// Run executes resolution, inference, and the handler pipeline over doc.
func (e *Engine) Run(doc *ingest.Document) (*Result, error) {
	g := graph.FromRaw(doc.Graph, doc.Meta)
	e.logger.Info("graph constructed", "nodes", len(g.Dict), "provider", e.provider.Name)

	warnings, err := resolver.Resolve(g, doc.Inputs(), resolver.Options{
		MaxIterations: e.opts.MaxIterations,
		Strict:        e.opts.Strict,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("resolving references: %w", err)
	}

	added := inferencer.Infer(g, e.provider.Implied, e.logger)
	e.logger.Info("relationship inference complete", "edges_added", added)

	// The snapshot is the stable source handlers consult for values the
	// transformation stages overwrite; it is never mutated afterwards.
	snapshot := g.Snapshot()

	warnings = append(warnings, e.pipeline.Run(g, snapshot)...)

	// Every creation path adds a metadata entry with the node; a missing
	// entry here means a custom handler broke that rule, so repair it and
	// say so rather than exporting a node without metadata.
	for _, id := range g.Nodes() {
		if _, ok := g.Meta[id]; !ok {
			e.logger.Warn("node missing metadata entry after pipeline", "node", id)
			g.AddNode(id)
		}
	}

	e.logger.Info("transformation complete",
		"nodes", len(g.Dict), "warnings", len(warnings))
	return &Result{Graph: g, Snapshot: snapshot, Provider: e.provider.Name, Warnings: warnings}, nil
}
