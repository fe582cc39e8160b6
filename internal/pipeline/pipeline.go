// Package pipeline drives the provider handler table over the graph: one
// pass per configured resource pattern, in configuration order, each pass
// running declarative transformation steps and/or a registered custom
// function. All passes share and mutate the same graph, so later patterns
// observe earlier patterns' results. A failing pass (error or panic) is
// recorded as a warning and the pipeline moves on; a best-effort graph
// beats an aborted run.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/pkg/models"
)

// Context is handed to custom functions and steps during one pattern pass.
type Context struct {
	// Graph is the live graph; mutations feed the next pattern.
	Graph *graph.Graph
	// Snapshot is the immutable pre-transformation copy. Custom functions
	// use it to recover values earlier passes overwrote.
	Snapshot *graph.Graph
	// Provider is the active rule bundle.
	Provider *provider.Context
	// Pattern is the resource pattern being processed.
	Pattern string
	// Warnings collects non-fatal conditions for the run summary.
	Warnings *models.Warnings
	// Logger is the run logger.
	Logger *slog.Logger
}

// Pipeline executes a provider's handler table.
type Pipeline struct {
	provider *provider.Context
	registry *Registry
	logger   *slog.Logger
}

// New builds a pipeline after validating the provider config against the
// registry and the step table.
func New(pc *provider.Context, reg *Registry, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if err := Validate(pc, reg); err != nil {
		return nil, err
	}
	return &Pipeline{provider: pc, registry: reg, logger: logger}, nil
}

// Run processes every configured pattern against g. snapshot must be the
// immutable copy taken before the first pass.
func (p *Pipeline) Run(g *graph.Graph, snapshot *graph.Graph) models.Warnings {
	var warnings models.Warnings

	for _, h := range p.provider.Handlers {
		if len(g.MatchNodes(h.Pattern)) == 0 {
			p.logger.Debug("skipping handler, no matching nodes", "pattern", h.Pattern)
			continue
		}
		ctx := &Context{
			Graph:    g,
			Snapshot: snapshot,
			Provider: p.provider,
			Pattern:  h.Pattern,
			Warnings: &warnings,
			Logger:   p.logger,
		}
		if err := p.runPattern(ctx, h); err != nil {
			warnings.Add(models.WarnHandlerStep, h.Pattern, "%v", err)
			p.logger.Warn("handler failed, continuing with next pattern",
				"pattern", h.Pattern, "error", err)
		}
	}
	return warnings
}

// runPattern executes one handler with panic isolation, so a buggy custom
// function cannot take down the whole run.
func (p *Pipeline) runPattern(ctx *Context, h provider.HandlerConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	p.logger.Debug("processing pattern", "pattern", h.Pattern, "order", h.Order)

	if h.Order == provider.OrderBefore {
		if err := p.runCustom(ctx, h); err != nil {
			return err
		}
		return p.runSteps(ctx, h)
	}
	if err := p.runSteps(ctx, h); err != nil {
		return err
	}
	return p.runCustom(ctx, h)
}

func (p *Pipeline) runSteps(ctx *Context, h provider.HandlerConfig) error {
	for i, step := range h.Steps {
		if err := p.applyStep(ctx, h, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	return nil
}

func (p *Pipeline) runCustom(ctx *Context, h provider.HandlerConfig) error {
	if h.Custom == "" {
		return nil
	}
	fn := p.registry.Lookup(h.Custom)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("custom function %s: %w", h.Custom, err)
	}
	return nil
}
