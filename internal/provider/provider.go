// Package provider holds the per-provider rule tables driving relationship
// inference and the handler pipeline: consolidation rules, variant rules,
// implied-connection rules, shared-service grouping, and the ordered
// handler dispatch table. A Context is pure data, built once at startup
// and passed through every call; there is no package-level mutable state.
package provider

import (
	"fmt"
	"strings"
)

// NodeDescriptor names a canonical node a consolidation rule maps onto.
type NodeDescriptor struct {
	ID   string         `yaml:"id"`
	Meta map[string]any `yaml:"metadata,omitempty"`
}

// ConsolidationRule redirects every node whose identifier contains Prefix
// into the canonical node To.
type ConsolidationRule struct {
	Prefix string         `yaml:"prefix"`
	To     NodeDescriptor `yaml:"to"`
}

// VariantRule rewrites the effective resource type of nodes matching
// Prefix based on the value of metadata key Key.
type VariantRule struct {
	Prefix string            `yaml:"prefix"`
	Key    string            `yaml:"key"`
	Map    map[string]string `yaml:"map"`
}

// ImpliedRule adds an edge to the nearest node whose type matches Target
// whenever Keyword appears anywhere in a node's metadata, even without a
// literal identifier reference.
type ImpliedRule struct {
	Keyword string `yaml:"keyword"`
	Target  string `yaml:"target"`
}

// Grouping names the resource-type patterns considered shared services and
// the synthetic group node they are moved under.
type Grouping struct {
	Patterns  []string `yaml:"patterns"`
	GroupName string   `yaml:"group_name"`
}

// Step is one declarative transformation in a handler: an operation name
// plus its parameters. Operation names are validated against the pipeline's
// step table at configuration-load time.
type Step struct {
	Op     string         `yaml:"op"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Execution order values for HandlerConfig.Order.
const (
	OrderBefore = "before"
	OrderAfter  = "after"
)

// HandlerConfig configures processing for one resource-type pattern:
// declarative steps, an optional custom function by registered name, and
// whether the custom function runs before or after the steps.
type HandlerConfig struct {
	Pattern string `yaml:"pattern"`
	Steps   []Step `yaml:"steps,omitempty"`
	Custom  string `yaml:"custom,omitempty"`
	Order   string `yaml:"order,omitempty"`
}

// Context is one provider's resolved configuration bundle.
type Context struct {
	Name           string              `yaml:"name"`
	Consolidations []ConsolidationRule `yaml:"consolidations,omitempty"`
	Variants       []VariantRule       `yaml:"variants,omitempty"`
	Implied        []ImpliedRule       `yaml:"implied,omitempty"`
	Grouping       Grouping            `yaml:"grouping,omitempty"`
	Handlers       []HandlerConfig     `yaml:"handlers,omitempty"`
}

// ConsolidationFor returns the first rule matching id in configuration
// order, plus the total number of matching rules so callers can log an
// ambiguity when more than one applies.
func (c *Context) ConsolidationFor(id string) (*ConsolidationRule, int) {
	var first *ConsolidationRule
	matches := 0
	for i := range c.Consolidations {
		if strings.Contains(id, c.Consolidations[i].Prefix) {
			if first == nil {
				first = &c.Consolidations[i]
			}
			matches++
		}
	}
	return first, matches
}

// VariantFor returns the first variant rule matching id, or nil.
func (c *Context) VariantFor(id string) *VariantRule {
	for i := range c.Variants {
		if strings.Contains(id, c.Variants[i].Prefix) {
			return &c.Variants[i]
		}
	}
	return nil
}

func (c *Context) validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider config missing name")
	}
	for _, h := range c.Handlers {
		if h.Pattern == "" {
			return fmt.Errorf("provider %s: handler with empty pattern", c.Name)
		}
		switch h.Order {
		case "", OrderBefore, OrderAfter:
		default:
			return fmt.Errorf("provider %s: handler %s: invalid order %q (use %q or %q)",
				c.Name, h.Pattern, h.Order, OrderBefore, OrderAfter)
		}
		if len(h.Steps) == 0 && h.Custom == "" {
			return fmt.Errorf("provider %s: handler %s configures no steps and no custom function",
				c.Name, h.Pattern)
		}
		for _, s := range h.Steps {
			if s.Op == "" {
				return fmt.Errorf("provider %s: handler %s: step with empty op", c.Name, h.Pattern)
			}
		}
	}
	for _, r := range c.Consolidations {
		if r.Prefix == "" || r.To.ID == "" {
			return fmt.Errorf("provider %s: consolidation rule needs prefix and to.id", c.Name)
		}
	}
	for _, r := range c.Variants {
		if r.Prefix == "" || r.Key == "" || len(r.Map) == 0 {
			return fmt.Errorf("provider %s: variant rule needs prefix, key and map", c.Name)
		}
	}
	for _, r := range c.Implied {
		if r.Keyword == "" || r.Target == "" {
			return fmt.Errorf("provider %s: implied rule needs keyword and target", c.Name)
		}
	}
	return nil
}
