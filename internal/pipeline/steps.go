package pipeline

import (
	"fmt"

	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/internal/transform"
	"github.com/matijazezelj/terramap/pkg/models"
)

// Step operation names accepted in provider handler configs.
const (
	opExpand             = "expand"
	opConsolidate        = "consolidate"
	opInsertIntermediate = "insert_intermediate"
	opLink               = "link"
	opUnlink             = "unlink"
	opUnlinkFromParents  = "unlink_from_parents"
	opMoveToParent       = "move_to_parent"
	opDeleteNodes        = "delete_nodes"
	opGroupShared        = "group_shared"
	opPropagateMetadata  = "propagate_metadata"
	opApplyVariants      = "apply_variants"
)

var knownOps = map[string]bool{
	opExpand:             true,
	opConsolidate:        true,
	opInsertIntermediate: true,
	opLink:               true,
	opUnlink:             true,
	opUnlinkFromParents:  true,
	opMoveToParent:       true,
	opDeleteNodes:        true,
	opGroupShared:        true,
	opPropagateMetadata:  true,
	opApplyVariants:      true,
}

// Validate checks a provider context against the step table and the custom
// function registry, so misconfiguration fails at startup rather than
// mid-run.
func Validate(pc *provider.Context, reg *Registry) error {
	for _, h := range pc.Handlers {
		if h.Custom != "" && reg.Lookup(h.Custom) == nil {
			return fmt.Errorf("provider %s: handler %s references unknown custom function %q (registered: %v)",
				pc.Name, h.Pattern, h.Custom, reg.Names())
		}
		for _, s := range h.Steps {
			if !knownOps[s.Op] {
				return fmt.Errorf("provider %s: handler %s references unknown operation %q",
					pc.Name, h.Pattern, s.Op)
			}
		}
	}
	return nil
}

// applyStep runs one declarative transformation. The handler's pattern is
// the default for every pattern-shaped parameter, and provider rule tables
// fill in consolidation targets, variant maps, and grouping when the step
// does not spell them out.
func (p *Pipeline) applyStep(ctx *Context, h provider.HandlerConfig, step provider.Step) error {
	g := ctx.Graph
	params := step.Params
	pattern := stringParam(params, "pattern", h.Pattern)

	switch step.Op {
	case opExpand:
		key := stringParam(params, "fanout_key", "")
		if key == "" {
			return fmt.Errorf("expand requires fanout_key")
		}
		transform.ExpandToNumberedInstances(g, pattern, key)

	case opConsolidate:
		canonical := stringParam(params, "to", "")
		var meta map[string]any
		if canonical == "" {
			rule, matches := ctx.Provider.ConsolidationFor(pattern)
			if rule == nil {
				return fmt.Errorf("no consolidation rule for pattern %q", pattern)
			}
			if matches > 1 {
				ctx.Warnings.Add(models.WarnConsolidationAmbiguity, "",
					"%d consolidation rules match %q; using first in config order (%s)",
					matches, pattern, rule.To.ID)
			}
			canonical = rule.To.ID
			meta = rule.To.Meta
		}
		transform.Consolidate(g, pattern, canonical, meta)

	case opInsertIntermediate:
		parent := stringParam(params, "parent", "")
		if parent == "" {
			return fmt.Errorf("insert_intermediate requires parent")
		}
		child := stringParam(params, "child", pattern)
		prefix := stringParam(params, "prefix", "")
		metaKey := stringParam(params, "metadata_key", "")
		create := boolParam(params, "create", true)
		nameFn := func(childID string, meta map[string]any) string {
			var suffix string
			if metaKey != "" {
				suffix, _ = meta[metaKey].(string)
			} else {
				suffix = models.LocalName(childID)
			}
			if suffix == "" {
				return ""
			}
			return prefix + suffix
		}
		transform.InsertIntermediateNode(g, parent, child, nameFn, create)

	case opLink:
		target := stringParam(params, "target", "")
		if target == "" {
			return fmt.Errorf("link requires target")
		}
		transform.Link(g, stringParam(params, "source", pattern), target)

	case opUnlink:
		target := stringParam(params, "target", "")
		if target == "" {
			return fmt.Errorf("unlink requires target")
		}
		transform.Unlink(g, stringParam(params, "source", pattern), target)

	case opUnlinkFromParents:
		transform.UnlinkFromParents(g, pattern, stringParam(params, "parent_filter", ""))

	case opMoveToParent:
		to := stringParam(params, "to", "")
		if to == "" {
			return fmt.Errorf("move_to_parent requires to")
		}
		transform.MoveToParent(g, pattern, stringParam(params, "from", ""), to)

	case opDeleteNodes:
		transform.DeleteNodes(g, pattern, boolParam(params, "remove_from_parents", true))

	case opGroupShared:
		patterns := stringsParam(params, "patterns")
		groupName := stringParam(params, "group_name", "")
		if len(patterns) == 0 {
			patterns = ctx.Provider.Grouping.Patterns
		}
		if groupName == "" {
			groupName = ctx.Provider.Grouping.GroupName
		}
		transform.GroupShared(g, patterns, groupName)

	case opPropagateMetadata:
		target := stringParam(params, "target", "")
		keys := stringsParam(params, "keys")
		if target == "" || len(keys) == 0 {
			return fmt.Errorf("propagate_metadata requires target and keys")
		}
		dir := transform.Direction(stringParam(params, "direction", string(transform.Forward)))
		transform.PropagateMetadata(g,
			stringParam(params, "source", pattern), target, keys, dir,
			boolParam(params, "include_children", false))

	case opApplyVariants:
		key := stringParam(params, "key", "")
		variantMap := stringMapParam(params, "map")
		if key == "" || len(variantMap) == 0 {
			rule := ctx.Provider.VariantFor(pattern)
			if rule == nil {
				return fmt.Errorf("no variant rule for pattern %q", pattern)
			}
			key = rule.Key
			variantMap = rule.Map
		}
		transform.ApplyVariants(g, pattern, variantMap, key)

	default:
		return fmt.Errorf("unknown operation %q", step.Op)
	}
	return nil
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringMapParam(params map[string]any, key string) map[string]string {
	out := make(map[string]string)
	switch v := params[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
