// Package resolver turns symbolic reference tokens in node attributes
// (${var.x}, ${local.y}, module output references, bare var./local. paths)
// into literal values.
//
// Resolution is a fixpoint over the whole binding set: variables first
// (override > default > unset), then locals, then module outputs published
// to their parent scope once fully literal. Each round substitutes every
// resolvable token in every binding and every node attribute; the loop
// stops when a round replaces nothing or when the iteration cap is hit.
// Cyclic or unsatisfiable chains therefore terminate at the cap with a
// warning, and any token still present afterwards is rewritten to a
// normalized placeholder rather than aborting the run.
package resolver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/matijazezelj/terramap/internal/graph"
	"github.com/matijazezelj/terramap/pkg/models"
)

// DefaultMaxIterations caps the substitution loop when not configured.
const DefaultMaxIterations = 100

// Variable is one declared input variable. A nil Override means no
// override was supplied and the default applies; a nil Default too means
// the variable is unset and references to it stay unresolved.
type Variable struct {
	Module   string `json:"module,omitempty" yaml:"module,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
	Override any    `json:"override,omitempty" yaml:"override,omitempty"`
}

// Local is one declared local value; its expression may reference
// variables and other locals of the same module.
type Local struct {
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
	Name   string `json:"name" yaml:"name"`
	Value  any    `json:"value" yaml:"value"`
}

// Output is one declared module output. Once its value is fully literal it
// becomes visible in the parent module as module.<name>.<output>.
type Output struct {
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
	Name   string `json:"name" yaml:"name"`
	Value  any    `json:"value" yaml:"value"`
}

// Inputs is the full set of declared bindings for one run.
type Inputs struct {
	Variables []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Locals    []Local    `json:"locals,omitempty" yaml:"locals,omitempty"`
	Outputs   []Output   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Options controls resolution behavior.
type Options struct {
	// MaxIterations caps the fixpoint loop; zero means DefaultMaxIterations.
	MaxIterations int
	// Strict promotes unresolved-reference warnings to an error after the
	// graph has been fully resolved.
	Strict bool
}

var (
	interpRe   = regexp.MustCompile(`\$\{([^}]+)\}`)
	plainRefRe = regexp.MustCompile(`^(var|local|data|module)\.[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
)

// scope holds the bindings visible inside one module.
type scope struct {
	path     string // "" for root, else "module.app" / "module.app.module.db"
	bindings map[string]any
}

type run struct {
	scopes map[string]*scope
	// outputs not yet published to their parent scope
	pending []*pendingOutput
	logger  *slog.Logger
}

type pendingOutput struct {
	out       Output
	value     any
	published bool
}

// Resolve substitutes reference tokens in every node attribute of g in
// place and returns the warnings collected. Under Options.Strict an error
// is returned after resolution when any placeholder was produced, so the
// error can name every remaining reference.
func Resolve(g *graph.Graph, in Inputs, opts Options, logger *slog.Logger) (models.Warnings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	r := &run{scopes: make(map[string]*scope), logger: logger}
	r.buildScopes(g, in)

	var warnings models.Warnings
	converged := false
	for round := 0; round < maxIter; round++ {
		if r.round(g) == 0 {
			converged = true
			break
		}
	}
	if !converged {
		warnings.Add(models.WarnResolutionDiverged, "",
			"resolution did not converge after %d iterations; cyclic or unsatisfiable references remain", maxIter)
		logger.Warn("resolution did not converge", "iterations", maxIter)
	}

	unresolved := r.placeholderPass(g, &warnings)

	if opts.Strict && len(unresolved) > 0 {
		sort.Strings(unresolved)
		return warnings, fmt.Errorf("strict mode: %d unresolved reference(s): %s",
			len(unresolved), strings.Join(unresolved, ", "))
	}
	return warnings, nil
}

func (r *run) buildScopes(g *graph.Graph, in Inputs) {
	ensure := func(path string) *scope {
		sc, ok := r.scopes[path]
		if !ok {
			sc = &scope{path: path, bindings: make(map[string]any)}
			r.scopes[path] = sc
		}
		return sc
	}

	ensure("")
	for _, id := range g.Nodes() {
		ensure(nodeScope(id))
	}

	// Variables first: override wins over default; neither means unset
	// and the binding is simply absent.
	for _, v := range in.Variables {
		sc := ensure(v.Module)
		switch {
		case v.Override != nil:
			sc.bindings["var."+v.Name] = v.Override
		case v.Default != nil:
			sc.bindings["var."+v.Name] = v.Default
		}
	}
	for _, l := range in.Locals {
		ensure(l.Module).bindings["local."+l.Name] = l.Value
	}
	for _, o := range in.Outputs {
		ensure(o.Module)
		r.pending = append(r.pending, &pendingOutput{out: o, value: o.Value})
	}
}

// scopePaths returns every scope path ordered deepest module first, with
// lexicographic order breaking depth ties. Resolving child scopes before
// their parents lets an output published during a pass feed parent
// bindings in that same pass.
func (r *run) scopePaths() []string {
	paths := sortedKeys(r.scopes)
	sort.SliceStable(paths, func(i, j int) bool {
		return strings.Count(paths[i], "module.") > strings.Count(paths[j], "module.")
	})
	return paths
}

// round performs one substitution pass over bindings, outputs, and node
// attributes, returning the number of tokens replaced.
func (r *run) round(g *graph.Graph) int {
	replaced := 0

	// Deepest modules first, so child outputs become available to parents
	// within the same pass.
	for _, path := range r.scopePaths() {
		sc := r.scopes[path]
		for _, key := range sortedKeys(sc.bindings) {
			val, n := r.substitute(sc.bindings[key], sc)
			sc.bindings[key] = val
			replaced += n
		}
	}

	for _, p := range r.pending {
		if p.published {
			continue
		}
		sc := r.scopes[p.out.Module]
		val, n := r.substitute(p.value, sc)
		p.value = val
		replaced += n
		if !containsToken(val) {
			r.publish(p)
		}
	}

	for _, id := range g.Nodes() {
		sc := r.scopes[nodeScope(id)]
		if sc == nil {
			sc = r.scopes[""]
		}
		meta := g.Metadata(id)
		for _, key := range sortedKeys(meta) {
			val, n := r.substitute(meta[key], sc)
			meta[key] = val
			replaced += n
		}
	}

	return replaced
}

// publish makes a fully resolved output visible to the parent module as
// module.<childName>.<output>.
func (r *run) publish(p *pendingOutput) {
	p.published = true
	parent, childName := splitModulePath(p.out.Module)
	if childName == "" {
		// Root-level outputs have no parent to publish into.
		return
	}
	sc, ok := r.scopes[parent]
	if !ok {
		sc = &scope{path: parent, bindings: make(map[string]any)}
		r.scopes[parent] = sc
	}
	sc.bindings["module."+childName+"."+p.out.Name] = p.value
	r.logger.Debug("published module output",
		"module", p.out.Module, "output", p.out.Name)
}

// substitute replaces every resolvable token in v, recursing through lists
// and maps, and returns the new value plus the replacement count.
func (r *run) substitute(v any, sc *scope) (any, int) {
	switch val := v.(type) {
	case string:
		return r.substituteString(val, sc)
	case []any:
		n := 0
		out := make([]any, len(val))
		for i, item := range val {
			sub, c := r.substitute(item, sc)
			out[i] = sub
			n += c
		}
		return out, n
	case map[string]any:
		n := 0
		for _, key := range sortedKeys(val) {
			sub, c := r.substitute(val[key], sc)
			val[key] = sub
			n += c
		}
		return val, n
	default:
		return v, 0
	}
}

func (r *run) substituteString(s string, sc *scope) (any, int) {
	// A bare reference covering the whole string resolves with its type
	// preserved (a list stays a list).
	if plainRefRe.MatchString(s) {
		if val, ok := r.lookup(s, sc); ok {
			return val, 1
		}
		return s, 0
	}

	// Same for a single interpolation spanning the whole string.
	if m := interpRe.FindStringSubmatch(s); m != nil && m[0] == s {
		if val, ok := r.lookup(m[1], sc); ok {
			return val, 1
		}
		return s, 0
	}

	n := 0
	out := interpRe.ReplaceAllStringFunc(s, func(tok string) string {
		path := tok[2 : len(tok)-1]
		val, ok := r.lookup(path, sc)
		if !ok {
			return tok
		}
		n++
		return stringify(val)
	})
	return out, n
}

// lookup resolves a reference path against a scope's bindings.
func (r *run) lookup(path string, sc *scope) (any, bool) {
	if sc == nil {
		return nil, false
	}
	path = normalizeRef(path)
	switch {
	case strings.HasPrefix(path, "var."), strings.HasPrefix(path, "local."):
		v, ok := sc.bindings[path]
		return v, ok
	case strings.HasPrefix(path, "module."):
		// Only module.<name>.<output> is a binding reference; longer paths
		// are node identifiers and stay untouched.
		if strings.Count(path, ".") != 2 {
			return nil, false
		}
		v, ok := sc.bindings[path]
		return v, ok
	default:
		// data.* and anything else has no binding source here.
		return nil, false
	}
}

// placeholderPass rewrites every token still present in node attributes to
// the normalized placeholder form and records one warning per node/token.
func (r *run) placeholderPass(g *graph.Graph, warnings *models.Warnings) []string {
	seen := make(map[string]bool)
	for _, id := range g.Nodes() {
		meta := g.Metadata(id)
		for _, key := range sortedKeys(meta) {
			meta[key] = replaceUnresolved(meta[key], func(path string) {
				if !seen[id+"\x00"+path] {
					seen[id+"\x00"+path] = true
					warnings.Add(models.WarnUnresolvedReference, id,
						"no binding for %s; kept as %s%s", path, models.UnresolvedPrefix, path)
					r.logger.Warn("unresolved reference", "node", id, "reference", path)
				}
			})
		}
	}
	var paths []string
	dedup := make(map[string]bool)
	for key := range seen {
		path := key[strings.Index(key, "\x00")+1:]
		if !dedup[path] {
			dedup[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

func replaceUnresolved(v any, report func(path string)) any {
	switch val := v.(type) {
	case string:
		if plainRefRe.MatchString(val) && !isNodeRef(val) {
			path := normalizeRef(val)
			report(path)
			return models.UnresolvedPrefix + path
		}
		return interpRe.ReplaceAllStringFunc(val, func(tok string) string {
			path := normalizeRef(tok[2 : len(tok)-1])
			report(path)
			return models.UnresolvedPrefix + path
		})
	case []any:
		for i, item := range val {
			val[i] = replaceUnresolved(item, report)
		}
		return val
	case map[string]any:
		for _, key := range sortedKeys(val) {
			val[key] = replaceUnresolved(val[key], report)
		}
		return val
	default:
		return v
	}
}

// isNodeRef reports whether a bare module.-prefixed string names a graph
// node (module path plus type.name) rather than a module output binding.
// Those must survive resolution intact for the inferencer to match.
func isNodeRef(s string) bool {
	return strings.HasPrefix(s, "module.") && strings.Count(s, ".") >= 3
}

// normalizeRef maps module.X.output.Y to the module.X.Y binding form.
func normalizeRef(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) == 4 && parts[0] == "module" && parts[2] == "output" {
		return strings.Join([]string{parts[0], parts[1], parts[3]}, ".")
	}
	return path
}

// nodeScope returns the module scope path a node belongs to.
func nodeScope(id string) string {
	return strings.TrimSuffix(models.ModulePath(id), ".")
}

// splitModulePath splits "module.app.module.db" into parent
// "module.app" and local child name "db".
func splitModulePath(path string) (parent, child string) {
	if path == "" {
		return "", ""
	}
	i := strings.LastIndex(path, "module.")
	child = strings.TrimPrefix(path[i:], "module.")
	parent = strings.TrimSuffix(path[:i], ".")
	return parent, child
}

func containsToken(v any) bool {
	switch val := v.(type) {
	case string:
		return interpRe.MatchString(val) || plainRefRe.MatchString(val)
	case []any:
		for _, item := range val {
			if containsToken(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range val {
			if containsToken(item) {
				return true
			}
		}
	}
	return false
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
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
