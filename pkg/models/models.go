// Package models defines the shared vocabulary of the graph pipeline:
// node identifier conventions and the warning values collected during a run.
//
// A node identifier has the form
//
//	[module.<name>.]...<resource_type>.<local_name>[~N]
//
// where the optional module segments qualify nested modules and the
// optional ~N suffix (N >= 1) marks one numbered instance of an expanded
// resource. Identifiers are case-sensitive and unique within a graph.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// InstanceSeparator joins a base identifier and its instance number.
const InstanceSeparator = "~"

// UnresolvedPrefix marks reference tokens that could not be resolved.
// A token like ${var.zone} with no matching binding becomes
// "unresolved.var.zone" so downstream stages can still use the rest of
// the attribute value.
const UnresolvedPrefix = "unresolved."

// SplitInstance splits a possibly-numbered identifier into its base and
// instance number. ok is false when the identifier carries no ~N suffix.
func SplitInstance(id string) (base string, n int, ok bool) {
	i := strings.LastIndex(id, InstanceSeparator)
	if i < 0 {
		return id, 0, false
	}
	num, err := strconv.Atoi(id[i+1:])
	if err != nil || num < 1 {
		return id, 0, false
	}
	return id[:i], num, true
}

// Numbered returns the identifier for instance n of base.
func Numbered(base string, n int) string {
	return fmt.Sprintf("%s%s%d", base, InstanceSeparator, n)
}

// IsNumbered reports whether id carries a ~N instance suffix.
func IsNumbered(id string) bool {
	_, _, ok := SplitInstance(id)
	return ok
}

// ModulePath returns the leading module.<name>. segments of id, including
// the trailing dot, or "" for a root-level identifier.
func ModulePath(id string) string {
	rest := id
	var prefix strings.Builder
	for strings.HasPrefix(rest, "module.") {
		parts := strings.SplitN(rest, ".", 3)
		if len(parts) < 3 {
			break
		}
		prefix.WriteString(parts[0])
		prefix.WriteString(".")
		prefix.WriteString(parts[1])
		prefix.WriteString(".")
		rest = parts[2]
	}
	return prefix.String()
}

// ResourceType returns the resource type segment of id, without module
// qualification or instance suffix.
func ResourceType(id string) string {
	base, _, _ := SplitInstance(id)
	rest := strings.TrimPrefix(base, ModulePath(base))
	if i := strings.Index(rest, "."); i >= 0 {
		return rest[:i]
	}
	return rest
}

// LocalName returns the segment after the last dot of id, without any
// instance suffix. This is the partially-qualified form other resources
// may use to reference the node.
func LocalName(id string) string {
	base, _, _ := SplitInstance(id)
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[i+1:]
	}
	return base
}

// WithResourceType returns id with its resource type segment replaced,
// preserving module qualification and any instance suffix.
func WithResourceType(id, newType string) string {
	base, n, numbered := SplitInstance(id)
	mod := ModulePath(base)
	rest := strings.TrimPrefix(base, mod)
	local := rest
	if i := strings.Index(rest, "."); i >= 0 {
		local = rest[i+1:]
	}
	out := mod + newType + "." + local
	if numbered {
		out = Numbered(out, n)
	}
	return out
}

// WarningKind classifies a non-fatal condition recorded during a run.
type WarningKind string

const (
	WarnUnresolvedReference    WarningKind = "unresolved_reference"
	WarnResolutionDiverged     WarningKind = "resolution_did_not_converge"
	WarnConsolidationAmbiguity WarningKind = "consolidation_ambiguity"
	WarnHandlerStep            WarningKind = "handler_step"
)

// Warning is one recorded non-fatal condition. Warnings are collected and
// surfaced as a summary alongside the final graph, never as silent loss.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Node   string      `json:"node,omitempty"`
	Detail string      `json:"detail"`
}

func (w Warning) String() string {
	if w.Node != "" {
		return fmt.Sprintf("%s [%s]: %s", w.Kind, w.Node, w.Detail)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
}

// Warnings accumulates warnings across pipeline stages.
type Warnings []Warning

// Add appends a warning.
func (ws *Warnings) Add(kind WarningKind, node, format string, args ...any) {
	*ws = append(*ws, Warning{Kind: kind, Node: node, Detail: fmt.Sprintf(format, args...)})
}
