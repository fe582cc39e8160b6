package graph

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExportJSONFieldNames(t *testing.T) {
	g := New()
	g.AddEdge("aws_vpc.main", "aws_subnet.a")
	snapshot := g.Snapshot()
	g.AddNode("aws_subnet.b")

	out, err := ExportJSON(NewDocument(g, snapshot, "aws", nil))
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	for _, field := range []string{"graphdict", "meta_data", "original_graphdict", "original_metadata"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}

	var doc Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Graph) != 3 || len(doc.OriginalGraph) != 2 {
		t.Errorf("graph sizes = %d final, %d original", len(doc.Graph), len(doc.OriginalGraph))
	}
}

func TestExportJSONOmitsSnapshotWhenAbsent(t *testing.T) {
	g := New()
	g.AddNode("aws_vpc.main")

	out, err := ExportJSON(NewDocument(g, nil, "aws", nil))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "original_graphdict") {
		t.Error("original_graphdict present without a snapshot")
	}
}

func TestExportDOT(t *testing.T) {
	g := New()
	g.AddEdge("aws_vpc.main", "aws_subnet.a")

	out := ExportDOT(g)
	if !strings.HasPrefix(out, "digraph") {
		t.Errorf("not a digraph: %q", out[:20])
	}
	if !strings.Contains(out, `"aws_vpc.main" -> "aws_subnet.a";`) {
		t.Errorf("missing edge in output:\n%s", out)
	}
	if !strings.Contains(out, `label="main\\n(aws_vpc)"`) {
		t.Errorf("missing node label in output:\n%s", out)
	}
}

func TestExportMermaid(t *testing.T) {
	g := New()
	g.AddEdge("module.app.aws_instance.web~1", "aws_subnet.a")

	out := ExportMermaid(g)
	if !strings.HasPrefix(out, "graph LR") {
		t.Errorf("unexpected header: %q", out)
	}
	// Instance and module separators must be rewritten to identifier-safe
	// characters.
	if !strings.Contains(out, "module_app_aws_instance_web_1 --> aws_subnet_a") {
		t.Errorf("missing edge in output:\n%s", out)
	}
}
