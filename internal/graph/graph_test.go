package graph

import (
	"reflect"
	"testing"
)

// buildGraph creates a graph from adjacency pairs, in order.
func buildGraph(t *testing.T, edges [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func TestAddEdgeDeduplicates(t *testing.T) {
	g := New()
	g.AddEdge("a.x", "b.y")
	g.AddEdge("a.x", "b.y")
	g.AddEdge("a.x", "c.z")

	if got := g.Edges("a.x"); !reflect.DeepEqual(got, []string{"b.y", "c.z"}) {
		t.Errorf("Edges(a.x) = %v, want [b.y c.z]", got)
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New()
	g.AddEdge("a.x", "a.x")
	if len(g.Edges("a.x")) != 0 {
		t.Errorf("self-loop was added: %v", g.Edges("a.x"))
	}
}

func TestAddEdgeCreatesMetadata(t *testing.T) {
	g := New()
	g.AddEdge("a.x", "b.y")
	for _, id := range []string{"a.x", "b.y"} {
		if _, ok := g.Meta[id]; !ok {
			t.Errorf("node %s has no metadata entry", id)
		}
	}
}

func TestEdgeOrderIsInsertionOrder(t *testing.T) {
	g := New()
	g.AddEdge("a.x", "c.z")
	g.AddEdge("a.x", "b.y")
	if got := g.Edges("a.x"); !reflect.DeepEqual(got, []string{"c.z", "b.y"}) {
		t.Errorf("Edges(a.x) = %v, want insertion order [c.z b.y]", got)
	}
}

func TestParents(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"vpc.main", "subnet.a"},
		{"vpc.other", "subnet.a"},
		{"subnet.a", "instance.web"},
	})
	if got := g.Parents("subnet.a"); !reflect.DeepEqual(got, []string{"vpc.main", "vpc.other"}) {
		t.Errorf("Parents(subnet.a) = %v", got)
	}
	if got := g.Parents("vpc.main"); got != nil {
		t.Errorf("Parents(vpc.main) = %v, want none", got)
	}
}

func TestDeleteNodeStripsFromParents(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"vpc.main", "subnet.a"},
		{"subnet.a", "instance.web"},
	})
	g.DeleteNode("subnet.a", true)

	if g.HasNode("subnet.a") {
		t.Error("subnet.a still present")
	}
	if _, ok := g.Meta["subnet.a"]; ok {
		t.Error("subnet.a metadata still present")
	}
	if g.HasEdge("vpc.main", "subnet.a") {
		t.Error("vpc.main still references subnet.a")
	}
}

func TestRenameRewritesIncomingEdges(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"vpc.main", "aws_ecs_service.app"},
		{"aws_ecs_service.app", "subnet.a"},
	})
	g.SetMetadata("aws_ecs_service.app", "launch_type", "FARGATE")

	g.Rename("aws_ecs_service.app", "aws_fargate_service.app")

	if g.HasNode("aws_ecs_service.app") {
		t.Error("old node still present")
	}
	if !g.HasEdge("vpc.main", "aws_fargate_service.app") {
		t.Error("incoming edge was not rewritten")
	}
	if !g.HasEdge("aws_fargate_service.app", "subnet.a") {
		t.Error("outgoing edge was not carried over")
	}
	if got := g.Metadata("aws_fargate_service.app")["launch_type"]; got != "FARGATE" {
		t.Errorf("metadata not carried over, got %v", got)
	}
}

func TestMetadataReturnsLiveMap(t *testing.T) {
	// Writes through Metadata must land in the graph even when the node
	// had no metadata entry yet.
	g := New()
	g.Dict["a.x"] = []string{}

	g.Metadata("a.x")["env"] = "prod"

	if got := g.Meta["a.x"]["env"]; got != "prod" {
		t.Errorf("Meta[a.x][env] = %v, want prod", got)
	}
	if got := g.Metadata("a.x")["env"]; got != "prod" {
		t.Errorf("Metadata(a.x)[env] = %v, want prod", got)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	g := New()
	g.AddEdge("a.x", "b.y")
	g.SetMetadata("a.x", "tags", map[string]any{"env": "dev"})

	snap := g.Snapshot()

	g.AddEdge("a.x", "c.z")
	g.Metadata("a.x")["tags"].(map[string]any)["env"] = "prod"

	if len(snap.Edges("a.x")) != 1 {
		t.Errorf("snapshot edges mutated: %v", snap.Edges("a.x"))
	}
	if got := snap.Metadata("a.x")["tags"].(map[string]any)["env"]; got != "dev" {
		t.Errorf("snapshot metadata mutated: %v", got)
	}
}

func TestFromRawDeduplicatesAndFillsMeta(t *testing.T) {
	g := FromRaw(
		map[string][]string{
			"a.x": {"b.y", "b.y", "c.z"},
			"b.y": {},
		},
		map[string]map[string]any{"a.x": {"name": "x"}},
	)

	if got := g.Edges("a.x"); !reflect.DeepEqual(got, []string{"b.y", "c.z"}) {
		t.Errorf("Edges(a.x) = %v", got)
	}
	for _, id := range []string{"a.x", "b.y", "c.z"} {
		if _, ok := g.Meta[id]; !ok {
			t.Errorf("node %s has no metadata entry", id)
		}
	}
}

func TestMatchNodes(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"aws_subnet.a", "aws_instance.web"},
		{"aws_subnet.b", "aws_instance.api"},
	})
	got := g.MatchNodes("aws_subnet")
	if !reflect.DeepEqual(got, []string{"aws_subnet.a", "aws_subnet.b"}) {
		t.Errorf("MatchNodes(aws_subnet) = %v", got)
	}
	if got := g.MatchNodes(""); got != nil {
		t.Errorf("MatchNodes(\"\") = %v, want nil", got)
	}
}
