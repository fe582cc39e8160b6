package engine

import (
	"testing"

	"github.com/matijazezelj/terramap/internal/ingest"
	"github.com/matijazezelj/terramap/internal/pipeline"
	"github.com/matijazezelj/terramap/internal/provider"
	"github.com/matijazezelj/terramap/internal/resolver"
	"github.com/matijazezelj/terramap/pkg/models"
)

// End-to-end: a two-subnet web tier where the availability zones come from
// a variable, expansion fans the instance out per subnet, and an
// availability-zone node is inserted between the vpc and each subnet.
func TestRunFullScenario(t *testing.T) {
	doc := &ingest.Document{
		Graph: map[string][]string{
			"aws_vpc.main":           {"aws_subnet.a", "aws_subnet.b"},
			"aws_subnet.a":           {},
			"aws_subnet.b":           {},
			"aws_instance.web":       {"aws_subnet.a", "aws_subnet.b"},
			"aws_security_group.web": {},
		},
		Meta: map[string]map[string]any{
			"aws_subnet.a": {"availability_zone": "${var.region}a"},
			"aws_subnet.b": {"availability_zone": "${var.region}b"},
			"aws_instance.web": {
				"subnet_ids":      []any{"aws_subnet.a", "aws_subnet.b"},
				"security_groups": "${aws_security_group.web.id}",
			},
		},
		Variables: []resolver.Variable{{Name: "region", Default: "eu-west-1"}},
	}

	pc := &provider.Context{
		Name: "test",
		Handlers: []provider.HandlerConfig{
			{
				Pattern: "aws_instance",
				Steps: []provider.Step{{
					Op:     "expand",
					Params: map[string]any{"fanout_key": "subnet_ids"},
				}},
			},
			{
				Pattern: "aws_subnet",
				Steps: []provider.Step{{
					Op: "insert_intermediate",
					Params: map[string]any{
						"parent":       "aws_vpc",
						"prefix":       "aws_az.",
						"metadata_key": "availability_zone",
					},
				}},
			},
		},
	}

	eng, err := New(pc, pipeline.NewRegistry(), Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Run(doc)
	if err != nil {
		t.Fatal(err)
	}

	// Variable substitution ran before any handler.
	if az := res.Graph.Metadata("aws_subnet.a")["availability_zone"]; az != "eu-west-1a" {
		t.Errorf("availability_zone = %v, want eu-west-1a", az)
	}

	// Expansion: two numbered clones, each in exactly one subnet.
	if res.Graph.HasNode("aws_instance.web") {
		t.Error("original instance should be replaced by numbered clones")
	}
	for i, subnet := range []string{"aws_subnet.a", "aws_subnet.b"} {
		clone := models.Numbered("aws_instance.web", i+1)
		if !res.Graph.HasEdge(clone, subnet) {
			t.Errorf("%s missing edge to %s", clone, subnet)
		}
	}

	// Availability-zone nodes sit between the vpc and its subnets.
	if !res.Graph.HasEdge("aws_vpc.main", "aws_az.eu-west-1a") {
		t.Errorf("vpc not linked to az node, nodes: %v", res.Graph.Nodes())
	}
	if !res.Graph.HasEdge("aws_az.eu-west-1a", "aws_subnet.a") {
		t.Error("az node not linked to its subnet")
	}
	if res.Graph.HasEdge("aws_vpc.main", "aws_subnet.a") {
		t.Error("direct vpc -> subnet edge should be replaced")
	}

	// Inference connected instance -> security group from the metadata
	// reference, and the edge survived expansion onto the clones.
	if !res.Graph.HasEdge("aws_instance.web~1", "aws_security_group.web") {
		t.Error("inferred security group edge missing on clone")
	}

	// The snapshot still holds the pre-transformation shape.
	if !res.Snapshot.HasNode("aws_instance.web") {
		t.Error("snapshot lost the original instance")
	}
	if res.Snapshot.HasNode("aws_instance.web~1") {
		t.Error("snapshot contains post-transformation nodes")
	}
}

func TestRunRepairsMetadataDroppedByHandler(t *testing.T) {
	// A custom function that touches Dict and Meta directly can leave a
	// node without a metadata entry; the run must restore it before export.
	doc := &ingest.Document{
		Graph: map[string][]string{"aws_vpc.main": {}},
		Meta:  map[string]map[string]any{"aws_vpc.main": {"cidr": "10.0.0.0/16"}},
	}
	reg := pipeline.NewRegistry()
	reg.Register("inject_bare_node", func(ctx *pipeline.Context) error {
		ctx.Graph.Dict["aws_subnet.bare"] = []string{}
		delete(ctx.Graph.Meta, "aws_subnet.bare")
		return nil
	})
	pc := &provider.Context{
		Name: "test",
		Handlers: []provider.HandlerConfig{
			{Pattern: "aws_vpc", Custom: "inject_bare_node"},
		},
	}

	eng, err := New(pc, reg, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Run(doc)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Graph.Meta["aws_subnet.bare"]; !ok {
		t.Error("bare node left without a metadata entry")
	}
}

func TestRunStrictFailsOnUnresolved(t *testing.T) {
	doc := &ingest.Document{
		Graph: map[string][]string{"aws_s3_bucket.data": {}},
		Meta: map[string]map[string]any{
			"aws_s3_bucket.data": {"bucket": "${var.missing}"},
		},
	}
	eng, err := New(&provider.Context{Name: "test"}, pipeline.NewRegistry(), Options{Strict: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(doc); err == nil {
		t.Fatal("expected strict mode to fail on unresolved reference")
	}
}

func TestRunCollectsWarnings(t *testing.T) {
	doc := &ingest.Document{
		Graph: map[string][]string{"aws_s3_bucket.data": {}},
		Meta: map[string]map[string]any{
			"aws_s3_bucket.data": {"bucket": "${var.missing}"},
		},
	}
	eng, err := New(&provider.Context{Name: "test"}, pipeline.NewRegistry(), Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Run(doc)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Kind == models.WarnUnresolvedReference {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unresolved_reference warning, got %v", res.Warnings)
	}
	if got := res.Graph.Metadata("aws_s3_bucket.data")["bucket"]; got != "unresolved.var.missing" {
		t.Errorf("bucket = %v, want placeholder", got)
	}
}
