package ingest

import (
	"strings"
	"testing"
)

func TestParseJSON(t *testing.T) {
	data := `{
		"graphdict": {"aws_vpc.main": ["aws_subnet.a"], "aws_subnet.a": []},
		"meta_data": {"aws_vpc.main": {"cidr_block": "10.0.0.0/16"}},
		"variables": [{"name": "environment", "default": "dev", "override": "prod"}],
		"locals": [{"name": "bucket", "value": "${var.environment}-data"}],
		"provider": "aws"
	}`

	doc, err := Parse([]byte(data), "plan.json")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Graph) != 2 || doc.Provider != "aws" {
		t.Errorf("unexpected document: %+v", doc)
	}
	in := doc.Inputs()
	if len(in.Variables) != 1 || in.Variables[0].Override != "prod" {
		t.Errorf("variables = %+v", in.Variables)
	}
	if len(in.Locals) != 1 {
		t.Errorf("locals = %+v", in.Locals)
	}
}

func TestParseYAML(t *testing.T) {
	data := `
graphdict:
  aws_vpc.main: [aws_subnet.a]
  aws_subnet.a: []
meta_data:
  aws_subnet.a:
    availability_zone: eu-west-1a
variables:
  - name: environment
    default: dev
`
	doc, err := Parse([]byte(data), "plan.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if az := doc.Meta["aws_subnet.a"]["availability_zone"]; az != "eu-west-1a" {
		t.Errorf("availability_zone = %v", az)
	}
}

func TestParseMissingGraphdictIsFatal(t *testing.T) {
	_, err := Parse([]byte(`{"meta_data": {}}`), "plan.json")
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *ParseError
	if !asParseError(err, &perr) {
		t.Fatalf("error type = %T", err)
	}
	if !strings.Contains(perr.Reason, "graphdict") {
		t.Errorf("reason = %q", perr.Reason)
	}
}

func TestParseEmptyIdentifiersRejected(t *testing.T) {
	tests := []string{
		`{"graphdict": {"": []}}`,
		`{"graphdict": {"a.x": [""]}}`,
	}
	for _, data := range tests {
		if _, err := Parse([]byte(data), "plan.json"); err == nil {
			t.Errorf("accepted invalid document: %s", data)
		}
	}
}

func TestParseMalformedJSONIsFatal(t *testing.T) {
	if _, err := Parse([]byte(`{not json`), "plan.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseMetaDefaultsToEmpty(t *testing.T) {
	doc, err := Parse([]byte(`{"graphdict": {"a.x": []}}`), "plan.json")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Meta == nil {
		t.Error("Meta should default to an empty map")
	}
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}
