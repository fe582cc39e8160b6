package graph

import (
	"context"
	"database/sql"
	"testing"

	"github.com/matijazezelj/terramap/pkg/models"
	_ "modernc.org/sqlite"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatal(err)
	}
	a := &Archive{db: db}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testDocument() *Document {
	g := New()
	g.AddEdge("aws_vpc.main", "aws_subnet.a")
	g.AddEdge("aws_vpc.main", "aws_subnet.b")
	g.SetMetadata("aws_subnet.a", "availability_zone", "eu-west-1a")
	snapshot := g.Snapshot()

	warnings := models.Warnings{}
	warnings.Add(models.WarnUnresolvedReference, "aws_subnet.b", "no value for var.cidr")
	return NewDocument(g, snapshot, "aws", warnings)
}

func TestSaveAndGetRun(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.SaveRun(ctx, testDocument(), "plan.json")
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero run ID")
	}

	doc, run, err := a.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || run == nil {
		t.Fatal("expected run, got nil")
	}
	if run.Provider != "aws" || run.Source != "plan.json" {
		t.Errorf("run = %+v", run)
	}
	if run.NodeCount != 3 || run.EdgeCount != 2 {
		t.Errorf("counts = %d nodes, %d edges", run.NodeCount, run.EdgeCount)
	}
	if got := doc.Graph["aws_vpc.main"]; len(got) != 2 {
		t.Errorf("graphdict[aws_vpc.main] = %v", got)
	}
	if az := doc.Meta["aws_subnet.a"]["availability_zone"]; az != "eu-west-1a" {
		t.Errorf("availability_zone = %v", az)
	}
	if doc.OriginalGraph == nil {
		t.Error("original graph not round-tripped")
	}
	if len(doc.Warnings) != 1 || doc.Warnings[0].Kind != models.WarnUnresolvedReference {
		t.Errorf("warnings = %v", doc.Warnings)
	}
}

func TestGetRunMissing(t *testing.T) {
	a := newTestArchive(t)

	doc, run, err := a.GetRun(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil || run != nil {
		t.Error("expected nil for a missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := a.SaveRun(ctx, testDocument(), "plan.json"); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := a.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID <= runs[1].ID {
		t.Errorf("runs not newest first: %d, %d", runs[0].ID, runs[1].ID)
	}
}

func TestDeleteRun(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.SaveRun(ctx, testDocument(), "plan.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.DeleteRun(ctx, id); err != nil {
		t.Fatal(err)
	}

	doc, _, err := a.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Error("run still present after delete")
	}

	count, err := a.RunCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("RunCount = %d, want 0", count)
	}
}
