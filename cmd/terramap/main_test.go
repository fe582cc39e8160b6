package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matijazezelj/terramap/internal/graph"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"DEBUG", slog.LevelDebug, false},
		{"Error", slog.LevelError, false},
		{"invalid", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseLogLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		}
	}
}

func TestRenderDocumentUnsupportedFormat(t *testing.T) {
	g := graph.New()
	if _, err := renderDocument(graph.NewDocument(g, nil, "aws", nil), g, "png"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestWriteOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeOutput("{}", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("file contents = %q", data)
	}
}

func TestTransformCmdEndToEnd(t *testing.T) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	dir := t.TempDir()
	input := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(input, []byte(`{
		"graphdict": {
			"aws_vpc.main": ["aws_subnet.a"],
			"aws_subnet.a": []
		},
		"meta_data": {
			"aws_subnet.a": {"availability_zone": "${var.region}a"}
		},
		"variables": [{"name": "region", "default": "eu-west-1"}]
	}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out.json")
	cmd := transformCmd()
	cmd.SetArgs([]string{input, "--provider", "aws", "--format", "json", "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var doc graph.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not a valid document: %v", err)
	}
	if az := doc.Meta["aws_subnet.a"]["availability_zone"]; az != "eu-west-1a" {
		t.Errorf("availability_zone = %v, want eu-west-1a", az)
	}
	if doc.OriginalGraph == nil {
		t.Error("original graph missing from export")
	}
}

func TestVersionCmd(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	cmd := versionCmd()
	cmd.Run(cmd, nil)

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	if !strings.Contains(buf.String(), "terramap") {
		t.Errorf("version output should contain 'terramap', got %q", buf.String())
	}
}

func TestCompletionCmd_Bash(t *testing.T) {
	root := &cobra.Command{Use: "terramap"}
	root.AddCommand(completionCmd())

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	root.SetArgs([]string{"completion", "bash"})
	err := root.Execute()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	if err != nil {
		t.Fatalf("completion bash error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("completion bash produced no output")
	}
}

func TestCompletionCmd_InvalidShell(t *testing.T) {
	root := &cobra.Command{Use: "terramap"}
	root.AddCommand(completionCmd())

	root.SetArgs([]string{"completion", "invalid"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for invalid shell")
	}
}
