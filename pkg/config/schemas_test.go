package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildwave/buildwave/pkg/graph"
)

func writeGraphArtifacts(t *testing.T) string {
	t.Helper()

	b, err := graph.NewBuilder([]string{"b/base", "a/app"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if err := b.AddEdge("b/base", "a/app", graph.EdgeKindRuntime); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	g, err := b.Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	dir := t.TempDir()
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := graph.WriteArtifacts(g, dir, graph.Sources{PackageList: "packages.txt"}, ts); err != nil {
		t.Fatalf("WriteArtifacts failed: %v", err)
	}
	return dir
}

func TestSchemaRegistry_AcceptsGeneratedArtifacts(t *testing.T) {
	dir := writeGraphArtifacts(t)
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if err := sr.ValidateGraphArtifact(ctx, filepath.Join(dir, graph.GraphFileName)); err != nil {
		t.Errorf("graph artifact rejected: %v", err)
	}
	if err := sr.ValidateWavesArtifact(ctx, filepath.Join(dir, graph.WavesFileName)); err != nil {
		t.Errorf("waves artifact rejected: %v", err)
	}
}

func TestSchemaRegistry_RejectsMalformedArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	body := `{"schema_version":"v1","generated_at":"now","wave_count":1,"waves":[{"wave":-1,"count":0,"packages":[""]}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	sr := NewSchemaRegistry()
	if err := sr.ValidateWavesArtifact(context.Background(), path); err == nil {
		t.Fatal("expected schema violation")
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateAgainstSchema(context.Background(), "nope", map[string]interface{}{}); err == nil {
		t.Fatal("expected unknown-schema error")
	}
}
