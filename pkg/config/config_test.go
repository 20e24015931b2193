package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildwave.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
runner:
  image: example/builder:1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Runner.Image != "example/builder:1" {
		t.Errorf("image not applied: %s", cfg.Runner.Image)
	}
	if cfg.Runner.Parallelism != 4 {
		t.Errorf("expected default parallelism 4, got %d", cfg.Runner.Parallelism)
	}
	if cfg.Runner.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Runner.MaxRetries)
	}
	if cfg.Runner.Mode != "hardened" {
		t.Errorf("expected default mode hardened, got %s", cfg.Runner.Mode)
	}
	if !cfg.Runner.Resume {
		t.Error("expected resume enabled by default")
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `
runner:
  image: example/builder:1
paths:
  build_order: data/build-order.txt
  state_file: /var/lib/buildwave/state.json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	root := filepath.Dir(path)
	if cfg.Paths.BuildOrder != filepath.Join(root, "data/build-order.txt") {
		t.Errorf("relative path not resolved: %s", cfg.Paths.BuildOrder)
	}
	if cfg.Paths.StateFile != "/var/lib/buildwave/state.json" {
		t.Errorf("absolute path must be untouched: %s", cfg.Paths.StateFile)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero parallelism", "runner:\n  image: x\n  parallelism: 0\n"},
		{"negative retries", "runner:\n  image: x\n  max_retries: -1\n"},
		{"bad exporter", "runner:\n  image: x\ntelemetry:\n  trace_exporter: jaeger\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}
