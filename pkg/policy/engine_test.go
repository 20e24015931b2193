package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildwave/buildwave/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return logger
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testLogger(t))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestEvaluatePackages_AllowsOrdinaryPackage(t *testing.T) {
	e := testEngine(t)
	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "dev-libs/openssl", Tier: "tier2-core-libraries", Wave: 1, WaveSize: 12},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("ordinary package denied: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}
}

func TestEvaluatePackages_DeniesExcludedPrefix(t *testing.T) {
	e := testEngine(t)
	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "virtual/libc", Tier: "tier1-core-infrastructure", Wave: 0, WaveSize: 3},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("excluded package admitted")
	}
	denied := result.Denied()
	if len(denied) != 1 || denied[0].Package != "virtual/libc" {
		t.Errorf("unexpected denials: %+v", denied)
	}
}

func TestEvaluatePackages_DeniesExcludedAtom(t *testing.T) {
	e := testEngine(t)
	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "dev-lang/rust-bin", Tier: "tier3-toolchain", Wave: 2, WaveSize: 5},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("excluded atom admitted")
	}
}

func TestEvaluatePackages_WarnsWithoutDenying(t *testing.T) {
	e := testEngine(t)
	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "app-misc/foo", Tier: "", Wave: 3, WaveSize: 200},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("warnings must not deny: %+v", result.Violations)
	}
	// Missing tier and oversized wave both fire.
	if len(result.Violations) != 2 {
		t.Errorf("expected 2 warnings, got %+v", result.Violations)
	}
	if len(result.Denied()) != 0 {
		t.Errorf("warnings leaked into denials: %+v", result.Denied())
	}
}

func TestAddPolicies_UserPolicyOverridesBuiltin(t *testing.T) {
	e := testEngine(t)

	relaxed := Policy{
		Name:     "excluded-packages",
		Severity: SeverityWarning,
		Enabled:  true,
		Rego: `package buildwave.policies.exclusions

import rego.v1

deny contains violation if {
	false
	violation := {"message": "never"}
}
`,
	}
	if err := e.AddPolicies([]Policy{relaxed}); err != nil {
		t.Fatalf("AddPolicies failed: %v", err)
	}

	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "virtual/libc", Tier: "tier1-core-infrastructure", Wave: 0, WaveSize: 3},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("override did not take effect: %+v", result.Violations)
	}
}

func TestAddPolicies_RejectsBadRego(t *testing.T) {
	e := testEngine(t)
	err := e.AddPolicies([]Policy{{Name: "broken", Rego: "package broken\n\ndeny[", Enabled: true}})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	regoBody := `# Blocks the foo package.
package buildwave.policies.custom

import rego.v1

deny contains violation if {
	input.package.atom == "app-misc/foo"
	violation := {
		"message": "foo is blocked",
		"severity": "error",
		"package": input.package.atom,
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(regoBody), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	loader := NewLoader(testLogger(t))
	policies, err := loader.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	if policies[0].Name != "custom" {
		t.Errorf("unexpected policy name: %s", policies[0].Name)
	}
	if policies[0].Description != "Blocks the foo package." {
		t.Errorf("description not extracted: %q", policies[0].Description)
	}

	e := testEngine(t)
	if err := e.AddPolicies(policies); err != nil {
		t.Fatalf("AddPolicies failed: %v", err)
	}
	result, err := e.EvaluatePackages(context.Background(), []PackageInput{
		{Atom: "app-misc/foo", Tier: "tier4-applications", Wave: 4, WaveSize: 8},
	})
	if err != nil {
		t.Fatalf("EvaluatePackages failed: %v", err)
	}
	if result.Allowed {
		t.Error("custom policy did not deny")
	}
}

func TestLoader_MissingDir(t *testing.T) {
	loader := NewLoader(testLogger(t))
	policies, err := loader.LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("expected no policies, got %d", len(policies))
	}
}
