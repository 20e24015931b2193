package config

import (
	"context"
	"testing"
	"time"
)

func TestStarlarkEvaluator_ExportsGlobals(t *testing.T) {
	se := NewStarlarkEvaluator(time.Second)
	output, err := se.Evaluate(context.Background(), "result = base * 2\n_hidden = 1\n", map[string]interface{}{
		"base": 21,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if output["result"] != int64(42) {
		t.Errorf("expected result 42, got %v", output["result"])
	}
	if _, exists := output["_hidden"]; exists {
		t.Error("underscore globals must not be exported")
	}
}

func TestStarlarkEvaluator_SyntaxError(t *testing.T) {
	se := NewStarlarkEvaluator(time.Second)
	if _, err := se.Evaluate(context.Background(), "def broken(", nil); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestEstimateHook_OverridesDefault(t *testing.T) {
	se := NewStarlarkEvaluator(time.Second)
	fallback := func(atom, tier string) int { return 6 }

	script := `minutes = 30 if atom == "sys-devel/gcc" else default_minutes`
	estimate := se.EstimateHook(script, fallback)

	if got := estimate("sys-devel/gcc", "unknown"); got != 30 {
		t.Errorf("expected 30 for gcc, got %d", got)
	}
	if got := estimate("a/x", "unknown"); got != 6 {
		t.Errorf("expected fallback 6, got %d", got)
	}
}

func TestEstimateHook_FallsBackOnBadScript(t *testing.T) {
	se := NewStarlarkEvaluator(time.Second)
	fallback := func(atom, tier string) int { return 7 }

	estimate := se.EstimateHook(`minutes = "not a number"`, fallback)
	if got := estimate("a/x", "unknown"); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}
