package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/buildwave/buildwave/pkg/telemetry"
)

// Engine evaluates admission policies against packages before a run.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

// compiledPolicy is a parsed policy ready for evaluation.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a policy engine preloaded with the builtin policies.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("policy-engine"),
	}

	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := e.compileAndStore(&p); err != nil {
			return nil, fmt.Errorf("failed to compile builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// AddPolicies compiles and registers loaded policies. A policy with the same
// name as an existing one replaces it, so user policies can override the
// builtins.
func (e *Engine) AddPolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	e.logger.Infof("loaded %d policies", len(policies))
	return nil
}

// ReplacePolicies swaps the full policy set: builtins plus the given
// policies. Used by the watch-driven reload.
func (e *Engine) ReplacePolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledPolicy)
	old := e.policies
	e.policies = next

	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := e.compileAndStore(&p); err != nil {
			e.policies = old
			return err
		}
	}
	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			e.policies = old
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// EvaluatePackages runs every enabled policy against every package and
// aggregates the violations. The result is denied when any error-severity
// violation fires.
func (e *Engine) EvaluatePackages(ctx context.Context, packages []PackageInput) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		for i := range packages {
			input := &Input{Package: &packages[i]}
			vs, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				return nil, fmt.Errorf("policy %s failed on %s: %w", name, packages[i].Atom, err)
			}
			violations = append(violations, vs...)
		}
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	e.logger.Debugf("evaluated %d policies over %d packages: %d violations",
		len(names), len(packages), len(violations))

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		EvaluatedAt: time.Now().UTC(),
	}, nil
}

// evaluatePolicy queries the policy's deny set for one input document.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cp.policy, d, input))
			}
		}
	}
	return violations, nil
}

// toViolation converts a raw deny result into a Violation.
func (e *Engine) toViolation(policy *Policy, result interface{}, input *Input) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}
	if input.Package != nil {
		v.Package = input.Package.Atom
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if atom, ok := r["package"].(string); ok {
			v.Package = atom
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// ListPolicies returns all registered policies, sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// compileAndStore parses a policy and registers it. Callers hold the mutex
// (or run before the engine is shared).
func (e *Engine) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}
	return nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "buildwave.policies"
}
