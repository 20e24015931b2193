package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// StarlarkEvaluator executes user-supplied Starlark hooks safely. buildwave
// uses it for the build-time estimate hook, which replaces the builtin tier
// table when configured.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate executes a script with the given predeclared input and returns the
// exported globals. Execution is bounded by the evaluator timeout.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (map[string]interface{}, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)

	go func() {
		output, err := se.evaluateSync(script, input)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- output
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("starlark execution timeout after %v", se.timeout)
	case err := <-errCh:
		return nil, err
	case output := <-resultCh:
		return output, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(script string, input map[string]interface{}) (map[string]interface{}, error) {
	thread := &starlark.Thread{
		Name: "buildwave",
		Print: func(_ *starlark.Thread, _ string) {
			// Suppress print output from hooks.
		},
	}

	predeclared := starlark.StringDict{}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "hook.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return output, nil
}

// EstimateHook wraps a Starlark script into a per-package build-time
// estimator. The script receives `atom`, `tier`, and `default_minutes` and
// must export an integer global `minutes`.
func (se *StarlarkEvaluator) EstimateHook(script string, fallback func(atom, tier string) int) func(atom, tier string) int {
	return func(atom, tier string) int {
		input := map[string]interface{}{
			"atom":            atom,
			"tier":            tier,
			"default_minutes": fallback(atom, tier),
		}
		output, err := se.Evaluate(context.Background(), script, input)
		if err != nil {
			return fallback(atom, tier)
		}
		minutes, ok := output["minutes"].(int64)
		if !ok || minutes <= 0 {
			return fallback(atom, tier)
		}
		return int(minutes)
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(val interface{}) (starlark.Value, error) {
	switch v := val.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []string:
		list := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			list = append(list, starlark.String(item))
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(v))
		for key, item := range v {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported input type %T", val)
	}
}

// fromStarlarkValue converts a Starlark value back to a Go value.
func fromStarlarkValue(val starlark.Value) (interface{}, error) {
	switch v := val.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return nil, fmt.Errorf("integer out of range: %s", v.String())
		}
		return i, nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case *starlark.List:
		items := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := fromStarlarkValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, v.Len())
		for _, key := range v.Keys() {
			str, ok := key.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("non-string dict key: %s", key.String())
			}
			item, _, err := v.Get(key)
			if err != nil {
				return nil, err
			}
			converted, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			out[string(str)] = converted
		}
		return out, nil
	case *starlark.Function, *starlark.Builtin:
		// Functions are not exported.
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported output type %s", val.Type())
	}
}
