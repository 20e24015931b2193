// Package config loads and validates buildwave configuration.
//
// # Overview
//
// The package covers three concerns:
//
//   - The YAML run configuration (runner tunables, artifact paths,
//     telemetry, policy), loaded with defaults and validated with struct
//     tags.
//   - CUE schema validation for the generated graph artifacts, so a
//     hand-edited or truncated artifact is rejected before a run starts.
//   - A sandboxed Starlark evaluator for the optional build-time estimate
//     hook.
package config
