// Package graph builds the package dependency graph and its wave partition.
//
// # Overview
//
// The graph stage consumes a fixed package list and a set of directed
// dependency edges, and computes everything the build executor needs to
// schedule work:
//
//   - Node: per-package degrees, transitive reachability counts, tier label,
//     critical-path score, assigned wave, and a build-time estimate
//   - Waves: an ordered partition where every dependency sits in a strictly
//     earlier wave, safe for unbounded intra-wave parallelism
//   - Components: strongly connected components; a component of size >= 2 is
//     a dependency cycle
//
// # Cycle handling
//
// Cycles are never an error. Atoms the in-degree-zero frontier cannot reach
// are flushed, lexicographically sorted, into one trailing wave, and the
// cycle count is surfaced on the Graph so callers can decide whether the
// cycle is acceptable.
//
// # Determinism
//
// Wave assignment is a pure function of (package list, edge set). Atoms
// within a wave are sorted, edges are sorted, and nodes serialize in build
// order, so the artifacts in this package are diffable in version control.
//
// # Artifacts
//
// WriteArtifacts emits the three documents consumed downstream:
// dependency-graph.json (nodes, edges, components, order, waves, metrics),
// build-order.txt (one atom per line), and build-waves.json.
package graph
