// Package policy gates packages before a build run using OPA Rego rules.
//
// Every policy queries a deny set over a per-package input document
// carrying the atom, tier, and wave placement. Builtin policies block
// excluded package classes and warn about missing tiers and oversized
// waves; user policies loaded from a directory can extend or override
// them, with optional fsnotify-driven reload.
package policy
