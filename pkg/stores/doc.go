// Package stores persists build run history.
//
// The SQLite store keeps one row per run and one row per terminal package
// result, written live as the runner records results. The schema is managed
// by embedded golang-migrate migrations, so a fresh database bootstraps
// itself on first use.
package stores
