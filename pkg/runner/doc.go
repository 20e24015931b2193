// Package runner executes the build plan produced by the graph package.
//
// # Overview
//
// A run walks the wave partition in order. Within each wave, atoms whose
// dependencies all succeeded are drained through a bounded worker pool; atoms
// with a failed dependency are recorded as skipped and never retried. Each
// build gets up to max_retries+1 attempts with a linear backoff, and every
// terminal result is persisted to the state file before the runner moves on,
// so an interrupted run resumes where it left off.
//
// The Executor interface isolates the container runtime. DockerExecutor runs
// real builds and classifies failures from the exit code and log text;
// DryRunExecutor rehearses the schedule with synthetic successes.
package runner
