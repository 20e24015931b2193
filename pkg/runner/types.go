package runner

import (
	"sort"
	"strings"
	"time"
)

// ResultKind classifies the terminal outcome of a package build.
type ResultKind string

const (
	// ResultSuccess means the build completed and produced its artifacts.
	ResultSuccess ResultKind = "success"

	// ResultFailed is any non-zero exit without a more specific signature.
	ResultFailed ResultKind = "failed"

	// ResultTimeout means the attempt exceeded its wall-clock budget.
	ResultTimeout ResultKind = "timeout"

	// ResultOOM means the build log carried an out-of-memory signature.
	ResultOOM ResultKind = "oom"

	// ResultTransient means the log carried a transient-network signature.
	ResultTransient ResultKind = "transient"

	// ResultSkipped means a dependency did not succeed; never retried.
	ResultSkipped ResultKind = "skipped"
)

// Retryable reports whether another attempt could change the outcome.
// Skipped packages are excluded: retrying cannot change a dependency's
// recorded result.
func (k ResultKind) Retryable() bool {
	switch k {
	case ResultFailed, ResultTimeout, ResultOOM, ResultTransient:
		return true
	default:
		return false
	}
}

// PackageResult is the record of one package's last build attempt. The Build
// Executor exclusively owns it; earlier attempts survive only as files under
// the results directory.
type PackageResult struct {
	Package          string     `json:"package"`
	Version          string     `json:"version"`
	Result           ResultKind `json:"result"`
	BuildTimeSeconds int        `json:"build_time_seconds"`
	HealingActions   int        `json:"healing_actions"`
	Mode             string     `json:"mode"`
	LogFile          string     `json:"log_file"`
	RuntimeLog       string     `json:"runtime_log"`
	BinaryPackage    string     `json:"binary_package"`
	ExitCode         int        `json:"exit_code"`
	Timestamp        string     `json:"timestamp"`
	Attempts         int        `json:"attempts"`
	Reason           string     `json:"reason,omitempty"`
}

// Summary aggregates a finished (or aborted) run for the final report.
type Summary struct {
	Timestamp     string             `json:"timestamp"`
	TotalPackages int                `json:"total_packages"`
	ByResult      map[ResultKind]int `json:"by_result"`
	StateFile     string             `json:"state_file"`
	RunID         string             `json:"run_id"`
	Stopped       bool               `json:"stopped_on_failure,omitempty"`
}

// ResultKinds lists the kinds present in the summary, sorted for stable
// output.
func (s *Summary) ResultKinds() []ResultKind {
	kinds := make([]ResultKind, 0, len(s.ByResult))
	for k := range s.ByResult {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// utcNow formats the current time the way the state file expects.
func utcNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// sanitizeAtom flattens a package atom into a filesystem-safe directory name.
func sanitizeAtom(atom string) string {
	return strings.ReplaceAll(atom, "/", "__")
}
