package stores

import "time"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	// RunStatusRunning marks a run that has started and not yet finished.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted marks a run that walked every wave.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusStopped marks a run aborted by stop-on-failure.
	RunStatusStopped RunStatus = "stopped"

	// RunStatusFailed marks a run that aborted on an internal error.
	RunStatusFailed RunStatus = "failed"
)

// Run is one build run's history record.
type Run struct {
	// ID is the run identifier, shared with the state file.
	ID string

	// Mode is the build mode the run used.
	Mode string

	// Status is the run's lifecycle state.
	Status RunStatus

	// TotalPackages is the number of packages with a recorded result.
	TotalPackages int

	// Succeeded, Failed, and Skipped break the total down.
	Succeeded int
	Failed    int
	Skipped   int

	// StartedAt and CompletedAt bound the run; CompletedAt is nil while
	// running.
	StartedAt   time.Time
	CompletedAt *time.Time
}

// PackageResultRow is one package's terminal result within a run.
type PackageResultRow struct {
	ID               int64
	RunID            string
	Package          string
	Result           string
	Attempts         int
	BuildTimeSeconds int
	ExitCode         int
	Reason           string
	LogFile          string
	RecordedAt       time.Time
}
