package policy

import "time"

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the run.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// CreatedAt is when the policy was loaded.
	CreatedAt time.Time `json:"created_at"`
}

// PackageInput describes one package as seen by admission policies.
type PackageInput struct {
	// Atom is the package identifier.
	Atom string `json:"atom"`

	// Tier is the package's tier label, empty when unclassified.
	Tier string `json:"tier"`

	// Wave is the wave index the scheduler assigned.
	Wave int `json:"wave"`

	// WaveSize is the number of packages sharing that wave.
	WaveSize int `json:"wave_size"`
}

// Input is the document handed to every policy evaluation.
type Input struct {
	Package *PackageInput `json:"package,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that produced the violation.
	Policy string `json:"policy"`

	// Package is the atom the violation concerns.
	Package string `json:"package,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of policy evaluation.
type Result struct {
	// Allowed is false when any error-severity violation was produced.
	Allowed bool `json:"allowed"`

	// Violations lists all violations, warnings included.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Denied returns only the error-severity violations.
func (r *Result) Denied() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}
