package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do
	// not block the call.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the capability call.
	SeverityError Severity = "error"

	// SeverityCritical blocks the capability call and flags it for
	// immediate attention.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the call.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego policy.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the policy source. Its deny rules fire violations.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not
	// carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineInput is the machine portion of a policy input document.
type MachineInput struct {
	// Name is the inventory name of the machine.
	Name string `json:"name"`

	// Labels are the machine's inventory labels.
	Labels map[string]string `json:"labels"`
}

// Input is the document handed to every policy evaluation.
type Input struct {
	// Machine identifies the target machine.
	Machine MachineInput `json:"machine"`

	// Guest is the resolved guest OS family.
	Guest string `json:"guest"`

	// Capability is the capability name being dispatched.
	Capability string `json:"capability"`

	// Args are the capability arguments.
	Args []any `json:"args"`

	// User is the operator running the call, when known.
	User string `json:"user,omitempty"`

	// Timestamp is when the evaluation occurs.
	Timestamp time.Time `json:"timestamp"`
}

// Violation is one policy finding.
type Violation struct {
	// Policy is the name of the policy that fired.
	Policy string `json:"policy"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity is the finding severity.
	Severity Severity `json:"severity"`

	// DetectedAt is when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// Decision is the outcome of evaluating all policies for one call.
type Decision struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies names the policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long evaluation took.
	Duration time.Duration `json:"duration"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Blocking returns the violations that caused a deny.
func (d *Decision) Blocking() []Violation {
	var out []Violation
	for _, v := range d.Violations {
		if v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}
