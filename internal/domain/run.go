package domain

import "time"

// Step identifies the pipeline stage where a per-item failure occurred.
// Consumers rely on it to decide remediation: export failures need a
// resubmission, activation failures only a re-activation.
type Step int

const (
	StepExport Step = iota
	StepActivate
)

func (s Step) String() string {
	switch s {
	case StepExport:
		return "export"
	case StepActivate:
		return "activate"
	default:
		return "unknown"
	}
}

// ExportError records one failing item and the step it failed at.
type ExportError struct {
	Ref     ListingRef
	Step    Step
	Code    string
	Message string
}

// ActivationResult is the outcome of one activation attempt. Every listing
// that exported successfully gets exactly one.
type ActivationResult struct {
	Ref       ListingRef
	Activated bool
	Code      string // set on failure, e.g. ActivationTimeout
	Error     string
}

// ExportOutcome is the terminal result of the export stage, identical in
// shape whether the Partner answered synchronously or through a job.
type ExportOutcome struct {
	Successful int
	Failed     int
	Errors     []ExportError
}

// RunStatus is the overall disposition of a finished run.
type RunStatus int

const (
	RunCompleted RunStatus = iota
	RunFailed
	RunCanceled
)

func (s RunStatus) String() string {
	switch s {
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ExportStats summarizes the export stage of a run.
type ExportStats struct {
	Successful int
	Failed     int
	Errors     []ExportError
}

// RunReport is the unit returned to the caller and stored in history.
// Finalized when both stages complete, never mutated afterward.
//
// Invariant: len(ActivationResults) == ExportStats.Successful. Every export
// success gets exactly one activation attempt and export failures never
// reach activation.
type RunReport struct {
	RunID             string
	StartedAt         time.Time
	FinishedAt        time.Time
	Status            RunStatus
	ErrorCode         string // set when Status != RunCompleted, e.g. PollTimeout
	ExportStats       ExportStats
	ActivationResults []ActivationResult
	ActivationFailed  int // derived count of failed activations
}

// Clone returns a deep copy. The history store copies reports on record so
// a later run cannot corrupt stored entries.
func (r *RunReport) Clone() *RunReport {
	clone := *r
	clone.ExportStats.Errors = append([]ExportError(nil), r.ExportStats.Errors...)
	clone.ActivationResults = append([]ActivationResult(nil), r.ActivationResults...)
	return &clone
}
