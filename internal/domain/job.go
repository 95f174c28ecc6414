package domain

import "time"

// JobStatus is the lifecycle state of a Partner export job.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobSucceeded
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final. No further polls are issued
// once a terminal status has been observed.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ExportJob represents one submission to the Partner. Mutated only by the
// polling engine; immutable once Status reaches a terminal value.
type ExportJob struct {
	JobID                     string
	ListingRefs               []ListingRef
	SubmittedAt               time.Time
	Status                    JobStatus
	TotalCount                int
	ProcessedCount            int
	SuccessCount              int
	FailureCount              int
	CurrentItem               *ListingRef
	EstimatedSecondsRemaining int
}

// ProgressPercent returns processed/total as a percentage clamped to
// [0,100]. Zero when TotalCount is zero.
func (j *ExportJob) ProgressPercent() int {
	if j.TotalCount <= 0 {
		return 0
	}
	pct := j.ProcessedCount * 100 / j.TotalCount
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// JobSnapshot is one observation of a remote job's status. The Errors list
// is only populated on terminal responses.
type JobSnapshot struct {
	Status      JobStatus
	Processed   int
	Total       int
	Successful  int
	Failed      int
	CurrentItem *ListingRef
	Errors      []ExportError
}

// SubmitResult normalizes the Partner's two submission responses: a job
// handle for large batches, or an immediate outcome for small ones. Exactly
// one of the fields is set.
type SubmitResult struct {
	JobID   string
	Outcome *ExportOutcome
}
