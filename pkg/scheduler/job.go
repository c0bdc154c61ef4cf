package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the result of a job's most recent execution.
type Outcome string

const (
	// OutcomeNone means the job has never run.
	OutcomeNone Outcome = ""

	// OutcomeSuccess means the last run completed without error.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means the last run returned an error.
	OutcomeFailure Outcome = "failure"
)

// Job is a recurring unit of work. Run is invoked with the scheduler's
// context; it must return on cancellation and must not panic the process
// on failure.
type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error
}

// JobState is a snapshot of one job's scheduling state. States are
// created at scheduler startup and mutated only by the scheduler.
type JobState struct {
	Name        string      `json:"name"`
	TriggerKind TriggerKind `json:"trigger_kind"`
	NextDue     time.Time   `json:"next_due"`
	LastRun     time.Time   `json:"last_run,omitzero"`
	LastOutcome Outcome     `json:"last_outcome,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Running     bool        `json:"running"`
}

// JobError wraps a job execution failure. It is recorded in JobState and
// never propagated as a process crash.
type JobError struct {
	Job string
	Err error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.Job, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *JobError) Unwrap() error {
	return e.Err
}
