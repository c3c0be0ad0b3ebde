package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run has no checkpoint records.
var ErrNotFound = errors.New("not found")

// ErrSequence is returned when an appended record's sequence number is not
// exactly one greater than the run's latest. It indicates a second writer or
// an engine bug, never a recoverable condition.
var ErrSequence = errors.New("checkpoint sequence conflict")

// ErrCorrupted is returned when a loaded record's state does not match its
// recorded checksum.
var ErrCorrupted = errors.New("checkpoint corrupted")

// RunStatus is the lifecycle status a checkpoint record assigns to its run.
type RunStatus string

const (
	// StatusRunning means the recorded step completed and the run continues.
	StatusRunning RunStatus = "running"

	// StatusSuspended means the run is paused: awaiting a review decision
	// (Pending set) or a resumable halt such as an exhausted retry budget
	// (Halt set with Retryable true).
	StatusSuspended RunStatus = "suspended"

	// StatusCompleted means the run finished its final step.
	StatusCompleted RunStatus = "completed"

	// StatusFailed means the run stopped on a non-recoverable error or was
	// cancelled. Halt records the cause.
	StatusFailed RunStatus = "failed"
)

// PendingReview is the persisted form of a suspension awaiting human input.
// It carries everything needed to re-present the review after a process
// restart, so resumption never depends on in-memory state.
type PendingReview struct {
	// Token uniquely identifies this suspension. A decision is applied at
	// most once per token.
	Token string `json:"token"`

	// StepID is the review step that suspended the run.
	StepID string `json:"step_id"`

	// Artifact names the artifact under review.
	Artifact string `json:"artifact"`

	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Options []string `json:"options,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Halt is the persisted cause of a stopped run, recorded on the final record
// of suspended and failed runs.
type Halt struct {
	// Reason classifies the halt: "external_service", "fatal", "cancelled".
	Reason string `json:"reason"`

	// Message is the underlying error text.
	Message string `json:"message,omitempty"`

	// Retryable marks halts that a resume may re-attempt. Cancellation and
	// exhausted retry budgets are retryable; fatal errors are not.
	Retryable bool `json:"retryable"`
}

// Record is one entry in a run's append-only checkpoint history.
//
// Records are totally ordered by Seq within a run. The latest record is the
// single source of truth for resumption: it carries the full state, the id of
// the step that produced it, the run status, and any pending review or halt.
//
// Type parameter S is the workflow state type.
type Record[S any] struct {
	RunID string `json:"run_id"`

	// Seq is the record's position in the run history, starting at 1 and
	// strictly increasing.
	Seq int `json:"seq"`

	// StepID is the step whose completion (or halt) produced this record.
	StepID string `json:"step_id"`

	Status RunStatus `json:"status"`

	// State is the full workflow state after the recorded step.
	State S `json:"state"`

	// Checksum is the hex SHA-256 of the state's JSON encoding, verified on
	// load. Stores fill it in during Append.
	Checksum string `json:"checksum"`

	// Pending is set when Status is StatusSuspended awaiting review.
	Pending *PendingReview `json:"pending,omitempty"`

	// Halt is set on suspended and failed records to explain the stop.
	Halt *Halt `json:"halt,omitempty"`

	SavedAt time.Time `json:"saved_at"`
}

// RunInfo summarizes a run from its latest checkpoint record.
type RunInfo struct {
	RunID   string
	Status  RunStatus
	StepID  string
	Seq     int
	SavedAt time.Time
}

// Store persists a run's append-only checkpoint history.
//
// Implementations must enforce the sequence contract: Append accepts a record
// only when its Seq is exactly one greater than the run's current latest (1
// for a new run), failing with ErrSequence otherwise. Existing records are
// never updated or deleted.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// Append persists a new checkpoint record for rec.RunID.
	//
	// Returns ErrSequence when rec.Seq violates the append-only ordering,
	// or other persistence errors.
	Append(ctx context.Context, rec Record[S]) error

	// Latest retrieves the record with the highest Seq for runID.
	//
	// Returns ErrNotFound if the run has no records, ErrCorrupted if the
	// stored state fails checksum verification.
	Latest(ctx context.Context, runID string) (Record[S], error)

	// History retrieves all records for runID ordered by Seq ascending.
	//
	// Returns ErrNotFound if the run has no records.
	History(ctx context.Context, runID string) ([]Record[S], error)

	// Runs summarizes all known runs from their latest records, most
	// recently updated first. An empty store yields an empty list.
	Runs(ctx context.Context) ([]RunInfo, error)
}

// checksum computes the hex SHA-256 of the serialized state.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// validate checks the fields every Append must receive.
func (r *Record[S]) validate() error {
	if r.RunID == "" {
		return errors.New("record run ID cannot be empty")
	}
	if r.Seq < 1 {
		return errors.New("record seq must be >= 1")
	}
	if r.StepID == "" {
		return errors.New("record step ID cannot be empty")
	}
	switch r.Status {
	case StatusRunning, StatusSuspended, StatusCompleted, StatusFailed:
	default:
		return errors.New("record status is invalid: " + string(r.Status))
	}
	return nil
}
