package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// SyncKind distinguishes a one-time backfill from the recurring sync.
type SyncKind string

const (
	SyncHistorical  SyncKind = "historical"
	SyncIncremental SyncKind = "incremental"
)

// RunStatus is the lifecycle state of a sync run.
// running is the only non-terminal state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	// RunPartial marks a historical run that finished with some windows failed.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunPartial || s == RunFailed
}

// SyncRun is one execution of the orchestrator as recorded in run metadata.
type SyncRun struct {
	ID              int64
	Kind            SyncKind
	Status          RunStatus
	RecordsFetched  int
	RecordsInserted int
	FailedWindows   int
	From            civil.Date
	To              civil.Date // exclusive; the next incremental run's checkpoint
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// RunOutcome is the single update applied to a run when it completes.
type RunOutcome struct {
	Status          RunStatus
	RecordsFetched  int
	RecordsInserted int
	FailedWindows   int
	Err             error
}
