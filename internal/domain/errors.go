package domain

import "fmt"

// FetchError reports a failed request against the registry API.
// Page is the page index that failed; earlier pages of the window were fetched.
type FetchError struct {
	Type   DecisionType
	Window Window
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s page %d: %v", e.Type, e.Window, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReconciliationError reports a storage failure while persisting a record.
// NaturalKey identifies the decision (ADA) or expense key that failed.
type ReconciliationError struct {
	NaturalKey string
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.NaturalKey, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// RunAbortedError wraps the error that terminated an incremental run.
type RunAbortedError struct {
	RunID int64
	Kind  SyncKind
	Err   error
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("%s run %d aborted: %v", e.Kind, e.RunID, e.Err)
}

func (e *RunAbortedError) Unwrap() error { return e.Err }
