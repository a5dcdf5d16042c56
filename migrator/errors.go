package migrator

import (
	"errors"
	"fmt"
)

// ErrMissingSource means a backfill reads a column that does not exist.
var ErrMissingSource = errors.New("source column does not exist")

// StructuralChangeError is a failed DDL statement. Its transaction was rolled back.
type StructuralChangeError struct {
	StepID    string
	Target    string
	Statement string
	Err       error
}

func (e *StructuralChangeError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.StepID, e.Target, e.Err)
}

func (e *StructuralChangeError) Unwrap() error { return e.Err }

// BackfillError is a failed data repair. Structural changes committed before it are kept.
type BackfillError struct {
	StepID string
	Rule   string
	Err    error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("step %s: backfill %s: %v", e.StepID, e.Rule, e.Err)
}

func (e *BackfillError) Unwrap() error { return e.Err }

// StepError is what Run returns when a step aborts the run.
type StepError struct {
	StepID   string
	Critical bool
	Err      error
}

func (e *StepError) Error() string {
	if e.Critical {
		return fmt.Sprintf("critical step %s failed: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
