package migrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	// OutcomePlanned is a dry-run step that would have changed something.
	OutcomePlanned Outcome = "planned"
)

type StepResult struct {
	ID          string
	Description string
	Critical    bool
	Outcome     Outcome
	// Changes lists structural changes applied, or planned in a dry run.
	Changes []string
	// BackfilledRows counts rows repaired, or pending in a dry run.
	BackfilledRows int64
	Warnings       []string
	FromLedger     bool
	Err            error
	Duration       time.Duration
}

type Summary struct {
	RunID      uuid.UUID
	Dialect    string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
	// Aborted is set when a critical or connection failure stopped the run.
	Aborted bool
}

func (s *Summary) ids(o Outcome) []string {
	var ids []string
	for _, r := range s.Steps {
		if r.Outcome == o {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (s *Summary) Applied() []string { return s.ids(OutcomeApplied) }
func (s *Summary) Skipped() []string { return s.ids(OutcomeSkipped) }
func (s *Summary) Failed() []string  { return s.ids(OutcomeFailed) }
func (s *Summary) Planned() []string { return s.ids(OutcomePlanned) }

func (s *Summary) HasFailures() bool { return len(s.Failed()) > 0 }

func (s *Summary) ChangeCount() int {
	n := 0
	for _, r := range s.Steps {
		n += len(r.Changes)
	}
	return n
}

func (s *Summary) BackfilledRows() int64 {
	var n int64
	for _, r := range s.Steps {
		n += r.BackfilledRows
	}
	return n
}

func (s *Summary) Warnings() []string {
	var w []string
	for _, r := range s.Steps {
		for _, msg := range r.Warnings {
			w = append(w, r.ID+": "+msg)
		}
	}
	return w
}

func (s *Summary) Step(id string) (StepResult, bool) {
	for _, r := range s.Steps {
		if r.ID == id {
			return r, true
		}
	}
	return StepResult{}, false
}

func (s *Summary) Log(logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"run_id":   s.RunID.String(),
		"dialect":  s.Dialect,
		"dry_run":  s.DryRun,
		"applied":  len(s.Applied()),
		"skipped":  len(s.Skipped()),
		"failed":   len(s.Failed()),
		"planned":  len(s.Planned()),
		"changes":  s.ChangeCount(),
		"rows":     s.BackfilledRows(),
		"aborted":  s.Aborted,
		"duration": s.FinishedAt.Sub(s.StartedAt).String(),
	}).Info("migration run finished")
	for _, w := range s.Warnings() {
		logger.Warn(w)
	}
}
