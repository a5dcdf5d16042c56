package migrator

import (
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

// Step is one ordered, independently idempotent unit of schema evolution.
// Targets are ensured first, then Indexes, then Backfills, then Constraints.
type Step struct {
	ID          string
	Description string
	// Critical steps abort the run on failure; others are logged and skipped over.
	Critical bool

	Targets     []schema.Target
	Indexes     []schema.IndexDef
	Backfills   []Backfill
	Constraints []schema.NotNullConstraint
}

func (s Step) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("step without id")
	}
	if len(s.Targets) == 0 && len(s.Indexes) == 0 && len(s.Backfills) == 0 && len(s.Constraints) == 0 {
		return fmt.Errorf("step %s: nothing to do", s.ID)
	}
	for _, t := range s.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", s.ID, err)
		}
	}
	for _, idx := range s.Indexes {
		if err := idx.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", s.ID, err)
		}
	}
	for _, b := range s.Backfills {
		if b == nil {
			return fmt.Errorf("step %s: nil backfill", s.ID)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", s.ID, err)
		}
	}
	for _, c := range s.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", s.ID, err)
		}
	}
	return nil
}

// ValidateSteps checks every step and rejects duplicate ids.
func ValidateSteps(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %s", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
