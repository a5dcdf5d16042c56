package migrator

import (
	"context"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
)

// StepState is what the ledger knows about one declared step.
type StepState struct {
	ID          string
	Description string
	Critical    bool
	Applied     bool
	Attempts    int
	Last        *LedgerRecord
}

// Status reports the ledger view of steps without changing anything. With no
// ledger table every step is reported as not applied.
func (r *Runner) Status(ctx context.Context, steps []Step) ([]StepState, error) {
	ctx = appctx.Set(ctx, appctx.ContextKeySkipTenantScope, true)
	if err := r.inspector.Ping(ctx); err != nil {
		return nil, err
	}
	states := make([]StepState, len(steps))
	for i, s := range steps {
		states[i] = StepState{ID: s.ID, Description: s.Description, Critical: s.Critical}
	}
	present, err := r.inspector.TableExists(ctx, LedgerTable)
	if err != nil || !present {
		return states, err
	}
	history, err := r.ledger.History(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}
	for _, rec := range history {
		i, ok := index[rec.StepID]
		if !ok {
			continue
		}
		rec := rec
		states[i].Attempts++
		states[i].Last = &rec
		if rec.Status == StatusSuccess {
			states[i].Applied = true
		}
	}
	return states, nil
}
