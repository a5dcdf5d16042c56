package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
	"bitbucket.org/mmdatafocus/financeiro_backend/config"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

const tracerName = "bitbucket.org/mmdatafocus/financeiro_backend/migrator"

// Runner applies an ordered list of steps. Every step inspects the live schema
// before changing it, so running the same list twice is a no-op.
type Runner struct {
	db        *gorm.DB
	dialect   schema.Dialect
	inspector *schema.Inspector
	ledger    *Ledger
	logger    *logrus.Logger
	tracer    trace.Tracer

	dryRun    bool
	useLedger bool
	verify    bool
	runID     uuid.UUID
}

func NewRunner(db *gorm.DB, dialect schema.Dialect, opts ...Option) *Runner {
	r := &Runner{
		db:        db,
		dialect:   dialect,
		inspector: schema.NewInspector(db, dialect),
		ledger:    NewLedger(db),
		logger:    logrus.StandardLogger(),
		tracer:    otel.Tracer(tracerName),
		useLedger: true,
		runID:     uuid.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Inspector() *schema.Inspector { return r.inspector }

func (r *Runner) Ledger() *Ledger { return r.ledger }

func (r *Runner) RunID() uuid.UUID { return r.runID }

// Run applies steps in order. A failed non-critical step is recorded and the
// run continues; a failed critical step or a lost connection stops the run and
// is returned as a *StepError. The summary is returned in every case.
func (r *Runner) Run(ctx context.Context, steps []Step) (*Summary, error) {
	summary := &Summary{
		RunID:     r.runID,
		Dialect:   r.dialect.Name(),
		DryRun:    r.dryRun,
		StartedAt: time.Now(),
	}
	if err := ValidateSteps(steps); err != nil {
		return r.finish(summary), err
	}

	ctx = appctx.WithRunId(ctx, r.runID.String())
	ctx = appctx.Set(ctx, appctx.ContextKeySkipTenantScope, true)
	ctx, span := r.tracer.Start(ctx, "migrator.Run", trace.WithAttributes(
		attribute.String("run.id", r.runID.String()),
		attribute.String("db.dialect", r.dialect.Name()),
		attribute.Bool("run.dry_run", r.dryRun),
		attribute.Int("run.steps", len(steps)),
	))
	defer span.End()

	actor, _ := appctx.ActorFrom(ctx)
	r.logger.WithFields(logrus.Fields{
		"actor":   actor,
		"run_id":  r.runID.String(),
		"dialect": r.dialect.Name(),
		"dry_run": r.dryRun,
		"steps":   len(steps),
	}).Info("migration run started")

	if err := r.inspector.Ping(ctx); err != nil {
		summary.Aborted = true
		span.SetStatus(codes.Error, err.Error())
		return r.finish(summary), err
	}

	ledgerReady, err := r.ensureLedger(ctx)
	if err != nil {
		summary.Aborted = true
		span.SetStatus(codes.Error, err.Error())
		return r.finish(summary), fmt.Errorf("bootstrap %s: %w", LedgerTable, err)
	}

	for _, step := range steps {
		res := r.runStep(ctx, step, ledgerReady)
		summary.Steps = append(summary.Steps, res)
		if res.Err == nil {
			continue
		}
		if step.Critical || schema.IsConnectionError(res.Err) {
			summary.Aborted = true
			span.SetStatus(codes.Error, res.Err.Error())
			r.finish(summary).Log(r.logger)
			return summary, &StepError{StepID: step.ID, Critical: step.Critical, Err: res.Err}
		}
	}

	r.finish(summary).Log(r.logger)
	return summary, nil
}

func (r *Runner) finish(s *Summary) *Summary {
	s.FinishedAt = time.Now()
	return s
}

// ensureLedger creates the ledger table when missing. A dry run never creates
// it and simply runs without the ledger.
func (r *Runner) ensureLedger(ctx context.Context) (bool, error) {
	if !r.useLedger {
		return false, nil
	}
	present, err := r.inspector.Present(ctx, LedgerTarget())
	if err != nil {
		return false, err
	}
	if !present {
		if r.dryRun {
			return false, nil
		}
		stmt := schema.StatementFor(r.dialect, LedgerTarget())
		if _, err := r.exec(ctx, stmt); err != nil && !r.dialect.IsDuplicate(err) {
			return false, err
		}
		r.logger.WithField("table", LedgerTable).Info("created migration ledger")
	}
	if !r.dryRun {
		if _, err := r.ensureIndex(ctx, "ledger", LedgerIndex(), r.logger.WithField("step", "ledger")); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, ledgerReady bool) (res StepResult) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "migrator.Step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.Bool("step.critical", step.Critical),
	))
	defer span.End()

	res = StepResult{ID: step.ID, Description: step.Description, Critical: step.Critical}
	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("step.outcome", string(res.Outcome)))
	}()
	log := r.logger.WithFields(logrus.Fields{"step": step.ID, "run_id": r.runID.String()})

	recorded := false
	if ledgerReady {
		applied, err := r.ledger.HasApplied(ctx, step.ID)
		switch {
		case err != nil:
			log.WithError(err).Warn("ledger lookup failed; checking live schema")
		case applied && !r.verify:
			res.Outcome = OutcomeSkipped
			res.FromLedger = true
			log.Debug("skipped, recorded in ledger")
			return res
		default:
			recorded = applied
		}
	}

	deferred, err := r.applyStep(ctx, step, &res, log)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.logger, "migrator", "runStep", step.ID, res.Changes, err)
		if ledgerReady && !r.dryRun && !schema.IsConnectionError(err) {
			r.record(ctx, step.ID, StatusFailure, err.Error(), log)
		}
		return res
	}

	changed := len(res.Changes) > 0 || res.BackfilledRows > 0
	switch {
	case r.dryRun && changed:
		res.Outcome = OutcomePlanned
	case changed:
		res.Outcome = OutcomeApplied
	default:
		res.Outcome = OutcomeSkipped
	}
	log.WithFields(logrus.Fields{
		"outcome": res.Outcome,
		"changes": len(res.Changes),
		"rows":    res.BackfilledRows,
	}).Info("step finished")

	// a deferred constraint keeps the step out of the ledger so the next run retries it
	if ledgerReady && !r.dryRun && !deferred && (!recorded || changed) {
		r.record(ctx, step.ID, StatusSuccess, describe(res), log)
	}
	return res
}

func (r *Runner) applyStep(ctx context.Context, step Step, res *StepResult, log *logrus.Entry) (deferred bool, err error) {
	for _, t := range step.Targets {
		changed, err := r.ensureTarget(ctx, step.ID, t, log)
		if err != nil {
			return false, err
		}
		if changed {
			res.Changes = append(res.Changes, t.String())
		}
	}
	for _, idx := range step.Indexes {
		changed, err := r.ensureIndex(ctx, step.ID, idx, log)
		if err != nil {
			return false, err
		}
		if changed {
			res.Changes = append(res.Changes, idx.String())
		}
	}
	for _, b := range step.Backfills {
		n, err := r.backfill(ctx, step.ID, b, res, log)
		if err != nil {
			return false, err
		}
		res.BackfilledRows += n
	}
	for _, c := range step.Constraints {
		d, err := r.ensureNotNull(ctx, step.ID, c, res, log)
		if err != nil {
			return false, err
		}
		deferred = deferred || d
	}
	return deferred, nil
}

func (r *Runner) ensureTarget(ctx context.Context, stepID string, t schema.Target, log *logrus.Entry) (bool, error) {
	tableExists, columnExists, err := r.inspector.Check(ctx, t)
	if err != nil {
		return false, err
	}
	if (t.IsTable() && tableExists) || (!t.IsTable() && columnExists) {
		log.WithField("target", t.String()).Debug("already present")
		return false, nil
	}
	if !t.IsTable() && !tableExists && !r.dryRun {
		return false, &StructuralChangeError{StepID: stepID, Target: t.String(), Err: fmt.Errorf("table %s does not exist", t.Table)}
	}

	stmt := schema.StatementFor(r.dialect, t)
	if r.dryRun {
		log.WithFields(logrus.Fields{"target": t.String(), "sql": stmt}).Info("would apply")
		return true, nil
	}
	if _, err := r.exec(ctx, stmt); err != nil {
		if r.dialect.IsDuplicate(err) {
			log.WithField("target", t.String()).Info("created concurrently; treating as present")
			return false, nil
		}
		return false, r.classify(ctx, err, func(err error) error {
			return &StructuralChangeError{StepID: stepID, Target: t.String(), Statement: stmt, Err: err}
		})
	}
	log.WithField("target", t.String()).Info("applied")
	return true, nil
}

func (r *Runner) ensureIndex(ctx context.Context, stepID string, idx schema.IndexDef, log *logrus.Entry) (bool, error) {
	tableExists, err := r.inspector.TableExists(ctx, idx.Table)
	if err != nil {
		return false, err
	}
	if tableExists {
		present, err := r.inspector.IndexExists(ctx, idx.Table, idx.Name)
		if err != nil {
			return false, err
		}
		if present {
			return false, nil
		}
	} else if !r.dryRun {
		return false, &StructuralChangeError{StepID: stepID, Target: idx.String(), Err: fmt.Errorf("table %s does not exist", idx.Table)}
	}

	stmt := schema.CreateIndexSQL(r.dialect, idx)
	if r.dryRun {
		log.WithFields(logrus.Fields{"target": idx.String(), "sql": stmt}).Info("would apply")
		return true, nil
	}
	if _, err := r.exec(ctx, stmt); err != nil {
		if r.dialect.IsDuplicate(err) {
			return false, nil
		}
		return false, r.classify(ctx, err, func(err error) error {
			return &StructuralChangeError{StepID: stepID, Target: idx.String(), Statement: stmt, Err: err}
		})
	}
	log.WithField("target", idx.String()).Info("applied")
	return true, nil
}

// backfill runs one rule in its own transaction. In a dry run it only counts
// the rows the rule would touch.
func (r *Runner) backfill(ctx context.Context, stepID string, b Backfill, res *StepResult, log *logrus.Entry) (int64, error) {
	missing, err := r.missingSources(ctx, b)
	if err != nil {
		return 0, err
	}
	if missing != nil {
		if r.dryRun {
			// may be a column this same run would create first
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot estimate %s: %s missing", b, missing))
			return 0, nil
		}
		return 0, &BackfillError{StepID: stepID, Rule: b.String(), Err: fmt.Errorf("%s: %w", missing, ErrMissingSource)}
	}

	if r.dryRun {
		query, args := b.PendingSQL(r.dialect)
		var n int64
		if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&n).Error; err != nil {
			// usually a column this same run would create first
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot estimate %s: %v", b, err))
			return 0, nil
		}
		return n, nil
	}

	stmt, args := b.UpdateSQL(r.dialect)
	n, err := r.exec(ctx, stmt, args...)
	if err != nil {
		return 0, r.classify(ctx, err, func(err error) error {
			return &BackfillError{StepID: stepID, Rule: b.String(), Err: err}
		})
	}
	if n > 0 {
		log.WithFields(logrus.Fields{"rule": b.String(), "rows": n}).Info("backfilled")
	}
	return n, nil
}

// missingSources returns the first column b reads that is not in the live schema.
func (r *Runner) missingSources(ctx context.Context, b Backfill) (*ColumnRef, error) {
	for _, src := range b.Sources() {
		ok, err := r.inspector.ColumnExists(ctx, src.Table, src.Column)
		if err != nil {
			return nil, err
		}
		if !ok {
			src := src
			return &src, nil
		}
	}
	return nil, nil
}

// ensureNotNull tightens a column only once no NULLs remain. It reports
// deferred=true when rows still need repair.
func (r *Runner) ensureNotNull(ctx context.Context, stepID string, c schema.NotNullConstraint, res *StepResult, log *logrus.Entry) (bool, error) {
	info, err := r.inspector.Column(ctx, c.Table, c.Column.Name)
	if err != nil {
		return false, err
	}
	if !info.Exists {
		if r.dryRun {
			res.Changes = append(res.Changes, c.String())
			return false, nil
		}
		return false, &StructuralChangeError{StepID: stepID, Target: c.String(), Err: fmt.Errorf("column %s.%s does not exist", c.Table, c.Column.Name)}
	}
	if !info.Nullable {
		return false, nil
	}

	stmt, err := r.dialect.SetNotNullSQL(c.Table, c.Column)
	if errors.Is(err, schema.ErrUnsupported) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s left nullable: %v", c, err))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var nulls int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", r.dialect.Quote(c.Table), r.dialect.Quote(c.Column.Name))
	if err := r.db.WithContext(ctx).Raw(query).Scan(&nulls).Error; err != nil {
		return false, r.classify(ctx, err, func(err error) error {
			return &schema.InspectionError{Table: c.Table, Column: c.Column.Name, Err: err}
		})
	}

	if r.dryRun {
		if nulls > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d rows null before backfill", c, nulls))
		}
		res.Changes = append(res.Changes, c.String())
		log.WithFields(logrus.Fields{"target": c.String(), "sql": stmt}).Info("would apply")
		return false, nil
	}
	if nulls > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s deferred: %d rows still null", c, nulls))
		log.WithFields(logrus.Fields{"target": c.String(), "nulls": nulls}).Warn("constraint deferred")
		return true, nil
	}
	if _, err := r.exec(ctx, stmt); err != nil {
		return false, r.classify(ctx, err, func(err error) error {
			return &StructuralChangeError{StepID: stepID, Target: c.String(), Statement: stmt, Err: err}
		})
	}
	res.Changes = append(res.Changes, c.String())
	log.WithField("target", c.String()).Info("applied")
	return false, nil
}

// exec runs one statement in its own transaction and returns rows affected.
func (r *Runner) exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(stmt, args...)
		affected = result.RowsAffected
		return result.Error
	})
	return affected, err
}

// classify turns a statement failure into a *ConnectionError when the
// database is no longer reachable, otherwise into wrap(err).
func (r *Runner) classify(ctx context.Context, err error, wrap func(error) error) error {
	if perr := r.inspector.Ping(ctx); perr != nil {
		return perr
	}
	return wrap(err)
}

func (r *Runner) record(ctx context.Context, stepID string, status LedgerStatus, detail string, log *logrus.Entry) {
	if err := r.ledger.RecordApplied(ctx, stepID, status, detail); err != nil {
		log.WithError(err).Warn("could not write migration ledger")
	}
}

func describe(res StepResult) string {
	if len(res.Changes) == 0 && res.BackfilledRows == 0 {
		return "already present"
	}
	return fmt.Sprintf("%d changes, %d rows backfilled", len(res.Changes), res.BackfilledRows)
}
