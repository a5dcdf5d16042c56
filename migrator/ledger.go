package migrator

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

type LedgerStatus string

const (
	StatusSuccess LedgerStatus = "success"
	StatusFailure LedgerStatus = "failure"
)

const LedgerTable = "migration_ledger"

// LedgerRecord is one attempt to apply a step. Rows are only ever appended.
type LedgerRecord struct {
	ID        int          `gorm:"primaryKey" json:"id"`
	StepID    string       `gorm:"size:100;not null;index" json:"step_id"`
	Status    LedgerStatus `gorm:"size:20;not null" json:"status"`
	Detail    string       `gorm:"type:text" json:"detail"`
	RunID     string       `gorm:"size:36" json:"run_id"`
	AppliedAt time.Time    `gorm:"not null" json:"applied_at"`
}

func (LedgerRecord) TableName() string { return LedgerTable }

// LedgerTarget is the ledger table itself, bootstrapped through the same
// ensure-exists path as every other table.
func LedgerTarget() schema.Target {
	return schema.TableTarget(LedgerTable,
		schema.ID(),
		schema.Varchar("step_id", 100).Required(),
		schema.Varchar("status", 20).Required(),
		schema.Col("detail", schema.TypeText),
		schema.Varchar("run_id", 36),
		schema.Col("applied_at", schema.TypeTimestamp).Required(),
	)
}

func LedgerIndex() schema.IndexDef {
	return schema.Index("idx_migration_ledger_step_id", LedgerTable, "step_id")
}

// Ledger is an optimisation only: a missing or stale ledger never causes a
// step to be applied twice, because steps check the live schema anyway.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// HasApplied reports whether stepID has a success record.
func (l *Ledger) HasApplied(ctx context.Context, stepID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&LedgerRecord{}).
		Where("step_id = ? AND status = ?", stepID, StatusSuccess).
		Count(&count).Error
	return count > 0, err
}

// RecordApplied appends an attempt. The run id is taken from ctx when present,
// and so is the actor, which is prefixed to detail.
func (l *Ledger) RecordApplied(ctx context.Context, stepID string, status LedgerStatus, detail string) error {
	runID, _ := appctx.RunIdFrom(ctx)
	if actor, ok := appctx.ActorFrom(ctx); ok && actor != "" {
		detail = "by " + actor + ": " + detail
	}
	rec := LedgerRecord{
		StepID:    stepID,
		Status:    status,
		Detail:    detail,
		RunID:     runID,
		AppliedAt: time.Now().UTC(),
	}
	return l.db.WithContext(ctx).Create(&rec).Error
}

// History returns every attempt, oldest first.
func (l *Ledger) History(ctx context.Context) ([]LedgerRecord, error) {
	var recs []LedgerRecord
	err := l.db.WithContext(ctx).Order("id").Find(&recs).Error
	return recs, err
}

// Latest returns the most recent attempt per step.
func (l *Ledger) Latest(ctx context.Context) (map[string]LedgerRecord, error) {
	recs, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]LedgerRecord, len(recs))
	for _, r := range recs {
		latest[r.StepID] = r
	}
	return latest, nil
}
