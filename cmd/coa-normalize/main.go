package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
	"bitbucket.org/mmdatafocus/financeiro_backend/config"
	"bitbucket.org/mmdatafocus/financeiro_backend/models/reports"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
	"bitbucket.org/mmdatafocus/financeiro_backend/workflow"
	"gorm.io/gorm"
)

const (
	exitOK       = 0
	exitCritical = 1
	exitPartial  = 3
)

// columns the normalizer writes; they arrive with schema-migrate
var requiredColumns = [][2]string{
	{"plano_contas", "codigo"},
	{"plano_contas", "natureza"},
	{"plano_contas", "nivel"},
	{"plano_contas", "conta_pai_id"},
	{"plano_contas", "empresa_id"},
	{"lancamentos", "plano_conta_id"},
	{"lancamentos", "empresa_id"},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Normalize every tenant inside a transaction that is rolled back.")
	empresaID := flag.Int("empresa-id", 0, "Optional: normalize only one empresa. If 0, normalizes all empresas.")
	workers := flag.Int("workers", 1, "Number of empresas normalized concurrently.")
	report := flag.String("report", "", "Optional: write an xlsx run summary to this file.")
	flag.Parse()

	os.Exit(run(appctx.WithActor(context.Background(), config.Operator()), *dryRun, *empresaID, *workers, *report))
}

func run(ctx context.Context, dryRun bool, empresaID, workers int, report string) int {
	s, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCritical
	}
	logger := config.NewLogger(s)

	db, err := config.OpenDatabase(s, logger)
	if err != nil {
		config.LogError(logger, "coa-normalize", "run", "open database", s.DBDriver, err)
		return exitCritical
	}
	if err := checkSchema(ctx, db); err != nil {
		config.LogError(logger, "coa-normalize", "run", "check schema", nil, err)
		return exitCritical
	}

	if !dryRun {
		locker, err := config.ConnectRedis(ctx, s, logger)
		if err != nil {
			config.LogError(logger, "coa-normalize", "run", "connect redis", nil, err)
			return exitCritical
		}
		defer locker.Close()
		release, err := locker.Obtain(ctx, config.MigrationRunLockKey)
		if err != nil {
			config.LogError(logger, "coa-normalize", "run", "obtain run lock", config.MigrationRunLockKey, err)
			return exitCritical
		}
		defer release()
	}

	opts := []workflow.NormalizerOption{
		workflow.WithLogger(logger),
		workflow.WithDryRun(dryRun),
		workflow.WithWorkers(workers),
	}
	if empresaID > 0 {
		opts = append(opts, workflow.WithEmpresaIDs(empresaID))
	}
	result, err := workflow.NewNormalizer(db, opts...).Run(ctx)
	if err != nil {
		config.LogError(logger, "coa-normalize", "run", "normalize", empresaID, err)
		return exitCritical
	}

	if report != "" {
		if err := reports.ExportRunSummary(report, nil, result); err != nil {
			config.LogError(logger, "coa-normalize", "run", "export report", report, err)
		} else {
			logger.WithField("file", report).Info("run summary written")
		}
	}
	return exitCode(result)
}

// checkSchema refuses to run against a database schema-migrate has not evolved yet.
func checkSchema(ctx context.Context, db *gorm.DB) error {
	dialect, err := schema.DialectOf(db)
	if err != nil {
		return err
	}
	inspector := schema.NewInspector(db, dialect)
	for _, c := range requiredColumns {
		ok, err := inspector.ColumnExists(ctx, c[0], c[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("column %s.%s is missing, run schema-migrate first", c[0], c[1])
		}
	}
	return nil
}

func exitCode(result *workflow.NormalizeResult) int {
	if result.HasFailures() {
		return exitPartial
	}
	return exitOK
}
