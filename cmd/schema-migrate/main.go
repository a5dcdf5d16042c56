package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
	"bitbucket.org/mmdatafocus/financeiro_backend/config"
	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/models"
	"bitbucket.org/mmdatafocus/financeiro_backend/models/reports"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

const (
	exitOK       = 0
	exitCritical = 1
	exitPartial  = 3
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Inspect the schema and log intended changes without committing any DDL/DML.")
	verify := flag.Bool("verify", false, "Re-inspect every step even when the ledger records it as applied.")
	report := flag.String("report", "", "Optional: write an xlsx run summary to this file.")
	flag.Parse()

	os.Exit(run(appctx.WithActor(context.Background(), config.Operator()), *dryRun, *verify, *report))
}

func run(ctx context.Context, dryRun, verify bool, report string) int {
	s, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCritical
	}
	logger := config.NewLogger(s)

	db, err := config.OpenDatabase(s, logger)
	if err != nil {
		config.LogError(logger, "schema-migrate", "run", "open database", s.DBDriver, err)
		return exitCritical
	}
	dialect, err := schema.DialectOf(db)
	if err != nil {
		config.LogError(logger, "schema-migrate", "run", "resolve dialect", s.DBDriver, err)
		return exitCritical
	}

	// dry runs never write, so they don't need to wait for a concurrent run
	if !dryRun {
		locker, err := config.ConnectRedis(ctx, s, logger)
		if err != nil {
			config.LogError(logger, "schema-migrate", "run", "connect redis", nil, err)
			return exitCritical
		}
		defer locker.Close()
		release, err := locker.Obtain(ctx, config.MigrationRunLockKey)
		if err != nil {
			config.LogError(logger, "schema-migrate", "run", "obtain run lock", config.MigrationRunLockKey, err)
			return exitCritical
		}
		defer release()
	}

	runner := migrator.NewRunner(db, dialect,
		migrator.WithLogger(logger),
		migrator.WithDryRun(dryRun),
		migrator.WithVerify(verify),
	)
	summary, runErr := runner.Run(ctx, models.FinanceiroSteps())

	if report != "" && summary != nil {
		if err := reports.ExportRunSummary(report, summary, nil); err != nil {
			config.LogError(logger, "schema-migrate", "run", "export report", report, err)
		} else {
			logger.WithField("file", report).Info("run summary written")
		}
	}
	return exitCode(summary, runErr)
}

// exitCode maps a run onto the process status: any returned error is a
// connection failure or a critical step, failed non-critical steps are 3.
func exitCode(summary *migrator.Summary, err error) int {
	if err != nil {
		return exitCritical
	}
	if summary != nil && summary.HasFailures() {
		return exitPartial
	}
	return exitOK
}
