package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"bitbucket.org/mmdatafocus/financeiro_backend/config"
	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/models"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

func main() {
	flag.Parse()

	s, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := config.NewLogger(s)

	db, err := config.OpenDatabase(s, logger)
	if err != nil {
		config.LogError(logger, "migration-status", "main", "open database", s.DBDriver, err)
		os.Exit(1)
	}
	dialect, err := schema.DialectOf(db)
	if err != nil {
		config.LogError(logger, "migration-status", "main", "resolve dialect", s.DBDriver, err)
		os.Exit(1)
	}

	states, err := migrator.NewRunner(db, dialect, migrator.WithLogger(logger)).
		Status(context.Background(), models.FinanceiroSteps())
	if err != nil {
		config.LogError(logger, "migration-status", "main", "read ledger", nil, err)
		os.Exit(1)
	}
	printStatus(os.Stdout, states)
}

func printStatus(out io.Writer, states []migrator.StepState) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATE\tATTEMPTS\tLAST RUN\tRUN ID\tDETAIL")
	pending := 0
	for _, s := range states {
		state := "pending"
		if s.Applied {
			state = "applied"
		} else {
			pending++
		}
		if s.Last != nil && s.Last.Status == migrator.StatusFailure {
			state += " (last failed)"
		}
		last, runID, detail := "-", "-", s.Description
		if s.Last != nil {
			last = s.Last.AppliedAt.Format("2006-01-02 15:04:05")
			runID = s.Last.RunID
			detail = s.Last.Detail
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", s.ID, state, s.Attempts, last, runID, detail)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d of %d steps pending\n", pending, len(states))
}
