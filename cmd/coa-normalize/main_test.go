package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/models"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
	"bitbucket.org/mmdatafocus/financeiro_backend/testhelpers"
	"bitbucket.org/mmdatafocus/financeiro_backend/workflow"
)

func TestCheckSchemaRequiresMigratedDatabase(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	err := checkSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run schema-migrate first")

	logger, _ := testhelpers.NewLogger()
	_, err = migrator.NewRunner(db, schema.SQLite{}, migrator.WithLogger(logger)).
		Run(context.Background(), models.FinanceiroSteps())
	require.NoError(t, err)
	assert.NoError(t, checkSchema(context.Background(), db))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(&workflow.NormalizeResult{TenantsProcessed: 2}))
	assert.Equal(t, exitPartial, exitCode(&workflow.NormalizeResult{TenantsProcessed: 1, TenantsFailed: []int{7}}))
}
