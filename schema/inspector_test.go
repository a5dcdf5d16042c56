package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
	"bitbucket.org/mmdatafocus/financeiro_backend/testhelpers"
)

func TestInspectorSQLite(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	ctx := context.Background()
	insp := schema.NewInspector(db, schema.SQLite{})

	require.NoError(t, insp.Ping(ctx))

	exists, err := insp.TableExists(ctx, "empresas")
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := insp.Column(ctx, "empresas", "nome")
	require.NoError(t, err)
	assert.False(t, info.Exists, "column of a missing table")

	testhelpers.MustExec(t, db, `CREATE TABLE empresas (id INTEGER PRIMARY KEY AUTOINCREMENT, nome VARCHAR(100) NOT NULL, cnpj VARCHAR(18))`)
	testhelpers.MustExec(t, db, `CREATE INDEX idx_empresas_cnpj ON empresas (cnpj)`)

	exists, err = insp.TableExists(ctx, "empresas")
	require.NoError(t, err)
	assert.True(t, exists)

	info, err = insp.Column(ctx, "empresas", "nome")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.False(t, info.Nullable)
	assert.Equal(t, "varchar(100)", info.DataType)

	info, err = insp.Column(ctx, "empresas", "cnpj")
	require.NoError(t, err)
	assert.True(t, info.Nullable)

	ok, err := insp.ColumnExists(ctx, "empresas", "plano_id")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = insp.IndexExists(ctx, "empresas", "idx_empresas_cnpj")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = insp.IndexExists(ctx, "empresas", "idx_empresas_nome")
	require.NoError(t, err)
	assert.False(t, ok)

	present, err := insp.Present(ctx, schema.ColumnTarget("empresas", schema.Varchar("cnpj", 18)))
	require.NoError(t, err)
	assert.True(t, present)

	tableExists, columnExists, err := insp.Check(ctx, schema.ColumnTarget("planos", schema.Varchar("nome", 10)))
	require.NoError(t, err)
	assert.False(t, tableExists)
	assert.False(t, columnExists)
}

func TestInspectorClosedConnection(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	insp := schema.NewInspector(db, schema.SQLite{})
	_, err = insp.TableExists(context.Background(), "empresas")
	require.Error(t, err)

	var connErr *schema.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.True(t, schema.IsConnectionError(err))
}
