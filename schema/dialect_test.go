package schema

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	for name, want := range map[string]string{
		"sqlite":     "sqlite",
		"sqlite3":    "sqlite",
		"postgres":   "postgres",
		"PostgreSQL": "postgres",
		"mysql":      "mysql",
	} {
		d, err := DialectFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, d.Name())
	}
	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	target := TableTarget("contas_caixa",
		ID(),
		Varchar("nome", 100).Required(),
		Col("ativo", TypeBoolean).Required().WithDefault(true),
		Decimal("saldo_inicial", 15, 2).WithDefault(0),
		Ref("empresa_id", "empresas"),
	)
	require.NoError(t, target.Validate())

	cases := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite{}, "CREATE TABLE `contas_caixa` (\n" +
			"\t`id` INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
			"\t`nome` VARCHAR(100) NOT NULL,\n" +
			"\t`ativo` BOOLEAN NOT NULL DEFAULT 1,\n" +
			"\t`saldo_inicial` NUMERIC(15,2) DEFAULT 0,\n" +
			"\t`empresa_id` INTEGER,\n" +
			"\tCONSTRAINT `fk_contas_caixa_empresa_id` FOREIGN KEY (`empresa_id`) REFERENCES `empresas` (`id`)\n)"},
		{Postgres{}, "CREATE TABLE \"contas_caixa\" (\n" +
			"\t\"id\" SERIAL PRIMARY KEY,\n" +
			"\t\"nome\" VARCHAR(100) NOT NULL,\n" +
			"\t\"ativo\" BOOLEAN NOT NULL DEFAULT TRUE,\n" +
			"\t\"saldo_inicial\" NUMERIC(15,2) DEFAULT 0,\n" +
			"\t\"empresa_id\" INTEGER,\n" +
			"\tCONSTRAINT \"fk_contas_caixa_empresa_id\" FOREIGN KEY (\"empresa_id\") REFERENCES \"empresas\" (\"id\")\n)"},
		{MySQL{}, "CREATE TABLE `contas_caixa` (\n" +
			"\t`id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
			"\t`nome` VARCHAR(100) NOT NULL,\n" +
			"\t`ativo` TINYINT(1) NOT NULL DEFAULT 1,\n" +
			"\t`saldo_inicial` DECIMAL(15,2) DEFAULT 0,\n" +
			"\t`empresa_id` INT,\n" +
			"\tCONSTRAINT `fk_contas_caixa_empresa_id` FOREIGN KEY (`empresa_id`) REFERENCES `empresas` (`id`)\n" +
			") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"},
	}
	for _, tc := range cases {
		t.Run(tc.dialect.Name(), func(t *testing.T) {
			assert.Equal(t, tc.want, StatementFor(tc.dialect, target))
		})
	}
}

func TestAddColumnSQL(t *testing.T) {
	col := Ref("plano_conta_id", "plano_contas")
	assert.Equal(t,
		"ALTER TABLE `lancamentos` ADD COLUMN `plano_conta_id` INTEGER REFERENCES `plano_contas` (`id`)",
		SQLite{}.AddColumnSQL("lancamentos", col))
	assert.Equal(t,
		`ALTER TABLE "lancamentos" ADD COLUMN "plano_conta_id" INTEGER CONSTRAINT "fk_lancamentos_plano_conta_id" REFERENCES "plano_contas" ("id")`,
		Postgres{}.AddColumnSQL("lancamentos", col))
	assert.Equal(t,
		"ALTER TABLE `lancamentos` ADD COLUMN `plano_conta_id` INT, ADD CONSTRAINT `fk_lancamentos_plano_conta_id` FOREIGN KEY (`plano_conta_id`) REFERENCES `plano_contas` (`id`)",
		MySQL{}.AddColumnSQL("lancamentos", col))

	ativo := Col("ativo", TypeBoolean).Required().WithDefault(true)
	assert.Equal(t,
		`ALTER TABLE "plano_contas" ADD COLUMN "ativo" BOOLEAN NOT NULL DEFAULT TRUE`,
		StatementFor(Postgres{}, ColumnTarget("plano_contas", ativo)))
}

func TestSetNotNullSQL(t *testing.T) {
	col := Ref("empresa_id", "empresas")

	_, err := SQLite{}.SetNotNullSQL("lancamentos", col)
	assert.ErrorIs(t, err, ErrUnsupported)

	sql, err := Postgres{}.SetNotNullSQL("lancamentos", col)
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "lancamentos" ALTER COLUMN "empresa_id" SET NOT NULL`, sql)

	sql, err = MySQL{}.SetNotNullSQL("lancamentos", col)
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE `lancamentos` MODIFY COLUMN `empresa_id` INT NOT NULL", sql)
}

func TestCreateIndexSQL(t *testing.T) {
	idx := UniqueIndex("idx_plano_contas_empresa_codigo", "plano_contas", "empresa_id", "codigo")
	assert.Equal(t,
		`CREATE UNIQUE INDEX "idx_plano_contas_empresa_codigo" ON "plano_contas" ("empresa_id", "codigo")`,
		CreateIndexSQL(Postgres{}, idx))
	assert.Equal(t,
		"CREATE INDEX `idx_lancamentos_data` ON `lancamentos` (`data`)",
		CreateIndexSQL(MySQL{}, Index("idx_lancamentos_data", "lancamentos", "data")))
}

func TestDefaultSQL(t *testing.T) {
	assert.Equal(t, "'O''Brien'", DefaultSQL(Postgres{}, "O'Brien"))
	assert.Equal(t, "0", DefaultSQL(SQLite{}, false))
	assert.Equal(t, "FALSE", DefaultSQL(Postgres{}, false))
	assert.Equal(t, "42", DefaultSQL(MySQL{}, int64(42)))
	assert.Equal(t, "0.5", DefaultSQL(MySQL{}, 0.5))
	assert.Equal(t, "CURRENT_TIMESTAMP", DefaultSQL(Postgres{}, CurrentTimestamp))
}

func TestQuoteEscapesIdentifiers(t *testing.T) {
	assert.Equal(t, "`a``b`", SQLite{}.Quote("a`b"))
	assert.Equal(t, `"a""b"`, Postgres{}.Quote(`a"b`))
	assert.Equal(t, "`a``b`", MySQL{}.Quote("a`b"))
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, SQLite{}.IsDuplicate(errors.New("duplicate column name: ativo")))
	assert.True(t, SQLite{}.IsDuplicate(errors.New("table planos already exists")))
	assert.False(t, SQLite{}.IsDuplicate(errors.New("no such table: planos")))
	assert.False(t, SQLite{}.IsDuplicate(nil))

	assert.True(t, Postgres{}.IsDuplicate(&pgconn.PgError{Code: "42701"}))
	assert.True(t, Postgres{}.IsDuplicate(&pgconn.PgError{Code: "42P07"}))
	assert.False(t, Postgres{}.IsDuplicate(&pgconn.PgError{Code: "42P01"}))

	assert.True(t, MySQL{}.IsDuplicate(&mysql.MySQLError{Number: 1060}))
	assert.True(t, MySQL{}.IsDuplicate(&mysql.MySQLError{Number: 1061}))
	assert.False(t, MySQL{}.IsDuplicate(&mysql.MySQLError{Number: 1146}))
}

func TestUpdateStyles(t *testing.T) {
	assert.Equal(t, UpdateSubquery, SQLite{}.UpdateStyle())
	assert.Equal(t, UpdateFrom, Postgres{}.UpdateStyle())
	assert.Equal(t, UpdateJoin, MySQL{}.UpdateStyle())
	assert.Equal(t, "update-join", UpdateJoin.String())
}

func TestForeignKeyNameIsTruncated(t *testing.T) {
	long := "tabela_com_um_nome_realmente_muito_comprido"
	name := ForeignKeyName(long, "coluna_com_nome_longo_tambem")
	assert.Len(t, name, 63)
}
