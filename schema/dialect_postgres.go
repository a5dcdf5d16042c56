package schema

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres introspects through information_schema of the current schema.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string { return pgx.Identifier{ident}.Sanitize() }

func (Postgres) ColumnType(c ColumnDef) string {
	if c.Type == TypeID {
		return "SERIAL PRIMARY KEY"
	}
	return ansiColumnType(c)
}

func (Postgres) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (Postgres) UpdateStyle() UpdateStyle { return UpdateFrom }

func (d Postgres) AddColumnSQL(table string, c ColumnDef) string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), ColumnSQL(d, c))
	if c.References != nil {
		sql += fmt.Sprintf(" CONSTRAINT %s REFERENCES %s (%s)", d.Quote(ForeignKeyName(table, c.Name)),
			d.Quote(c.References.Table), d.Quote(c.References.Column))
	}
	return sql
}

func (d Postgres) SetNotNullSQL(table string, c ColumnDef) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", d.Quote(table), d.Quote(c.Name)), nil
}

func (Postgres) TableOptions() string { return "" }

func (Postgres) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?`
}

func (Postgres) ColumnQuery() string {
	return `SELECT column_name, data_type, is_nullable FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
}

func (Postgres) IndexExistsQuery() string {
	return `SELECT COUNT(*) FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename = ? AND indexname = ?`
}

// IsDuplicate covers duplicate_column, duplicate_table (tables and indexes) and duplicate_object.
func (Postgres) IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42701", "42P07", "42710":
		return true
	}
	return false
}
