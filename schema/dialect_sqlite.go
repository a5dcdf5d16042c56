package schema

import (
	"fmt"
	"strings"
)

// SQLite introspects through sqlite_master and the pragma_table_info table function.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

// Quote uses backticks: sqlite reads a double-quoted name that matches no
// column as a string literal, a backticked one is always an identifier.
func (SQLite) Quote(ident string) string { return backtickQuote(ident) }

func (SQLite) ColumnType(c ColumnDef) string {
	switch c.Type {
	case TypeID:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case TypeTimestamp:
		return "DATETIME"
	default:
		return ansiColumnType(c)
	}
}

func (SQLite) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (SQLite) UpdateStyle() UpdateStyle { return UpdateSubquery }

func (d SQLite) AddColumnSQL(table string, c ColumnDef) string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), ColumnSQL(d, c))
	if c.References != nil {
		sql += fmt.Sprintf(" REFERENCES %s (%s)", d.Quote(c.References.Table), d.Quote(c.References.Column))
	}
	return sql
}

// SetNotNullSQL: sqlite cannot alter a column's constraints without rebuilding the table.
func (SQLite) SetNotNullSQL(table string, c ColumnDef) (string, error) {
	return "", fmt.Errorf("set not null on %s.%s: %w", table, c.Name, ErrUnsupported)
}

func (SQLite) TableOptions() string { return "" }

func (SQLite) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (SQLite) ColumnQuery() string {
	return `SELECT name AS column_name, type AS data_type,
		CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END AS is_nullable
		FROM pragma_table_info(?) WHERE name = ?`
}

func (SQLite) IndexExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?`
}

func (SQLite) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
}
