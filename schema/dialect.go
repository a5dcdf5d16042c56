package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ErrUnsupported is returned by a dialect for a change it cannot express in place.
var ErrUnsupported = errors.New("not supported by dialect")

// UpdateStyle is how a dialect writes an UPDATE that reads from a second table.
type UpdateStyle int

const (
	// UpdateSubquery: UPDATE t SET c = (SELECT ... WHERE r.id = t.fk) WHERE ... EXISTS (...)
	UpdateSubquery UpdateStyle = iota
	// UpdateFrom: UPDATE t SET c = r.x FROM r WHERE r.id = t.fk AND ...
	UpdateFrom
	// UpdateJoin: UPDATE t JOIN r ON r.id = t.fk SET t.c = r.x WHERE ...
	UpdateJoin
)

func (s UpdateStyle) String() string {
	switch s {
	case UpdateSubquery:
		return "subquery"
	case UpdateFrom:
		return "update-from"
	case UpdateJoin:
		return "update-join"
	default:
		return "unknown"
	}
}

// Dialect isolates everything that differs between the supported databases.
// Introspection is the only truly dialect-sensitive primitive; the DDL built
// from it stays as close to ANSI as each database allows.
type Dialect interface {
	Name() string
	Quote(ident string) string
	ColumnType(c ColumnDef) string
	BoolLiteral(v bool) string
	UpdateStyle() UpdateStyle

	AddColumnSQL(table string, c ColumnDef) string
	SetNotNullSQL(table string, c ColumnDef) (string, error)
	TableOptions() string

	TableExistsQuery() string
	ColumnQuery() string
	IndexExistsQuery() string

	// IsDuplicate reports a "table/column/index already exists" failure.
	IsDuplicate(err error) bool
}

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("no dialect for %q", name)
	}
}

// DialectOf picks the dialect from the session's gorm dialector.
func DialectOf(db *gorm.DB) (Dialect, error) {
	if db == nil || db.Dialector == nil {
		return nil, errors.New("no database session")
	}
	return DialectFor(db.Dialector.Name())
}

// ColumnSQL renders "<name> <type> [NOT NULL] [DEFAULT x]".
func ColumnSQL(d Dialect, c ColumnDef) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(d.ColumnType(c))
	if c.Type == TypeID {
		return b.String()
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(DefaultSQL(d, c.Default))
	}
	return b.String()
}

func DefaultSQL(d Dialect, v any) string {
	switch x := v.(type) {
	case bool:
		return d.BoolLiteral(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return QuoteLiteral(x)
	case rawDefault:
		return string(x)
	default:
		return "NULL"
	}
}

// QuoteLiteral renders a SQL string literal; only used for column defaults.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateTableSQL renders the full column set with table-level foreign keys,
// which every supported database accepts.
func CreateTableSQL(d Dialect, t Target) string {
	parts := make([]string, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		parts = append(parts, ColumnSQL(d, c))
	}
	for _, c := range t.Columns {
		if c.References == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(ForeignKeyName(t.Table, c.Name)), d.Quote(c.Name),
			d.Quote(c.References.Table), d.Quote(c.References.Column)))
	}
	sql := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", d.Quote(t.Table), strings.Join(parts, ",\n\t"))
	if opts := d.TableOptions(); opts != "" {
		sql += " " + opts
	}
	return sql
}

func CreateIndexSQL(d Dialect, idx IndexDef) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = d.Quote(c)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(idx.Table), strings.Join(cols, ", "))
}

// StatementFor renders the DDL that makes a missing target exist.
func StatementFor(d Dialect, t Target) string {
	if t.IsTable() {
		return CreateTableSQL(d, t)
	}
	return d.AddColumnSQL(t.Table, *t.Column)
}

func ForeignKeyName(table, column string) string {
	name := "fk_" + table + "_" + column
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func ansiColumnType(c ColumnDef) string {
	switch c.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeVarchar:
		return fmt.Sprintf("VARCHAR(%d)", c.Size)
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", c.Precision, c.Scale)
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDate:
		return "DATE"
	default:
		return strings.ToUpper(string(c.Type))
	}
}

func backtickQuote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
