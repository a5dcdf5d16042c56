package schema

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQL introspects through information_schema of DATABASE().
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string { return backtickQuote(ident) }

func (MySQL) ColumnType(c ColumnDef) string {
	switch c.Type {
	case TypeID:
		return "INT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case TypeInteger:
		return "INT"
	case TypeBoolean:
		return "TINYINT(1)"
	case TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", c.Precision, c.Scale)
	case TypeTimestamp:
		return "DATETIME"
	default:
		return ansiColumnType(c)
	}
}

func (MySQL) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (MySQL) UpdateStyle() UpdateStyle { return UpdateJoin }

// AddColumnSQL: MySQL parses but ignores inline REFERENCES, so the foreign key
// goes into the same ALTER as a table constraint.
func (d MySQL) AddColumnSQL(table string, c ColumnDef) string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), ColumnSQL(d, c))
	if c.References != nil {
		sql += fmt.Sprintf(", ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(ForeignKeyName(table, c.Name)), d.Quote(c.Name),
			d.Quote(c.References.Table), d.Quote(c.References.Column))
	}
	return sql
}

func (d MySQL) SetNotNullSQL(table string, c ColumnDef) (string, error) {
	c.NotNull = true
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), ColumnSQL(d, c)), nil
}

func (MySQL) TableOptions() string { return "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4" }

func (MySQL) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
}

func (MySQL) ColumnQuery() string {
	return `SELECT column_name AS column_name, data_type AS data_type, is_nullable AS is_nullable
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`
}

func (MySQL) IndexExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`
}

// IsDuplicate covers ER_TABLE_EXISTS_ERROR, ER_DUP_FIELDNAME, ER_DUP_KEYNAME and ER_FK_DUP_NAME.
func (MySQL) IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case 1050, 1060, 1061, 1826:
		return true
	}
	return false
}
