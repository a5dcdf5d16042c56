package migrator

import (
	"fmt"

	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
)

// Backfill repairs rows whose target column is still NULL. Every rule only
// writes where the target is NULL, so a second run changes nothing.
type Backfill interface {
	// Target is the column being filled.
	Target() (table, column string)
	Validate() error
	// UpdateSQL renders the repair statement for d.
	UpdateSQL(d schema.Dialect) (string, []any)
	// PendingSQL counts the rows UpdateSQL would change.
	PendingSQL(d schema.Dialect) (string, []any)
	// Sources lists the columns the rule reads from.
	Sources() []ColumnRef
	String() string
}

type ColumnRef struct {
	Table  string
	Column string
}

func (c ColumnRef) String() string { return c.Table + "." + c.Column }

// SetValue fills Column with a constant.
type SetValue struct {
	Table  string
	Column string
	Value  any
}

func (b SetValue) Target() (string, string) { return b.Table, b.Column }

func (b SetValue) Validate() error {
	if err := validIdents(b.Table, b.Column); err != nil {
		return fmt.Errorf("%s: %w", b, err)
	}
	if b.Value == nil {
		return fmt.Errorf("%s: nil value", b)
	}
	return nil
}

func (b SetValue) UpdateSQL(d schema.Dialect) (string, []any) {
	return fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IS NULL",
		d.Quote(b.Table), d.Quote(b.Column), d.Quote(b.Column)), []any{b.Value}
}

func (b SetValue) PendingSQL(d schema.Dialect) (string, []any) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", d.Quote(b.Table), d.Quote(b.Column)), nil
}

func (b SetValue) Sources() []ColumnRef { return nil }

func (b SetValue) String() string {
	return fmt.Sprintf("set %s.%s = %v", b.Table, b.Column, b.Value)
}

// CopyColumn fills Column from another column of the same row.
type CopyColumn struct {
	Table  string
	Column string
	From   string
}

func (b CopyColumn) Target() (string, string) { return b.Table, b.Column }

func (b CopyColumn) Validate() error {
	if err := validIdents(b.Table, b.Column, b.From); err != nil {
		return fmt.Errorf("%s: %w", b, err)
	}
	if b.Column == b.From {
		return fmt.Errorf("%s: source and target are the same column", b)
	}
	return nil
}

func (b CopyColumn) UpdateSQL(d schema.Dialect) (string, []any) {
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL AND %s IS NOT NULL",
		d.Quote(b.Table), d.Quote(b.Column), d.Quote(b.From), d.Quote(b.Column), d.Quote(b.From)), nil
}

func (b CopyColumn) PendingSQL(d schema.Dialect) (string, []any) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL AND %s IS NOT NULL",
		d.Quote(b.Table), d.Quote(b.Column), d.Quote(b.From)), nil
}

func (b CopyColumn) Sources() []ColumnRef {
	return []ColumnRef{{Table: b.Table, Column: b.From}}
}

func (b CopyColumn) String() string {
	return fmt.Sprintf("copy %s.%s <- %s", b.Table, b.Column, b.From)
}

// JoinValue fills Column with RefTable.RefColumn of the row that ForeignKey
// points at, e.g. lancamentos.empresa_id from usuarios.empresa_id via usuario_id.
type JoinValue struct {
	Table      string
	Column     string
	ForeignKey string
	RefTable   string
	RefColumn  string
}

func (b JoinValue) Target() (string, string) { return b.Table, b.Column }

func (b JoinValue) Validate() error {
	if err := validIdents(b.Table, b.Column, b.ForeignKey, b.RefTable, b.RefColumn); err != nil {
		return fmt.Errorf("%s: %w", b, err)
	}
	return nil
}

func (b JoinValue) UpdateSQL(d schema.Dialect) (string, []any) {
	return JoinUpdateSQL(d, d.UpdateStyle(), b), nil
}

func (b JoinValue) PendingSQL(d schema.Dialect) (string, []any) {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s.%s IS NULL AND %s",
		d.Quote(b.Table), d.Quote(b.Table), d.Quote(b.Column), b.exists(d)), nil
}

func (b JoinValue) Sources() []ColumnRef {
	return []ColumnRef{
		{Table: b.Table, Column: b.ForeignKey},
		{Table: b.RefTable, Column: "id"},
		{Table: b.RefTable, Column: b.RefColumn},
	}
}

func (b JoinValue) String() string {
	return fmt.Sprintf("join %s.%s <- %s.%s via %s", b.Table, b.Column, b.RefTable, b.RefColumn, b.ForeignKey)
}

// exists matches rows whose referenced row carries a value to copy.
func (b JoinValue) exists(d schema.Dialect) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS src WHERE src.id = %s.%s AND src.%s IS NOT NULL)",
		d.Quote(b.RefTable), d.Quote(b.Table), d.Quote(b.ForeignKey), d.Quote(b.RefColumn))
}

// JoinUpdateSQL renders b in the given update style. The referenced table is
// always aliased as src so a table can be joined to itself.
func JoinUpdateSQL(d schema.Dialect, style schema.UpdateStyle, b JoinValue) string {
	table, col := d.Quote(b.Table), d.Quote(b.Column)
	ref, refCol, fk := d.Quote(b.RefTable), d.Quote(b.RefColumn), d.Quote(b.ForeignKey)
	switch style {
	case schema.UpdateFrom:
		return fmt.Sprintf("UPDATE %s SET %s = src.%s FROM %s AS src WHERE src.id = %s.%s AND %s.%s IS NULL AND src.%s IS NOT NULL",
			table, col, refCol, ref, table, fk, table, col, refCol)
	case schema.UpdateJoin:
		return fmt.Sprintf("UPDATE %s JOIN %s AS src ON src.id = %s.%s SET %s.%s = src.%s WHERE %s.%s IS NULL AND src.%s IS NOT NULL",
			table, ref, table, fk, table, col, refCol, table, col, refCol)
	default:
		return fmt.Sprintf("UPDATE %s SET %s = (SELECT src.%s FROM %s AS src WHERE src.id = %s.%s) WHERE %s IS NULL AND %s",
			table, col, refCol, ref, table, fk, col, b.exists(d))
	}
}

func validIdents(names ...string) error {
	for _, n := range names {
		if !schema.ValidIdent(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}
