package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ColumnType is a portable logical column type; dialects render it.
type ColumnType string

const (
	TypeID        ColumnType = "id"
	TypeInteger   ColumnType = "integer"
	TypeBigInt    ColumnType = "bigint"
	TypeVarchar   ColumnType = "varchar"
	TypeText      ColumnType = "text"
	TypeBoolean   ColumnType = "boolean"
	TypeDecimal   ColumnType = "decimal"
	TypeTimestamp ColumnType = "timestamp"
	TypeDate      ColumnType = "date"
)

type rawDefault string

// CurrentTimestamp renders as the dialect's CURRENT_TIMESTAMP default.
const CurrentTimestamp rawDefault = "CURRENT_TIMESTAMP"

// ForeignKey references a column (normally the id) of another table.
type ForeignKey struct {
	Table  string `validate:"required,sqlident"`
	Column string `validate:"required,sqlident"`
}

type ColumnDef struct {
	Name      string     `validate:"required,sqlident"`
	Type      ColumnType `validate:"required,oneof=id integer bigint varchar text boolean decimal timestamp date"`
	Size      int        `validate:"gte=0"`
	Precision int        `validate:"gte=0"`
	Scale     int        `validate:"gte=0"`
	NotNull   bool
	// Default is a Go literal (bool, int, int64, float64, string) or CurrentTimestamp.
	Default    any
	References *ForeignKey
}

// Target is one thing a migration step ensures exists: a whole table or a single column.
// There is deliberately no way to express a drop, rename or retype.
type Target struct {
	Table   string      `validate:"required,sqlident"`
	Column  *ColumnDef  // nil for table targets
	Columns []ColumnDef `validate:"dive"`
}

type IndexDef struct {
	Name    string   `validate:"required,sqlident"`
	Table   string   `validate:"required,sqlident"`
	Columns []string `validate:"min=1,dive,sqlident"`
	Unique  bool
}

// NotNullConstraint tightens an existing column once its backfill has run.
type NotNullConstraint struct {
	Table  string `validate:"required,sqlident"`
	Column ColumnDef
}

func Col(name string, t ColumnType) ColumnDef {
	return ColumnDef{Name: name, Type: t}
}

func ID() ColumnDef {
	return ColumnDef{Name: "id", Type: TypeID}
}

func Varchar(name string, size int) ColumnDef {
	return ColumnDef{Name: name, Type: TypeVarchar, Size: size}
}

func Decimal(name string, precision, scale int) ColumnDef {
	return ColumnDef{Name: name, Type: TypeDecimal, Precision: precision, Scale: scale}
}

// Ref is an integer foreign key column pointing at table.id.
func Ref(name string, table string) ColumnDef {
	return ColumnDef{Name: name, Type: TypeInteger, References: &ForeignKey{Table: table, Column: "id"}}
}

func (c ColumnDef) Required() ColumnDef {
	c.NotNull = true
	return c
}

func (c ColumnDef) WithDefault(v any) ColumnDef {
	c.Default = v
	return c
}

func TableTarget(table string, columns ...ColumnDef) Target {
	return Target{Table: table, Columns: columns}
}

func ColumnTarget(table string, column ColumnDef) Target {
	return Target{Table: table, Column: &column}
}

func Index(name string, table string, columns ...string) IndexDef {
	return IndexDef{Name: name, Table: table, Columns: columns}
}

func UniqueIndex(name string, table string, columns ...string) IndexDef {
	return IndexDef{Name: name, Table: table, Columns: columns, Unique: true}
}

func NotNull(table string, column ColumnDef) NotNullConstraint {
	return NotNullConstraint{Table: table, Column: column}
}

func (t Target) IsTable() bool { return t.Column == nil }

func (t Target) String() string {
	if t.IsTable() {
		return "table " + t.Table
	}
	return "column " + t.Table + "." + t.Column.Name
}

func (i IndexDef) String() string {
	return fmt.Sprintf("index %s on %s(%s)", i.Name, i.Table, strings.Join(i.Columns, ", "))
}

func (n NotNullConstraint) String() string {
	return "not null " + n.Table + "." + n.Column.Name
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidIdent reports whether name is safe to splice into DDL.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

func (c ColumnDef) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("column %q: %w", c.Name, err)
	}
	switch c.Type {
	case TypeVarchar:
		if c.Size <= 0 {
			return fmt.Errorf("column %q: varchar needs a size", c.Name)
		}
	case TypeDecimal:
		if c.Precision <= 0 || c.Scale > c.Precision {
			return fmt.Errorf("column %q: invalid decimal(%d,%d)", c.Name, c.Precision, c.Scale)
		}
	}
	switch c.Default.(type) {
	case nil, bool, int, int64, float64, string, rawDefault:
	default:
		return fmt.Errorf("column %q: unsupported default %T", c.Name, c.Default)
	}
	return nil
}

func (t Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	if t.IsTable() {
		if len(t.Columns) == 0 {
			return fmt.Errorf("%s: no columns", t)
		}
		seen := make(map[string]bool, len(t.Columns))
		ids := 0
		for _, c := range t.Columns {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			if seen[c.Name] {
				return fmt.Errorf("%s: duplicate column %q", t, c.Name)
			}
			seen[c.Name] = true
			if c.Type == TypeID {
				ids++
			}
		}
		if ids != 1 {
			return fmt.Errorf("%s: needs exactly one id column, got %d", t, ids)
		}
		return nil
	}
	if len(t.Columns) > 0 {
		return fmt.Errorf("%s: column target cannot carry a column set", t)
	}
	if err := t.Column.Validate(); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	if t.Column.Type == TypeID {
		return fmt.Errorf("%s: cannot add a primary key to an existing table", t)
	}
	// existing rows would violate the constraint; tighten later with NotNullConstraint
	if t.Column.NotNull && t.Column.Default == nil {
		return fmt.Errorf("%s: additive NOT NULL column needs a default", t)
	}
	return nil
}

func (i IndexDef) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%s: %w", i, err)
	}
	return nil
}

func (n NotNullConstraint) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("%s: %w", n, err)
	}
	return n.Column.Validate()
}
