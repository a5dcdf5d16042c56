package schema

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo is what the inspector knows about one column.
type ColumnInfo struct {
	Exists   bool
	DataType string
	Nullable bool
}

// Inspector answers existence questions. It never writes.
type Inspector struct {
	db      *gorm.DB
	dialect Dialect
}

func NewInspector(db *gorm.DB, dialect Dialect) *Inspector {
	return &Inspector{db: db, dialect: dialect}
}

func (i *Inspector) Dialect() Dialect { return i.dialect }

// Ping returns a *ConnectionError when the session cannot reach the database.
func (i *Inspector) Ping(ctx context.Context) error {
	if i.db == nil {
		return &ConnectionError{Err: gorm.ErrInvalidDB}
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return &ConnectionError{Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

func (i *Inspector) TableExists(ctx context.Context, table string) (bool, error) {
	if err := i.Ping(ctx); err != nil {
		return false, err
	}
	var count int64
	if err := i.db.WithContext(ctx).Raw(i.dialect.TableExistsQuery(), table).Scan(&count).Error; err != nil {
		return false, i.wrap(table, "", err)
	}
	return count > 0, nil
}

type columnRow struct {
	ColumnName string
	DataType   string
	IsNullable string
}

// Column returns ColumnInfo{Exists: false} for a missing table or column.
func (i *Inspector) Column(ctx context.Context, table, column string) (ColumnInfo, error) {
	if err := i.Ping(ctx); err != nil {
		return ColumnInfo{}, err
	}
	var rows []columnRow
	if err := i.db.WithContext(ctx).Raw(i.dialect.ColumnQuery(), table, column).Scan(&rows).Error; err != nil {
		return ColumnInfo{}, i.wrap(table, column, err)
	}
	if len(rows) == 0 {
		return ColumnInfo{}, nil
	}
	return ColumnInfo{
		Exists:   true,
		DataType: strings.ToLower(rows[0].DataType),
		Nullable: strings.EqualFold(rows[0].IsNullable, "YES"),
	}, nil
}

func (i *Inspector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	info, err := i.Column(ctx, table, column)
	return info.Exists, err
}

func (i *Inspector) IndexExists(ctx context.Context, table, index string) (bool, error) {
	if err := i.Ping(ctx); err != nil {
		return false, err
	}
	var count int64
	if err := i.db.WithContext(ctx).Raw(i.dialect.IndexExistsQuery(), table, index).Scan(&count).Error; err != nil {
		return false, i.wrap(table, "", err)
	}
	return count > 0, nil
}

// Check reports whether the target's table exists and, for column targets,
// whether the column exists.
func (i *Inspector) Check(ctx context.Context, t Target) (tableExists bool, columnExists bool, err error) {
	tableExists, err = i.TableExists(ctx, t.Table)
	if err != nil || !tableExists || t.IsTable() {
		return tableExists, false, err
	}
	columnExists, err = i.ColumnExists(ctx, t.Table, t.Column.Name)
	return tableExists, columnExists, err
}

// Present is true when nothing needs to be created for t.
func (i *Inspector) Present(ctx context.Context, t Target) (bool, error) {
	tableExists, columnExists, err := i.Check(ctx, t)
	if err != nil {
		return false, err
	}
	if t.IsTable() {
		return tableExists, nil
	}
	return columnExists, nil
}

func (i *Inspector) wrap(table, column string, err error) error {
	if isConnectionFailure(err) {
		return &ConnectionError{Err: err}
	}
	return &InspectionError{Table: table, Column: column, Err: err}
}
