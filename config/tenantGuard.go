package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"

	"bitbucket.org/mmdatafocus/financeiro_backend/appctx"
)

const tenantColumn = "empresa_id"

var (
	// ErrUnscopedTenantWrite is an update or delete on a tenant table with
	// neither an empresa in ctx nor an explicit bypass.
	ErrUnscopedTenantWrite = errors.New("tenant guard: write on tenant table without empresa scope")
	// ErrCrossTenantWrite is an insert of a row owned by another empresa than ctx.
	ErrCrossTenantWrite = errors.New("tenant guard: row belongs to another empresa")
)

// TenantGuardPlugin keeps gorm statements on models with an empresa_id column
// inside the empresa carried by ctx:
//   - queries, updates and deletes get `empresa_id = ?` unless they already filter on it
//   - inserts get empresa_id filled in when empty and are rejected when it differs
//   - updates and deletes without any empresa in ctx are rejected
//
// Raw and Exec SQL are not seen by the plugin. appctx.ContextKeySkipTenantScope
// turns it off for schema-wide maintenance.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("tenant_guard:query", scopeRead),
		cb.Row().Before("gorm:row").Register("tenant_guard:row", scopeRead),
		cb.Update().Before("gorm:update").Register("tenant_guard:update", scopeWrite),
		cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeWrite),
		cb.Create().Before("gorm:create").Register("tenant_guard:create", stampCreate),
	)
}

// guarded returns the empresa of ctx when db's statement is subject to the guard.
// hasTenant is false when ctx carries no empresa.
func guarded(db *gorm.DB) (empresaID int, hasTenant bool, applies bool) {
	stmt := db.Statement
	if stmt == nil || stmt.Context == nil || stmt.Schema == nil {
		return 0, false, false
	}
	if skip, _ := appctx.GetBool(stmt.Context, appctx.ContextKeySkipTenantScope); skip {
		return 0, false, false
	}
	if stmt.Schema.LookUpField(tenantColumn) == nil {
		return 0, false, false
	}
	id, ok := appctx.EmpresaIdFrom(stmt.Context)
	return id, ok && id > 0, true
}

func scopeRead(db *gorm.DB) {
	if id, ok, applies := guarded(db); applies && ok {
		addTenantFilter(db, id)
	}
}

func scopeWrite(db *gorm.DB) {
	id, ok, applies := guarded(db)
	if !applies {
		return
	}
	if !ok {
		_ = db.AddError(fmt.Errorf("%w: %s", ErrUnscopedTenantWrite, db.Statement.Table))
		return
	}
	addTenantFilter(db, id)
}

func addTenantFilter(db *gorm.DB, empresaID int) {
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && anyFiltersTenant(where.Exprs) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: empresaID},
	}})
}

func stampCreate(db *gorm.DB) {
	id, ok, applies := guarded(db)
	if !applies || !ok {
		return
	}
	field := db.Statement.Schema.LookUpField(tenantColumn)
	ctx := db.Statement.Context
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stampRow(ctx, field, reflect.Indirect(rv.Index(i)), id); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := stampRow(ctx, field, rv, id); err != nil {
			_ = db.AddError(err)
		}
	}
}

func stampRow(ctx context.Context, field *gormschema.Field, row reflect.Value, empresaID int) error {
	v, zero := field.ValueOf(ctx, row)
	if zero {
		return field.Set(ctx, row, empresaID)
	}
	if owner, ok := ownerOf(v); ok && owner != empresaID {
		return fmt.Errorf("%w: empresa %d, scope %d", ErrCrossTenantWrite, owner, empresaID)
	}
	return nil
}

func ownerOf(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case *int:
		if x != nil {
			return *x, true
		}
	case int64:
		return int(x), true
	case *int64:
		if x != nil {
			return int(*x), true
		}
	}
	return 0, false
}

func anyFiltersTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		if filtersTenant(e) {
			return true
		}
	}
	return false
}

func filtersTenant(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isTenantColumn(v.Column)
	case clause.Neq:
		return isTenantColumn(v.Column)
	case clause.IN:
		return isTenantColumn(v.Column)
	case clause.AndConditions:
		return anyFiltersTenant(v.Exprs)
	case clause.OrConditions:
		return anyFiltersTenant(v.Exprs)
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
