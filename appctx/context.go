package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> workflow).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	// ContextKeyEmpresaId holds the tenant (empresas.id) a unit of work is scoped to.
	ContextKeyEmpresaId = ContextKey("EmpresaId")
	ContextKeyRunId     = ContextKey("RunId")
	ContextKeyActor     = ContextKey("Actor")

	// ContextKeySkipTenantScope forces tenant scoping to be disabled for the unit of work.
	// Use sparingly (schema-wide maintenance only).
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func WithEmpresaId(ctx context.Context, empresaId int) context.Context {
	return Set(ctx, ContextKeyEmpresaId, empresaId)
}

func EmpresaIdFrom(ctx context.Context) (int, bool) {
	return GetInt(ctx, ContextKeyEmpresaId)
}

func WithRunId(ctx context.Context, runId string) context.Context {
	return Set(ctx, ContextKeyRunId, runId)
}

func RunIdFrom(ctx context.Context) (string, bool) {
	return GetString(ctx, ContextKeyRunId)
}

// WithActor names who started the unit of work (an operator login for the commands).
func WithActor(ctx context.Context, actor string) context.Context {
	return Set(ctx, ContextKeyActor, actor)
}

func ActorFrom(ctx context.Context) (string, bool) {
	return GetString(ctx, ContextKeyActor)
}
