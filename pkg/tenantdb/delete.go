package tenantdb

import (
	"context"
	"strings"
)

// DeleteBuilder assembles a delete. Scoped tables always carry the tenant
// predicate; unscoped tables require an explicit Where.
type DeleteBuilder struct {
	registry *Registry
	table    string
	conds    []cond
}

// DeleteFrom starts a delete.
func (s *Store) DeleteFrom(table string) *DeleteBuilder {
	return &DeleteBuilder{registry: s.registry, table: table}
}

// Where adds a condition; multiple conditions are ANDed.
func (b *DeleteBuilder) Where(expr string, args ...any) *DeleteBuilder {
	b.conds = append(b.conds, cond{expr: expr, args: args})
	return b
}

// Build finalizes the statement against the tenant context.
func (b *DeleteBuilder) Build(ctx context.Context) (string, []any, error) {
	if b.table == "" {
		return "", nil, ErrMissingTable
	}

	conds := b.conds
	if b.registry.IsScoped(b.table) {
		id, err := scopeTenant(ctx)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond{expr: TenantColumn + " = ?", args: []any{id}})
	} else if len(conds) == 0 {
		return "", nil, ErrMissingWhere
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	writeWhere(&sb, conds, &args)

	return rebind(sb.String()), args, nil
}

func (b *DeleteBuilder) probe() (string, []any, bool) {
	return buildProbe(b.registry, b.table, b.conds)
}

func (b *DeleteBuilder) target() (string, bool) {
	return b.table, b.registry.IsScoped(b.table)
}

// buildProbe assembles the unscoped existence query for a write that
// affected zero rows. Only meaningful for scoped tables with caller
// conditions: a write with no predicate beyond the tenant filter simply
// matched nothing.
func buildProbe(registry *Registry, table string, conds []cond) (string, []any, bool) {
	if !registry.IsScoped(table) || len(conds) == 0 {
		return "", nil, false
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT EXISTS(SELECT 1 FROM ")
	sb.WriteString(table)
	writeWhere(&sb, conds, &args)
	sb.WriteString(")")

	return rebind(sb.String()), args, true
}
