package tenantdb

import (
	"context"
	"strings"
)

// UpdateBuilder assembles an update. Scoped tables always carry the tenant
// predicate; setting tenant_id fails the build regardless of role.
type UpdateBuilder struct {
	registry *Registry
	table    string
	sets     []setClause
	conds    []cond

	immutable bool
}

type setClause struct {
	col  string
	expr string // non-empty for SetExpr
	args []any
}

// Update starts an update.
func (s *Store) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{registry: s.registry, table: table}
}

// Set assigns a column to a value.
func (b *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	if col == TenantColumn {
		b.immutable = true
		return b
	}
	b.sets = append(b.sets, setClause{col: col, args: []any{val}})
	return b
}

// SetExpr assigns a column to a SQL expression, for arithmetic updates
// such as SetExpr("api_request_count", "api_request_count + ?", 1).
func (b *UpdateBuilder) SetExpr(col, expr string, args ...any) *UpdateBuilder {
	if col == TenantColumn {
		b.immutable = true
		return b
	}
	b.sets = append(b.sets, setClause{col: col, expr: expr, args: args})
	return b
}

// Where adds a condition; multiple conditions are ANDed.
func (b *UpdateBuilder) Where(expr string, args ...any) *UpdateBuilder {
	b.conds = append(b.conds, cond{expr: expr, args: args})
	return b
}

// Build finalizes the statement against the tenant context.
func (b *UpdateBuilder) Build(ctx context.Context) (string, []any, error) {
	if b.immutable {
		return "", nil, ErrImmutableField
	}
	if b.table == "" {
		return "", nil, ErrMissingTable
	}
	if len(b.sets) == 0 {
		return "", nil, ErrNoColumns
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
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	for i, sc := range b.sets {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(sc.col)
		sb.WriteString(" = ")
		if sc.expr != "" {
			sb.WriteString(sc.expr)
		} else {
			sb.WriteString("?")
		}
		args = append(args, sc.args...)
	}
	writeWhere(&sb, conds, &args)

	return rebind(sb.String()), args, nil
}

// probe builds the unscoped existence check used to distinguish a
// cross-tenant write from a plain miss after a zero-row exec.
func (b *UpdateBuilder) probe() (string, []any, bool) {
	return buildProbe(b.registry, b.table, b.conds)
}

func (b *UpdateBuilder) target() (string, bool) {
	return b.table, b.registry.IsScoped(b.table)
}
