package tenantdb

import (
	"context"
	"strconv"
	"strings"

	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// SelectBuilder assembles a read. Scoped tables get the tenant predicate
// appended at Build time unless the caller explicitly opts out with
// AcrossTenants under a bypass context.
type SelectBuilder struct {
	registry *Registry
	cols     []string
	table    string
	conds    []cond
	orderBy  []string
	limit    int
	offset   int

	across       bool
	acrossFilter string
}

// Select starts a read returning the given columns.
func (s *Store) Select(cols ...string) *SelectBuilder {
	return &SelectBuilder{registry: s.registry, cols: cols, limit: -1, offset: -1}
}

// From sets the table.
func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

// Where adds a condition; multiple conditions are ANDed. Use `?` for
// argument placeholders.
func (b *SelectBuilder) Where(expr string, args ...any) *SelectBuilder {
	b.conds = append(b.conds, cond{expr: expr, args: args})
	return b
}

// OrderBy appends an ordering expression.
func (b *SelectBuilder) OrderBy(expr string) *SelectBuilder {
	b.orderBy = append(b.orderBy, expr)
	return b
}

// Limit caps the result set. Negative means no limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// Offset skips n rows.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = n
	return b
}

// AcrossTenants opts out of automatic tenant filtering. Allowed only under
// a bypass (SuperAdmin) context. An empty filter reads all tenants; a
// non-empty filter reads exactly that tenant. The result gains an
// effective_tenant_id column so callers can attribute each row.
func (b *SelectBuilder) AcrossTenants(filter string) *SelectBuilder {
	b.across = true
	b.acrossFilter = filter
	return b
}

// Build finalizes the statement against the tenant context.
func (b *SelectBuilder) Build(ctx context.Context) (string, []any, error) {
	if b.table == "" {
		return "", nil, ErrMissingTable
	}

	cols := b.cols
	conds := b.conds

	if b.registry.IsScoped(b.table) {
		switch {
		case b.across:
			tc, ok := tenant.FromContext(ctx)
			if !ok || !tc.Bypass {
				return "", nil, ErrBypassRequired
			}
			cols = append(append([]string{}, cols...), TenantColumn+" AS "+EffectiveTenantAlias)
			if b.acrossFilter != "" {
				conds = append(conds, cond{expr: TenantColumn + " = ?", args: []any{b.acrossFilter}})
			}
		default:
			id, err := scopeTenant(ctx)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, cond{expr: TenantColumn + " = ?", args: []any{id}})
		}
	}

	if len(cols) == 0 {
		cols = []string{"*"}
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	writeWhere(&sb, conds, &args)
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}

	return rebind(sb.String()), args, nil
}
