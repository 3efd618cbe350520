package tenantdb

import (
	"context"
	"strconv"
	"strings"

	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// cond is one WHERE fragment with its arguments. Fragments are ANDed.
type cond struct {
	expr string
	args []any
}

// Builder is the common finalization contract: Build resolves the tenant
// context and returns the SQL with positional arguments.
type Builder interface {
	Build(ctx context.Context) (string, []any, error)
}

// rebind rewrites `?` placeholders to PostgreSQL's $1..$n form. Question
// marks inside string literals are not supported; conditions take values
// through arguments, never inline.
func rebind(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scopeTenant resolves the tenant id a scoped statement must be bound to.
// The default platform scope carries no tenant and cannot touch scoped
// tables.
func scopeTenant(ctx context.Context) (string, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok || tc.ID == "" || tc.IsDefault() {
		return "", ErrTenantContextRequired
	}
	return tc.ID, nil
}

func writeWhere(sb *strings.Builder, conds []cond, args *[]any) {
	if len(conds) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString("(")
		sb.WriteString(c.expr)
		sb.WriteString(")")
		*args = append(*args, c.args...)
	}
}
