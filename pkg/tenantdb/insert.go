package tenantdb

import (
	"context"
	"strings"
)

// InsertBuilder assembles an insert. On scoped tables tenant_id is stamped
// from the context at Build time, silently overriding any caller-supplied
// value: the context is the only authority on row ownership.
type InsertBuilder struct {
	registry *Registry
	table    string
	cols     []string
	vals     []any

	conflictCols      []string
	conflictDoNothing bool
	returning         []string
}

// InsertInto starts an insert.
func (s *Store) InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{registry: s.registry, table: table}
}

// Set adds a column value.
func (b *InsertBuilder) Set(col string, val any) *InsertBuilder {
	b.cols = append(b.cols, col)
	b.vals = append(b.vals, val)
	return b
}

// OnConflictDoNothing adds ON CONFLICT (cols...) DO NOTHING, the
// if-not-exists idiom for rows with a natural unique key. With no columns
// the clause applies to any conflict.
func (b *InsertBuilder) OnConflictDoNothing(cols ...string) *InsertBuilder {
	b.conflictDoNothing = true
	b.conflictCols = cols
	return b
}

// Returning appends a RETURNING clause; run the builder with InsertRow.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.returning = cols
	return b
}

// Build finalizes the statement, stamping tenant_id on scoped tables.
func (b *InsertBuilder) Build(ctx context.Context) (string, []any, error) {
	if b.table == "" {
		return "", nil, ErrMissingTable
	}

	cols := b.cols
	vals := b.vals

	if b.registry.IsScoped(b.table) {
		id, err := scopeTenant(ctx)
		if err != nil {
			return "", nil, err
		}
		// Drop any caller-supplied tenant_id before stamping.
		stamped := make([]string, 0, len(cols)+1)
		stampedVals := make([]any, 0, len(vals)+1)
		for i, col := range cols {
			if col == TenantColumn {
				continue
			}
			stamped = append(stamped, col)
			stampedVals = append(stampedVals, vals[i])
		}
		cols = append(stamped, TenantColumn)
		vals = append(stampedVals, id)
	}

	if len(cols) == 0 {
		return "", nil, ErrNoColumns
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
	}
	sb.WriteString(")")

	if b.conflictDoNothing {
		sb.WriteString(" ON CONFLICT")
		if len(b.conflictCols) > 0 {
			sb.WriteString(" (")
			sb.WriteString(strings.Join(b.conflictCols, ", "))
			sb.WriteString(")")
		}
		sb.WriteString(" DO NOTHING")
	}
	if len(b.returning) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(b.returning, ", "))
	}

	return rebind(sb.String()), vals, nil
}
