package tenantdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the statement executor the store runs against. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so the same store code runs inside and outside
// transactions.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execBuilder is satisfied by Update and Delete builders: statements whose
// zero-row outcome needs the cross-tenant probe.
type execBuilder interface {
	Builder
	probe() (string, []any, bool)
	target() (string, bool)
}

// Store runs guarded statements. It is safe for concurrent use across
// independent request contexts; a transactional store obtained via InTx is
// bound to that transaction.
type Store struct {
	db       DB
	registry *Registry
}

// New creates a store over the given executor and scoped-table registry.
func New(db DB, registry *Registry) *Store {
	return &Store{db: db, registry: registry}
}

// Registry exposes the scoped-table set, mainly for the deletion sweep.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Query runs a select and returns the rows.
func (s *Store) Query(ctx context.Context, b *SelectBuilder) (pgx.Rows, error) {
	sql, args, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.Query(ctx, sql, args...)
}

// QueryRow runs a select expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, b *SelectBuilder) (pgx.Row, error) {
	sql, args, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.QueryRow(ctx, sql, args...), nil
}

// Insert runs an insert and reports whether a row was written. False with
// a nil error means an ON CONFLICT DO NOTHING clause swallowed the write.
func (s *Store) Insert(ctx context.Context, b *InsertBuilder) (bool, error) {
	sql, args, err := b.Build(ctx)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertRow runs an insert carrying a RETURNING clause and returns the row.
func (s *Store) InsertRow(ctx context.Context, b *InsertBuilder) (pgx.Row, error) {
	sql, args, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return s.db.QueryRow(ctx, sql, args...), nil
}

// Exec runs an update or delete and enforces the mutation guard: when a
// write against a scoped table matches no row, the store probes the table
// without the tenant predicate. A row that exists under another tenant is
// a cross-tenant write (ErrCrossTenantAccess); a row that exists nowhere
// is ErrNotFound.
func (s *Store) Exec(ctx context.Context, b execBuilder) error {
	affected, err := s.ExecAffected(ctx, b)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	probeSQL, probeArgs, ok := b.probe()
	if !ok {
		return ErrNotFound
	}
	var exists bool
	if err := s.db.QueryRow(ctx, probeSQL, probeArgs...).Scan(&exists); err != nil {
		return fmt.Errorf("tenantdb: ownership probe: %w", err)
	}
	if exists {
		return ErrCrossTenantAccess
	}
	return ErrNotFound
}

// ExecAffected runs an update or delete and returns the affected row
// count without the zero-row guard. Use it for conditional writes where
// matching nothing is an expected outcome.
func (s *Store) ExecAffected(ctx context.Context, b execBuilder) (int64, error) {
	sql, args, err := b.Build(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InTx runs fn inside a transaction with a store bound to it. Any error
// rolls the whole transaction back, so guard failures are atomic with the
// business writes around them.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tenantdb: begin: %w", err)
	}

	txStore := &Store{db: tx, registry: s.registry}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tenantdb: commit: %w", err)
	}
	return nil
}
