// Package tenant establishes the tenant-scoped data-access context.
//
// Every store operation on patients and identity documents reads the tenant from the
// context via Require and fails closed when it is absent. The scope is carried by the
// request or job context only; there is no process-wide tenant state.
package tenant

import (
	"context"
	"database/sql"
	"fmt"

	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
	txcontext "carepay/pkg/platform/tx"
)

type scopeKey struct{}

// WithScope attaches a tenant scope to ctx.
func WithScope(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, scopeKey{}, tenantID)
}

// FromContext returns the tenant scope carried by ctx, if any.
func FromContext(ctx context.Context) (id.TenantID, bool) {
	tenantID, ok := ctx.Value(scopeKey{}).(id.TenantID)
	if !ok || tenantID.IsNil() {
		return id.TenantID{}, false
	}
	return tenantID, true
}

// Require returns the scoped tenant or sentinel.ErrNoTenantScope.
func Require(ctx context.Context) (id.TenantID, error) {
	tenantID, ok := FromContext(ctx)
	if !ok {
		return id.TenantID{}, sentinel.ErrNoTenantScope
	}
	return tenantID, nil
}

// Scoper runs a unit of work inside a tenant scope.
type Scoper interface {
	RunScoped(ctx context.Context, tenantID id.TenantID, fn func(ctx context.Context) error) error
}

// checkNested allows re-entering the same tenant scope and refuses to switch tenants
// inside an open scope.
func checkNested(ctx context.Context, tenantID id.TenantID) (nested bool, err error) {
	current, ok := FromContext(ctx)
	if !ok {
		return false, nil
	}
	if current != tenantID {
		return true, fmt.Errorf("tenant scope %s already open, refusing %s: %w", current, tenantID, sentinel.ErrInvalidState)
	}
	return true, nil
}

// MemoryScoper attaches the scope without a database transaction.
type MemoryScoper struct{}

func NewMemoryScoper() *MemoryScoper { return &MemoryScoper{} }

func (MemoryScoper) RunScoped(ctx context.Context, tenantID id.TenantID, fn func(ctx context.Context) error) error {
	if tenantID.IsNil() {
		return sentinel.ErrNoTenantScope
	}
	nested, err := checkNested(ctx, tenantID)
	if err != nil {
		return err
	}
	if nested {
		return fn(ctx)
	}
	return fn(WithScope(ctx, tenantID))
}

// PostgresScoper opens a transaction and sets the app.current_tenant session
// variable that the row-level security policies compare against. The variable is
// transaction-local, so pooled connections never carry a stale tenant.
type PostgresScoper struct {
	db *sql.DB
}

func NewPostgresScoper(db *sql.DB) *PostgresScoper {
	return &PostgresScoper{db: db}
}

func (s *PostgresScoper) RunScoped(ctx context.Context, tenantID id.TenantID, fn func(ctx context.Context) error) error {
	if tenantID.IsNil() {
		return sentinel.ErrNoTenantScope
	}
	nested, err := checkNested(ctx, tenantID)
	if err != nil {
		return err
	}
	if nested {
		if _, ok := txcontext.From(ctx); ok {
			return fn(ctx)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tenant scope: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_tenant', $1, true)`, tenantID.String()); err != nil {
		return fmt.Errorf("set tenant scope: %w", err)
	}

	scoped := txcontext.WithTx(WithScope(ctx, tenantID), tx)
	if err := fn(scoped); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenant scope: %w", err)
	}
	return nil
}
