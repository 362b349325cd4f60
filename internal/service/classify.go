package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// classify maps a saga error onto a typed failure. Invariant violations are
// returned unchanged so the hosting job aborts without a typed result.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tenant.ErrInvariant) {
		return err
	}
	var f *tenant.Failure
	if errors.As(err, &f) {
		return f
	}
	if isInfrastructure(err) {
		return &tenant.Failure{
			Kind:    tenant.KindInfrastructure,
			Code:    tenant.CodeCreateFailed,
			Message: tenant.MessageRetry,
			Err:     err,
		}
	}
	return &tenant.Failure{
		Kind:    tenant.KindInternal,
		Code:    tenant.CodeCreateFailed,
		Message: tenant.MessageRetry,
		Err:     err,
	}
}

// isInfrastructure reports whether err stems from the database layer or a timeout.
func isInfrastructure(err error) bool {
	if errors.Is(err, tenant.ErrDatabaseUnavailable) ||
		errors.Is(err, tenant.ErrMigration) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
