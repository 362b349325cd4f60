package tenant

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by the provisioning saga and its collaborators.
var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEmailNotVerified     = errors.New("registration email is not verified")
	ErrInvalidStatus        = errors.New("registration status does not allow tenant creation")
	ErrCodeTaken            = errors.New("a tenant with this code already exists")
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrNotRollbackable      = errors.New("tenant provisioning has not given up, refusing rollback")

	// ErrDatabaseUnavailable marks connectivity failures against a tenant or
	// maintenance database.
	ErrDatabaseUnavailable = errors.New("database unavailable")
	// ErrMigration marks failures while migrating or seeding a tenant database.
	ErrMigration = errors.New("tenant database migration failed")
	// ErrInvariant marks a broken aggregate invariant. It is never wrapped in
	// a Failure and aborts the hosting job outright.
	ErrInvariant = errors.New("tenant invariant violated")
)

// Kind classifies a provisioning failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindInfrastructure Kind = "infrastructure"
	KindCleanup        Kind = "cleanup"
	KindInternal       Kind = "internal"
)

// Failure codes returned to callers.
const (
	CodeRegistrationNotFound = "Registration.NotFound"
	CodeEmailNotVerified     = "Registration.EmailNotVerified"
	CodeInvalidStatus        = "Registration.InvalidStatus"
	CodeAlreadyExists        = "Tenant.AlreadyExists"
	CodeTenantNotFound       = "Tenant.NotFound"
	CodeNotRollbackable      = "Tenant.NotRollbackable"
	CodeCleanupFailed        = "Tenant.CleanupFailed"
	CodeCreateFailed         = "Tenant.CreateFailed"
)

// Messages shown to the user for non-validation failures.
const (
	MessageRetry         = "tenant could not be created, please retry or contact support"
	MessageManualCleanup = "cleanup of a previous failed attempt failed, manual intervention required"
)

// Failure is the typed failure result of CreateTenantFromRegistration.
type Failure struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return f.Code + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the job layer may retry the operation.
func (f *Failure) Retryable() bool {
	return f.Kind == KindInfrastructure || f.Kind == KindInternal
}

// Validation builds a validation failure for a sentinel cause.
func Validation(code string, cause error) *Failure {
	return &Failure{Kind: KindValidation, Code: code, Message: cause.Error(), Err: cause}
}

// Conflict builds a conflict failure.
func Conflict(code string, cause error) *Failure {
	return &Failure{Kind: KindConflict, Code: code, Message: cause.Error(), Err: cause}
}

// IsRetryable reports whether err should be retried by the job layer.
// Non-Failure errors are retryable unless they signal a broken invariant.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvariant) {
		return false
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Retryable()
	}
	return true
}
