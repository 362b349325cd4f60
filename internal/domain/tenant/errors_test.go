package tenant

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", Validation(CodeEmailNotVerified, ErrEmailNotVerified), false},
		{"conflict", Conflict(CodeAlreadyExists, ErrCodeTaken), false},
		{"cleanup", &Failure{Kind: KindCleanup, Code: CodeCleanupFailed}, false},
		{"infrastructure", &Failure{Kind: KindInfrastructure, Code: CodeCreateFailed, Err: ErrMigration}, true},
		{"invariant", fmt.Errorf("build: %w", ErrInvariant), false},
		{"plain", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureUnwrap(t *testing.T) {
	f := &Failure{Kind: KindInfrastructure, Code: CodeCreateFailed, Message: MessageRetry, Err: ErrDatabaseUnavailable}
	if !errors.Is(f, ErrDatabaseUnavailable) {
		t.Fatal("expected Failure to unwrap to its cause")
	}
	var target *Failure
	if !errors.As(fmt.Errorf("wrapped: %w", f), &target) || target.Code != CodeCreateFailed {
		t.Fatal("expected errors.As to find the Failure")
	}
}
