package resilience

import (
	"context"
	"fmt"
	"log/slog"
)

// BestEffort runs fn and logs a failure instead of returning it. A panic in
// fn is recovered and logged the same way. It returns whether fn succeeded.
func BestEffort(ctx context.Context, op string, fn func(context.Context) error, attrs ...any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "best-effort operation panicked",
				append([]any{"op", op, "panic", fmt.Sprint(r)}, attrs...)...)
			ok = false
		}
	}()

	if err := fn(ctx); err != nil {
		slog.WarnContext(ctx, "best-effort operation failed",
			append([]any{"op", op, "error", err}, attrs...)...)
		return false
	}
	return true
}
