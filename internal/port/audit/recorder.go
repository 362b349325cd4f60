// Package audit defines the port that records security-relevant events.
package audit

import (
	"context"

	"github.com/Strob0t/TenantForge/internal/domain/audit"
)

// Recorder persists audit events.
type Recorder interface {
	RecordAudit(ctx context.Context, e audit.Event) error
}
