package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain/audit"
)

// --- Audit ---

// RecordAudit appends an audit event. The table is append-only.
func (s *Store) RecordAudit(ctx context.Context, e audit.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (type, category, risk_score, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.Type, e.Category, e.RiskScore, []byte(e.Metadata), e.OccurredAt)
	if err != nil {
		return fmt.Errorf("record audit %s: %w", e.Type, mapErr(err))
	}
	return nil
}

// ListAudit returns the newest audit events of a tenant.
func (s *Store) ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, category, risk_score, metadata, occurred_at
		 FROM audit_events WHERE metadata->>'tenant_id' = $1
		 ORDER BY occurred_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit of tenant %s: %w", tenantID, mapErr(err))
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &e.RiskScore, &e.Metadata, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return orEmpty(out), rows.Err()
}
