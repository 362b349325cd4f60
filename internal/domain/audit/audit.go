// Package audit defines the security-relevant records emitted by the
// provisioning saga.
package audit

import (
	"encoding/json"
	"time"
)

// Type names an audit event.
type Type string

const (
	TypeTenantActivated        Type = "tenant_activated"
	TypeTenantActivationFailed Type = "tenant_activation_failed"
	TypeTenantRolledBack       Type = "tenant_rolled_back"
	TypeOrphanRemoved          Type = "orphaned_tenant_removed"
)

// CategoryTenantLifecycle groups every saga audit record.
const CategoryTenantLifecycle = "tenant_lifecycle"

// Risk scores on a 0-100 scale.
const (
	RiskLow    = 10
	RiskMedium = 50
	RiskHigh   = 80
)

// Metadata is the JSON blob attached to an event.
type Metadata struct {
	TenantID       string `json:"tenant_id,omitempty"`
	TenantName     string `json:"tenant_name,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Note           string `json:"note,omitempty"`
}

// Event is one audit record.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Category   string          `json:"category"`
	RiskScore  int             `json:"risk_score"`
	Metadata   json.RawMessage `json:"metadata"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event in the tenant lifecycle category.
func New(t Type, risk int, md Metadata) (Event, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:       t,
		Category:   CategoryTenantLifecycle,
		RiskScore:  risk,
		Metadata:   raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}
