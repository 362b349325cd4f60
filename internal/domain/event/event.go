// Package event defines domain events published by the provisioning saga.
package event

import "time"

// SubjectTenantActivated is the message subject of TenantActivated.
const SubjectTenantActivated = "tenants.activated"

// TenantActivated is published once a tenant has been fully provisioned.
type TenantActivated struct {
	TenantID     string    `json:"tenant_id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	OccurredAt   time.Time `json:"occurred_at"`
}
