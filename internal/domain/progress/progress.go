// Package progress defines the ordered step protocol reported to clients
// watching a tenant being provisioned.
package progress

import "time"

// Step identifies a provisioning stage.
type Step string

const (
	StepStarting            Step = "starting"
	StepCreatingTenant      Step = "creating_tenant"
	StepCreatingAdmin       Step = "creating_admin"
	StepCreatingDatabase    Step = "creating_database"
	StepRunningMigrations   Step = "running_migrations"
	StepSeedingData         Step = "seeding_data"
	StepActivatingTenant    Step = "activating_tenant"
	StepSendingWelcomeEmail Step = "sending_welcome_email"
	StepCompleted           Step = "completed"
	StepError               Step = "error"
)

type stepInfo struct {
	message string
	percent int
}

var steps = map[Step]stepInfo{
	StepStarting:            {"Starting tenant setup", 0},
	StepCreatingTenant:      {"Creating tenant record", 10},
	StepCreatingAdmin:       {"Creating administrator account", 25},
	StepCreatingDatabase:    {"Creating tenant database", 40},
	StepRunningMigrations:   {"Running database migrations", 55},
	StepSeedingData:         {"Seeding initial data", 70},
	StepActivatingTenant:    {"Activating tenant", 85},
	StepSendingWelcomeEmail: {"Sending welcome email", 95},
	StepCompleted:           {"Tenant is ready", 100},
	StepError:               {"Tenant setup failed", 0},
}

// Order is the emission order of the non-error steps.
var Order = []Step{
	StepStarting,
	StepCreatingTenant,
	StepCreatingAdmin,
	StepCreatingDatabase,
	StepRunningMigrations,
	StepSeedingData,
	StepActivatingTenant,
	StepSendingWelcomeEmail,
	StepCompleted,
}

// Message returns the human-readable message of s.
func (s Step) Message() string { return steps[s].message }

// Percent returns the percentage hint of s.
func (s Step) Percent() int { return steps[s].percent }

// Update is one progress emission keyed by registration id.
type Update struct {
	RegistrationID string    `json:"registration_id"`
	Step           Step      `json:"step"`
	Message        string    `json:"message"`
	Percent        int       `json:"percent"`
	TenantID       string    `json:"tenant_id,omitempty"`
	TenantName     string    `json:"tenant_name,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// New builds the update for step s.
func New(registrationID string, s Step) Update {
	return Update{
		RegistrationID: registrationID,
		Step:           s,
		Message:        s.Message(),
		Percent:        s.Percent(),
		At:             time.Now().UTC(),
	}
}

// Completed builds the terminal success update.
func Completed(registrationID, tenantID, tenantName string) Update {
	u := New(registrationID, StepCompleted)
	u.TenantID = tenantID
	u.TenantName = tenantName
	return u
}

// Failed builds the terminal error update. lastPercent keeps the hint
// non-decreasing relative to the last emitted step.
func Failed(registrationID, message string, lastPercent int) Update {
	u := New(registrationID, StepError)
	u.Error = message
	u.Percent = lastPercent
	return u
}
