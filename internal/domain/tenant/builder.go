package tenant

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TenantForge/internal/domain/registration"
)

// Builder stages construction of a Tenant: construct, derive the id-dependent
// fields, then finalize. Build refuses to hand out a tenant whose database
// descriptor is still the placeholder.
type Builder struct {
	t Tenant
}

// NewBuilder starts a tenant with a fresh id and the placeholder descriptor.
func NewBuilder(name, code, contactEmail string) *Builder {
	return &Builder{t: Tenant{
		ID:           uuid.NewString(),
		Name:         name,
		Code:         code,
		ContactEmail: contactEmail,
		Database:     PlaceholderDatabase,
	}}
}

// ID returns the generated tenant id.
func (b *Builder) ID() string {
	return b.t.ID
}

// DeriveDatabase computes the database name from the tenant id and rewrites
// the descriptor from template with only the database name substituted.
func (b *Builder) DeriveDatabase(template string) error {
	name := DatabaseName(b.t.ID)
	conn, err := WithDatabase(template, name)
	if err != nil {
		return fmt.Errorf("derive database for tenant %s: %w", b.t.ID, err)
	}
	b.t.Database = Database{Name: name, ConnectionString: conn}
	return nil
}

// AddPrimaryDomain binds "{code}.{baseDomain}" as the primary domain.
func (b *Builder) AddPrimaryDomain(baseDomain string) {
	host := strings.ToLower(b.t.Code) + "." + strings.TrimPrefix(baseDomain, ".")
	for i := range b.t.Domains {
		b.t.Domains[i].IsPrimary = false
	}
	b.t.Domains = append(b.t.Domains, Domain{Name: host, IsPrimary: true})
}

// StartTrial attaches a zero-priced trial subscription starting at start.
func (b *Builder) StartTrial(cycle registration.BillingCycle, start time.Time) {
	start = start.UTC()
	end := start.Add(TrialLength)
	b.t.Subscriptions = append(b.t.Subscriptions, Subscription{
		ID:           uuid.NewString(),
		TenantID:     b.t.ID,
		BillingCycle: cycle,
		Price:        0,
		Status:       SubscriptionTrial,
		StartDate:    start,
		TrialEndDate: &end,
	})
}

// Build finalizes the tenant. The tenant starts inactive.
func (b *Builder) Build() (*Tenant, error) {
	if b.t.Database.IsPlaceholder() {
		return nil, fmt.Errorf("%w: tenant %s still carries the placeholder database", ErrInvariant, b.t.ID)
	}
	if b.t.Code == "" {
		return nil, fmt.Errorf("%w: tenant %s has no code", ErrInvariant, b.t.ID)
	}
	t := b.t
	t.Active = false
	t.Domains = append([]Domain(nil), b.t.Domains...)
	t.Subscriptions = append([]Subscription(nil), b.t.Subscriptions...)
	return &t, nil
}
