// Package service contains application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/notifier"
)

// Notification sources.
const (
	// SourceTenantWelcome tags the welcome email sent to a new tenant's admin.
	SourceTenantWelcome = "tenant.welcome"
	// SourceTenantActivated tags the operations notice of a new tenant.
	SourceTenantActivated = "ops.tenant_activated"
)

// Welcome addresses the welcome message to a tenant's administrator.
type Welcome struct {
	Email    string
	Name     string
	Username string
}

// NotificationService dispatches notifications to all registered notifiers.
type NotificationService struct {
	notifiers     []notifier.Notifier
	enabledEvents map[string]bool
	routes        map[string]map[string]bool
}

// NewNotificationService creates a NotificationService with the given notifiers
// and list of enabled sources (e.g., "tenant.welcome").
// If enabledEvents is nil or empty, all sources are enabled.
func NewNotificationService(notifiers []notifier.Notifier, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		notifiers:     notifiers,
		enabledEvents: enabled,
		routes:        make(map[string]map[string]bool),
	}
}

// Route restricts the notifier named name to sources. Notifiers without a
// route receive every enabled source.
func (s *NotificationService) Route(name string, sources ...string) {
	r := make(map[string]bool, len(sources))
	for _, src := range sources {
		r[src] = true
	}
	s.routes[name] = r
}

func (s *NotificationService) accepts(name, source string) bool {
	r, ok := s.routes[name]
	return !ok || r[source]
}

// Notify sends a notification to all registered notifiers. Every notifier is
// tried; the failures are joined.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) error {
	if s == nil || (len(s.enabledEvents) > 0 && !s.enabledEvents[n.Source]) {
		return nil
	}

	var errs []error
	for _, provider := range s.notifiers {
		if !s.accepts(provider.Name(), n.Source) {
			continue
		}
		if err := provider.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
	}
	return errors.Join(errs...)
}

// SendWelcome tells the tenant's administrator that the workspace is ready.
// Without an admin address the tenant's contact address is used.
func (s *NotificationService) SendWelcome(ctx context.Context, t *tenant.Tenant, w Welcome) error {
	to := w.Email
	if to == "" {
		to = t.ContactEmail
	}
	greeting := "Hello"
	if w.Name != "" {
		greeting += " " + w.Name
	}
	msg := fmt.Sprintf("%s,\n\nyour workspace %q is ready at https://%s.", greeting, t.Name, t.PrimaryDomain())
	if w.Username != "" {
		msg += fmt.Sprintf("\nSign in with the username %s.", w.Username)
	}
	return s.Notify(ctx, notifier.Notification{
		To:      to,
		Title:   fmt.Sprintf("Welcome to TenantForge, %s", t.Name),
		Message: msg,
		Source:  SourceTenantWelcome,
	})
}

// NotifyActivated posts the operations notice of a newly active tenant. It
// carries no credentials.
func (s *NotificationService) NotifyActivated(ctx context.Context, t *tenant.Tenant) error {
	return s.Notify(ctx, notifier.Notification{
		Title:   fmt.Sprintf("Tenant activated: %s", t.Name),
		Message: fmt.Sprintf("Tenant %s (code %s, id %s) is active at https://%s.", t.Name, t.Code, t.ID, t.PrimaryDomain()),
		Source:  SourceTenantActivated,
	})
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
