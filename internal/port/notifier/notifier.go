// Package notifier defines the notification port (interface) and a registry
// of self-registering notifier adapters.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	To      string `json:"to"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Source  string `json:"source"` // e.g. "tenant.welcome"
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "email").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
