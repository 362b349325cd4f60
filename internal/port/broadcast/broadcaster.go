// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends typed events to the clients subscribed to a topic.
type Broadcaster interface {
	// BroadcastTo sends an event to every client watching topic.
	BroadcastTo(ctx context.Context, topic, eventType string, payload any) error
}
