// Package slack implements a notifier.Notifier that posts to the operations
// channel through a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/TenantForge/internal/port/notifier"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

const providerName = "slack"

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		return NewNotifier(settings["webhook_url"], nil), nil
	})
}

// Notifier posts notifications to a Slack channel. The recipient of a
// notification is shown in the message, not used for routing.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewNotifier creates a Slack notifier. A nil breaker posts without one.
func NewNotifier(webhookURL string, breaker *resilience.Breaker) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
	}
}

func (n *Notifier) Name() string { return providerName }

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts the notification.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(compose(notification))
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	post := func() error { return n.post(ctx, body) }
	if n.breaker != nil {
		return n.breaker.Execute(post)
	}
	return post()
}

func compose(notification notifier.Notification) slackMessage {
	msg := slackMessage{
		Text: notification.Title,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: notification.Title}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: notification.Message}},
		},
	}
	var ctxParts []slackText
	if notification.Source != "" {
		ctxParts = append(ctxParts, slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Source: %s_", notification.Source)})
	}
	if notification.To != "" {
		ctxParts = append(ctxParts, slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Contact: %s_", notification.To)})
	}
	if len(ctxParts) > 0 {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "context", Elements: ctxParts})
	}
	return msg
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
