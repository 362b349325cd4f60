// Package email implements a notifier.Notifier that delivers mail over SMTP.
package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/TenantForge/internal/port/notifier"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

const providerName = "email"

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		port, err := strconv.Atoi(settings["port"])
		if settings["port"] != "" && err != nil {
			return nil, fmt.Errorf("email: invalid port %q: %w", settings["port"], err)
		}
		return NewNotifier(SMTPConfig{
			Host:     settings["host"],
			Port:     port,
			From:     settings["from"],
			Username: settings["username"],
			Password: settings["password"],
		}, nil), nil
	})
}

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends notifications as plain-text mail.
type Notifier struct {
	cfg     SMTPConfig
	breaker *resilience.Breaker
	send    sendFunc
	now     func() time.Time
}

// NewNotifier creates an email notifier. A nil breaker sends without one.
func NewNotifier(cfg SMTPConfig, breaker *resilience.Breaker) *Notifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Notifier{cfg: cfg, breaker: breaker, send: smtp.SendMail, now: time.Now}
}

func (n *Notifier) Name() string { return providerName }

// Send delivers the notification to its recipient.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" {
		return notifier.ErrNotConfigured
	}
	if notification.To == "" {
		return fmt.Errorf("email: notification %q has no recipient", notification.Source)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := n.compose(notification)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Password != "" {
		user := n.cfg.Username
		if user == "" {
			user = n.cfg.From
		}
		auth = smtp.PlainAuth("", user, n.cfg.Password, n.cfg.Host)
	}

	deliver := func() error {
		return n.send(addr, auth, n.cfg.From, []string{notification.To}, msg)
	}
	var err error
	if n.breaker != nil {
		err = n.breaker.Execute(deliver)
	} else {
		err = deliver()
	}
	if err != nil {
		return fmt.Errorf("email send to %s: %w", notification.To, err)
	}
	return nil
}

func (n *Notifier) compose(notification notifier.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", notification.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", notification.Title))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	if notification.Source != "" {
		fmt.Fprintf(&b, "X-TenantForge-Source: %s\r\n", notification.Source)
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(notification.Message, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
