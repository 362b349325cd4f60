package main

import (
	"context"
	"testing"

	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain/job"
)

func TestNewSchedulerMemoryBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Jobs.Backend = "memory"

	s, err := newScheduler(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	if err := s.Enqueue(context.Background(), job.KindMigrateAll, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s.Stop()
}

func TestNewSchedulerNATSRequiresQueue(t *testing.T) {
	cfg := config.Defaults()
	cfg.Jobs.Backend = "nats"
	if _, err := newScheduler(context.Background(), &cfg, nil); err == nil {
		t.Fatal("expected error without a nats connection")
	}
}

func TestNewCacheWithoutNATS(t *testing.T) {
	cfg := config.Defaults()
	c, closeCache, err := newCache(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("newCache: %v", err)
	}
	defer closeCache()
	if err := c.Set(context.Background(), "tenant:t1", []byte("x"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestNewNotifiers(t *testing.T) {
	cfg := config.Defaults()
	if got := newNotifiers(&cfg); len(got) != 0 {
		t.Fatalf("expected no notifiers without smtp host, got %d", len(got))
	}
	cfg.SMTP.Host = "smtp.test"
	got := newNotifiers(&cfg)
	if len(got) != 1 || got[0].Name() != "email" {
		t.Fatalf("expected email notifier, got %v", got)
	}
	cfg.Slack.WebhookURL = "https://hooks.slack.test/T000"
	got = newNotifiers(&cfg)
	if len(got) != 2 || got[1].Name() != "slack" {
		t.Fatalf("expected email and slack notifiers, got %v", got)
	}
}

func TestRunAdminUnknownCommand(t *testing.T) {
	if err := runAdmin([]string{"explode"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := runAdmin(nil); err != nil {
		t.Fatalf("help should not fail: %v", err)
	}
}

func TestOriginHosts(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"http://localhost:3000", []string{"localhost:3000"}},
		{"https://app.tenantforge.app", []string{"app.tenantforge.app"}},
		{"*.tenantforge.app", []string{"*.tenantforge.app"}},
	}
	for _, tt := range tests {
		got := originHosts(tt.in)
		if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
			t.Errorf("originHosts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
