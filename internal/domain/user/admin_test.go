package user

import "testing"

func TestNewAdminIdentity(t *testing.T) {
	a, err := NewAdminIdentity("jane-acme", "Jane@Acme.test", "Jane", "Doe", "$2a$10$hash")
	if err != nil {
		t.Fatalf("NewAdminIdentity: %v", err)
	}
	if a.Email != "jane@acme.test" {
		t.Errorf("email = %q, want lowercased", a.Email)
	}
	if a.Active || a.EmailVerified || a.TenantID != "" {
		t.Errorf("new identity must be inactive and unassigned: %+v", a)
	}

	a.Activate()
	a.VerifyEmail()
	a.AssignToTenant("t-1")
	if !a.Active || !a.EmailVerified || a.TenantID != "t-1" || a.Role != RoleTenantAdmin {
		t.Errorf("unexpected identity after setup: %+v", a)
	}
}

func TestNewAdminIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name, username, email, hash string
	}{
		{"no username", "", "a@b.test", "h"},
		{"bad email", "u", "not-an-email", "h"},
		{"no hash", "u", "a@b.test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAdminIdentity(tt.username, tt.email, "", "", tt.hash); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestUsernames(t *testing.T) {
	if got := TenantUsername("jane", "acme"); got != "jane-acme" {
		t.Errorf("TenantUsername = %q", got)
	}
	got := DisambiguatedUsername("jane", "acme", "0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	if got != "jane-acme-0a1b2c3d" {
		t.Errorf("DisambiguatedUsername = %q", got)
	}
}
