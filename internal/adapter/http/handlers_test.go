package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	tfhttp "github.com/Strob0t/TenantForge/internal/adapter/http"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/progress"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/middleware"
)

type mockCreator struct {
	sum *tenant.Summary
	err error
	got string
}

func (m *mockCreator) CreateTenantFromRegistration(_ context.Context, id string) (*tenant.Summary, error) {
	m.got = id
	return m.sum, m.err
}

type mockProgress struct {
	updates map[string]*progress.Update
	err     error
}

func (m *mockProgress) Latest(_ context.Context, id string) (*progress.Update, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	u, ok := m.updates[id]
	return u, ok, nil
}

type mockTenants struct {
	tenants map[string]*tenant.Summary
}

func (m *mockTenants) Get(_ context.Context, id string) (*tenant.Summary, error) {
	if s, ok := m.tenants[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
}

type mockJobs struct {
	kind     job.Kind
	tenantID string
}

func (m *mockJobs) Enqueue(_ context.Context, kind job.Kind, tenantID string) error {
	env := job.Envelope{Kind: kind, TenantID: tenantID}
	if err := env.Validate(); err != nil {
		if errors.Is(err, job.ErrUnknownKind) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	m.kind, m.tenantID = kind, tenantID
	return nil
}

type fixture struct {
	router   chi.Router
	creator  *mockCreator
	progress *mockProgress
	tenants  *mockTenants
	jobs     *mockJobs
	h        *tfhttp.Handlers
}

func newFixture() *fixture {
	f := &fixture{
		creator:  &mockCreator{},
		progress: &mockProgress{updates: map[string]*progress.Update{}},
		tenants:  &mockTenants{tenants: map[string]*tenant.Summary{}},
		jobs:     &mockJobs{},
	}
	f.h = &tfhttp.Handlers{
		Provisioning: f.creator,
		Progress:     f.progress,
		Tenants:      f.tenants,
		Jobs:         f.jobs,
		Checks:       map[string]tfhttp.Check{},
	}
	f.router = chi.NewRouter()
	tfhttp.MountRoutes(f.router, f.h, nil, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (msg, code string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error, body.Code
}

func TestCreateTenantSuccess(t *testing.T) {
	f := newFixture()
	f.creator.sum = &tenant.Summary{ID: "t-1", Name: "Acme", Code: "acme", Active: true}

	rec := f.do(t, http.MethodPost, "/api/v1/registrations/reg-1/tenant", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if f.creator.got != "reg-1" {
		t.Fatalf("expected registration reg-1, got %q", f.creator.got)
	}
	var sum tenant.Summary
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.ID != "t-1" || sum.Code != "acme" {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestCreateTenantFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantCode   string
	}{
		{
			name:       "registration not found",
			err:        tenant.Validation(tenant.CodeRegistrationNotFound, tenant.ErrRegistrationNotFound),
			wantStatus: http.StatusNotFound,
			wantMsg:    tenant.ErrRegistrationNotFound.Error(),
			wantCode:   tenant.CodeRegistrationNotFound,
		},
		{
			name:       "email not verified",
			err:        tenant.Validation(tenant.CodeEmailNotVerified, tenant.ErrEmailNotVerified),
			wantStatus: http.StatusBadRequest,
			wantMsg:    tenant.ErrEmailNotVerified.Error(),
			wantCode:   tenant.CodeEmailNotVerified,
		},
		{
			name:       "code taken",
			err:        tenant.Conflict(tenant.CodeAlreadyExists, tenant.ErrCodeTaken),
			wantStatus: http.StatusConflict,
			wantMsg:    tenant.ErrCodeTaken.Error(),
			wantCode:   tenant.CodeAlreadyExists,
		},
		{
			name: "infrastructure",
			err: &tenant.Failure{
				Kind:    tenant.KindInfrastructure,
				Code:    tenant.CodeCreateFailed,
				Message: tenant.MessageRetry,
				Err:     errors.New("dial tcp 10.0.0.5:5432: connection refused"),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    tenant.MessageRetry,
			wantCode:   tenant.CodeCreateFailed,
		},
		{
			name: "cleanup",
			err: &tenant.Failure{
				Kind:    tenant.KindCleanup,
				Code:    tenant.CodeCleanupFailed,
				Message: tenant.MessageManualCleanup,
				Err:     errors.New("delete tenant: timeout"),
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    tenant.MessageManualCleanup,
			wantCode:   tenant.CodeCleanupFailed,
		},
		{
			name:       "untyped error",
			err:        errors.New("tenant invariant violated"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.creator.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/v1/registrations/reg-1/tenant", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			msg, code := decodeError(t, rec)
			if msg != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, msg)
			}
			if code != tt.wantCode {
				t.Fatalf("expected code %q, got %q", tt.wantCode, code)
			}
			if strings.Contains(msg, "10.0.0.5") {
				t.Fatal("infrastructure detail leaked to the client")
			}
		})
	}
}

func TestGetProgress(t *testing.T) {
	f := newFixture()
	u := progress.New("reg-1", progress.StepRunningMigrations)
	f.progress.updates["reg-1"] = &u

	rec := f.do(t, http.MethodGet, "/api/v1/registrations/reg-1/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got progress.Update
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Step != progress.StepRunningMigrations || got.Percent != 55 {
		t.Fatalf("unexpected update %+v", got)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/registrations/reg-2/progress", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown registration, got %d", rec.Code)
	}

	f.progress.err = errors.New("cache down")
	if rec := f.do(t, http.MethodGet, "/api/v1/registrations/reg-1/progress", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on cache error, got %d", rec.Code)
	}
}

func TestGetTenant(t *testing.T) {
	f := newFixture()
	f.tenants.tenants["t-1"] = &tenant.Summary{ID: "t-1", Name: "Acme", CreatedAt: time.Now()}

	if rec := f.do(t, http.MethodGet, "/api/v1/tenants/t-1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/tenants/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if msg, _ := decodeError(t, rec); msg != "tenant not found" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestEnqueueJob(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantKind   job.Kind
		wantTenant string
	}{
		{"migrate with body", "/api/v1/jobs/migrate", `{"tenant_id":"t-1"}`, http.StatusAccepted, job.KindMigrate, "t-1"},
		{"seed with query", "/api/v1/jobs/seed?tenant_id=t-2", "", http.StatusAccepted, job.KindSeed, "t-2"},
		{"migrate all without tenant", "/api/v1/jobs/migrate_all", "", http.StatusAccepted, job.KindMigrateAll, ""},
		{"missing tenant", "/api/v1/jobs/rollback", "", http.StatusBadRequest, "", ""},
		{"unknown kind", "/api/v1/jobs/reindex", `{"tenant_id":"t-1"}`, http.StatusNotFound, "", ""},
		{"invalid body", "/api/v1/jobs/migrate", `{"tenant_id":`, http.StatusBadRequest, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
			if f.jobs.kind != tt.wantKind || f.jobs.tenantID != tt.wantTenant {
				t.Fatalf("expected %s/%s enqueued, got %s/%s", tt.wantKind, tt.wantTenant, f.jobs.kind, f.jobs.tenantID)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	f.h.Checks["postgres"] = func(context.Context) error { return nil }

	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f.h.Checks["nats"] = func(context.Context) error { return errors.New("nats: not connected") }
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Checks["postgres"] != "ok" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestCreateTenantLimiterApplied(t *testing.T) {
	f := newFixture()
	f.h.CreateLimiter = func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f.router = chi.NewRouter()
	tfhttp.MountRoutes(f.router, f.h, nil, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/registrations/reg-1/tenant", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if f.creator.got != "" {
		t.Fatal("limited request reached the provisioning service")
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/tenants/x", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("limiter must only guard creation, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	f := newFixture()
	f.h.Admin = middleware.Auth([]string{"ops-key"}, true)
	f.router = chi.NewRouter()
	tfhttp.MountRoutes(f.router, f.h, nil, nil)
	f.tenants.tenants["t-1"] = &tenant.Summary{ID: "t-1"}

	if rec := f.do(t, http.MethodPost, "/api/v1/jobs/rollback", `{"tenant_id":"t-1"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rollback without key, got %d", rec.Code)
	}
	if f.jobs.kind != "" {
		t.Fatalf("expected nothing enqueued, got %s", f.jobs.kind)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/tenants/t-1", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tenant read without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/rollback", strings.NewReader(`{"tenant_id":"t-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "ops-key")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with key, got %d: %s", rec.Code, rec.Body)
	}
	if f.jobs.kind != job.KindRollback || f.jobs.tenantID != "t-1" {
		t.Fatalf("expected rollback/t-1 enqueued, got %s/%s", f.jobs.kind, f.jobs.tenantID)
	}

	// registration endpoints and health stay open
	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/registrations/reg-1/progress", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown progress, got %d", rec.Code)
	}
}
