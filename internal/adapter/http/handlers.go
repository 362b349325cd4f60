// Package http exposes the provisioning API over chi.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/progress"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// TenantCreator provisions the tenant of a registration.
type TenantCreator interface {
	CreateTenantFromRegistration(ctx context.Context, registrationID string) (*tenant.Summary, error)
}

// ProgressReader returns the last progress update of a registration.
type ProgressReader interface {
	Latest(ctx context.Context, registrationID string) (*progress.Update, bool, error)
}

// TenantReader serves tenant summaries.
type TenantReader interface {
	Get(ctx context.Context, id string) (*tenant.Summary, error)
}

// JobEnqueuer schedules background jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, kind job.Kind, tenantID string) error
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	Provisioning TenantCreator
	Progress     ProgressReader
	Tenants      TenantReader
	Jobs         JobEnqueuer
	Checks       map[string]Check
	Version      string
	// CreateLimiter wraps the tenant creation endpoint when set.
	CreateLimiter func(http.Handler) http.Handler
	// Admin guards the tenant and job endpoints when set.
	Admin func(http.Handler) http.Handler
}

// CreateTenant handles POST /api/v1/registrations/{id}/tenant
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Provisioning.CreateTenantFromRegistration(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "registration not found")
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

// GetProgress handles GET /api/v1/registrations/{id}/progress
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	u, ok, err := h.Progress.Latest(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no progress reported for this registration")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetTenant handles GET /api/v1/tenants/{id}
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Tenants.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type enqueueJobRequest struct {
	TenantID string `json:"tenant_id"`
}

type enqueueJobResponse struct {
	Kind     job.Kind `json:"kind"`
	TenantID string   `json:"tenant_id,omitempty"`
	Status   string   `json:"status"`
}

// EnqueueJob handles POST /api/v1/jobs/{kind}
func (h *Handlers) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[enqueueJobRequest](w, r)
	if !ok {
		return
	}
	if req.TenantID == "" {
		req.TenantID = r.URL.Query().Get("tenant_id")
	}
	kind := job.Kind(urlParam(r, "kind"))
	if err := h.Jobs.Enqueue(r.Context(), kind, req.TenantID); err != nil {
		if errors.Is(err, job.ErrUnknownKind) {
			writeError(w, http.StatusNotFound, "unknown job kind")
			return
		}
		writeDomainError(w, r, err, "job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueJobResponse{Kind: kind, TenantID: req.TenantID, Status: "queued"})
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

const healthTimeout = 3 * time.Second

// Health handles GET /health. Any failing check turns the answer into 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: h.Version, Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
