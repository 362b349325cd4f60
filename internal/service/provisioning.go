package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/audit"
	"github.com/Strob0t/TenantForge/internal/domain/event"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/progress"
	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/domain/user"
	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/port/credential"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
	"github.com/Strob0t/TenantForge/internal/port/lifecycle"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

// Provisioning modes.
const (
	ModeInline   = "inline"
	ModeDeferred = "deferred"
)

// ProvisioningConfig holds the orchestrator settings.
type ProvisioningConfig struct {
	Mode                  string // "inline" or "deferred"
	BaseDomain            string // primary domains are "{code}.{BaseDomain}"
	DatabaseTemplate      string // connection string the tenant descriptor is derived from
	FallbackAdminPassword string //nolint:gosec // used only when the registration carries no hash
}

// ProvisioningService turns an approved registration into a running tenant.
type ProvisioningService struct {
	store     database.Store
	orphans   *OrphanService
	lifecycle lifecycle.Provider
	creds     credential.Issuer
	progress  *ProgressService
	notify    *NotificationService
	jobs      jobqueue.Scheduler
	events    messagequeue.Queue
	tenants   *TenantQueryService
	metrics   *tfotel.Metrics
	cfg       ProvisioningConfig
	now       func() time.Time
}

// NewProvisioningService creates a ProvisioningService.
func NewProvisioningService(
	store database.Store,
	orphans *OrphanService,
	lc lifecycle.Provider,
	creds credential.Issuer,
	prog *ProgressService,
	notify *NotificationService,
	cfg ProvisioningConfig,
) *ProvisioningService {
	if cfg.Mode == "" {
		cfg.Mode = ModeInline
	}
	return &ProvisioningService{
		store:     store,
		orphans:   orphans,
		lifecycle: lc,
		creds:     creds,
		progress:  prog,
		notify:    notify,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetScheduler sets the job scheduler used in deferred mode.
func (s *ProvisioningService) SetScheduler(jobs jobqueue.Scheduler) { s.jobs = jobs }

// SetEventQueue sets the queue TenantActivated is published on.
func (s *ProvisioningService) SetEventQueue(q messagequeue.Queue) { s.events = q }

// SetTenantQuery sets the read model invalidated on activation.
func (s *ProvisioningService) SetTenantQuery(q *TenantQueryService) { s.tenants = q }

// SetMetrics attaches metric instruments.
func (s *ProvisioningService) SetMetrics(m *tfotel.Metrics) { s.metrics = m }

// CreateTenantFromRegistration provisions the tenant of a registration. It
// returns the tenant summary or a *tenant.Failure. A registration already
// linked to a healthy tenant returns that tenant unchanged.
func (s *ProvisioningService) CreateTenantFromRegistration(ctx context.Context, registrationID string) (_ *tenant.Summary, err error) {
	ctx = logger.WithRegistrationID(ctx, registrationID)
	ctx, span := tfotel.StartProvisionSpan(ctx, registrationID)
	defer func() { tfotel.EndSpan(span, err) }()

	s.metrics.ProvisionStarted(ctx, s.cfg.Mode)
	tr := s.track(registrationID)
	tr.emit(ctx, progress.StepStarting)

	reg, err := s.store.GetRegistration(ctx, registrationID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, s.fail(ctx, tr, nil, tenant.Validation(tenant.CodeRegistrationNotFound, tenant.ErrRegistrationNotFound))
	case err != nil:
		return nil, s.fail(ctx, tr, nil, fmt.Errorf("load registration: %w", err))
	}
	if !reg.EmailVerified {
		return nil, s.fail(ctx, tr, nil, tenant.Validation(tenant.CodeEmailNotVerified, tenant.ErrEmailNotVerified))
	}
	if !reg.Provisionable() {
		return nil, s.fail(ctx, tr, nil, tenant.Validation(tenant.CodeInvalidStatus, tenant.ErrInvalidStatus))
	}

	if reg.HasTenant() {
		existing, err := s.orphans.Resolve(ctx, reg)
		if err != nil {
			return nil, s.fail(ctx, tr, nil, err)
		}
		if existing != nil {
			tr.done(ctx, existing)
			return tenant.Summarize(existing), nil
		}
	}

	taken, err := s.store.TenantCodeExists(ctx, reg.CompanyCode)
	if err != nil {
		return nil, s.fail(ctx, tr, nil, fmt.Errorf("check tenant code: %w", err))
	}
	if taken {
		return nil, s.fail(ctx, tr, nil, tenant.Conflict(tenant.CodeAlreadyExists, tenant.ErrCodeTaken))
	}

	tr.emit(ctx, progress.StepCreatingTenant)
	t, err := s.buildTenant(reg)
	if err != nil {
		return nil, s.fail(ctx, tr, nil, err)
	}
	if err := s.store.SaveProvisionedTenant(ctx, t, reg.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, s.fail(ctx, tr, nil, tenant.Conflict(tenant.CodeAlreadyExists, tenant.ErrCodeTaken))
		}
		return nil, s.fail(ctx, tr, nil, fmt.Errorf("save tenant: %w", err))
	}
	log := slog.With("tenant_id", t.ID)
	log.InfoContext(ctx, "tenant record created", "code", t.Code)

	tr.emit(ctx, progress.StepCreatingAdmin)
	admin, err := s.createAdmin(ctx, reg, t)
	if err != nil {
		return nil, s.fail(ctx, tr, t, err)
	}

	if s.cfg.Mode == ModeDeferred {
		if s.jobs == nil {
			return nil, s.fail(ctx, tr, t, errors.New("deferred provisioning without a job scheduler"))
		}
		if err := s.jobs.Enqueue(ctx, job.KindProvision, t.ID); err != nil {
			return nil, s.fail(ctx, tr, t, fmt.Errorf("enqueue provisioning: %w", err))
		}
		log.InfoContext(ctx, "tenant provisioning deferred")
		return tenant.Summarize(t), nil
	}

	if err := s.activate(ctx, tr, t, welcomeFor(reg, admin.Username)); err != nil {
		return nil, s.fail(ctx, tr, t, err)
	}
	return tenant.Summarize(t), nil
}

// Provision runs the post-commit steps for a tenant whose record and admin
// already exist. It is the body of the provision job; attempt is the
// delivery count. Re-running it for an active tenant is a no-op.
func (s *ProvisioningService) Provision(ctx context.Context, tenantID string, attempt int) error {
	log := slog.With("tenant_id", tenantID, "attempt", attempt)

	t, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		log.WarnContext(ctx, "tenant no longer exists, nothing to provision")
		return nil
	}
	if err != nil {
		return classify(fmt.Errorf("load tenant: %w", err))
	}
	if t.Active {
		log.InfoContext(ctx, "tenant already active")
		return nil
	}

	var registrationID string
	var welcome Welcome
	reg, err := s.store.GetRegistrationByTenant(ctx, tenantID)
	switch {
	case err == nil:
		registrationID = reg.ID
		ctx = logger.WithRegistrationID(ctx, reg.ID)
		username := ""
		if a, err := s.store.GetAdminIdentityByEmail(ctx, reg.AdminEmail); err == nil && a.TenantID == tenantID {
			username = a.Username
		}
		welcome = welcomeFor(reg, username)
	case errors.Is(err, domain.ErrNotFound):
		log.WarnContext(ctx, "no registration links the tenant")
	default:
		return classify(fmt.Errorf("load registration: %w", err))
	}

	tr := s.track(registrationID)
	tr.last = progress.StepCreatingAdmin.Percent()
	if err := s.activate(ctx, tr, t, welcome); err != nil {
		return s.fail(ctx, tr, t, err)
	}
	return nil
}

func welcomeFor(reg *registration.Registration, username string) Welcome {
	return Welcome{Email: reg.AdminEmail, Name: reg.AdminFullName(), Username: username}
}

func (s *ProvisioningService) buildTenant(reg *registration.Registration) (*tenant.Tenant, error) {
	b := tenant.NewBuilder(reg.CompanyName, reg.CompanyCode, reg.ContactEmail)
	if err := b.DeriveDatabase(s.cfg.DatabaseTemplate); err != nil {
		return nil, err
	}
	b.AddPrimaryDomain(s.cfg.BaseDomain)
	now := s.now().UTC()
	b.StartTrial(reg.Cycle(), now)
	t, err := b.Build()
	if err != nil {
		return nil, err
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

// createAdmin persists the tenant's administrator. The requested username is
// suffixed with the tenant code, and with part of the tenant id on collision.
func (s *ProvisioningService) createAdmin(ctx context.Context, reg *registration.Registration, t *tenant.Tenant) (*user.AdminIdentity, error) {
	username := user.TenantUsername(reg.AdminUsername, t.Code)
	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		username = user.DisambiguatedUsername(reg.AdminUsername, t.Code, t.ID)
	}

	hash := reg.AdminPasswordHash
	if hash == "" {
		b, err := bcrypt.GenerateFromPassword([]byte(s.cfg.FallbackAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash fallback password: %w", err)
		}
		hash = string(b)
		slog.WarnContext(ctx, "registration has no password hash, using fallback password", "tenant_id", t.ID)
	}

	admin, err := user.NewAdminIdentity(username, reg.AdminEmail, reg.AdminFirstName, reg.AdminLastName, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	admin.Activate()
	admin.VerifyEmail()
	admin.AssignToTenant(t.ID)
	now := s.now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	if err := s.store.CreateAdminIdentity(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin identity: %w", err)
	}
	return admin, nil
}

// activate runs steps database through welcome email and marks t active.
func (s *ProvisioningService) activate(ctx context.Context, tr *tracker, t *tenant.Tenant, welcome Welcome) error {
	tr.emit(ctx, progress.StepCreatingDatabase)
	if err := s.step(ctx, progress.StepCreatingDatabase, t, s.lifecycle.CreateDatabase); err != nil {
		return err
	}
	tr.emit(ctx, progress.StepRunningMigrations)
	if err := s.step(ctx, progress.StepRunningMigrations, t, s.lifecycle.Migrate); err != nil {
		return err
	}
	tr.emit(ctx, progress.StepSeedingData)
	if err := s.step(ctx, progress.StepSeedingData, t, s.lifecycle.Seed); err != nil {
		return err
	}

	s.issueCredential(ctx, t)

	tr.emit(ctx, progress.StepActivatingTenant)
	if err := s.store.SetTenantActive(ctx, t.ID, true); err != nil {
		return fmt.Errorf("activate tenant: %w", err)
	}
	t.Active = true
	t.UpdatedAt = s.now().UTC()
	s.tenants.Invalidate(ctx, t.ID)

	s.audit(ctx, audit.TypeTenantActivated, audit.RiskLow, t, tr.registrationID, "")
	s.publishActivated(ctx, t)
	s.metrics.ProvisionSucceeded(ctx)

	tr.emit(ctx, progress.StepSendingWelcomeEmail)
	resilience.BestEffort(ctx, "notify.welcome", func(ctx context.Context) error {
		return s.notify.SendWelcome(ctx, t, welcome)
	}, "tenant_id", t.ID)
	resilience.BestEffort(ctx, "notify.ops", func(ctx context.Context) error {
		return s.notify.NotifyActivated(ctx, t)
	}, "tenant_id", t.ID)

	tr.done(ctx, t)
	slog.InfoContext(ctx, "tenant activated", "tenant_id", t.ID, "code", t.Code)
	return nil
}

// step runs one fatal lifecycle step inside a span.
func (s *ProvisioningService) step(ctx context.Context, st progress.Step, t *tenant.Tenant, fn func(context.Context, *tenant.Tenant) error) (err error) {
	ctx, span := tfotel.StartStepSpan(ctx, string(st), t.ID)
	start := s.now()
	defer func() {
		s.metrics.ObserveStep(ctx, string(st), s.now().Sub(start).Seconds())
		tfotel.EndSpan(span, err)
	}()
	if err := fn(ctx, t); err != nil {
		return fmt.Errorf("%s: %w", st, err)
	}
	return nil
}

// issueCredential swaps the descriptor to a scoped login and enables row
// isolation. Both are non-fatal.
func (s *ProvisioningService) issueCredential(ctx context.Context, t *tenant.Tenant) {
	if s.creds == nil {
		return
	}
	resilience.BestEffort(ctx, "credential.issue", func(ctx context.Context) error {
		c, err := s.creds.IssueScoped(ctx, t)
		if err != nil {
			return err
		}
		conn, err := tenant.WithCredential(t.Database.ConnectionString, c.Username, c.Password)
		if err != nil {
			return err
		}
		db := tenant.Database{Name: t.Database.Name, ConnectionString: conn}
		if err := s.store.UpdateTenantDatabase(ctx, t.ID, db); err != nil {
			return err
		}
		t.Database = db
		return nil
	}, "tenant_id", t.ID)

	resilience.BestEffort(ctx, "credential.row_isolation", func(ctx context.Context) error {
		return s.creds.EnableRowIsolation(ctx, t)
	}, "tenant_id", t.ID)
}

func (s *ProvisioningService) publishActivated(ctx context.Context, t *tenant.Tenant) {
	if s.events == nil {
		return
	}
	resilience.BestEffort(ctx, "event.tenant_activated", func(ctx context.Context) error {
		data, err := json.Marshal(event.TenantActivated{
			TenantID:     t.ID,
			Code:         t.Code,
			Name:         t.Name,
			ContactEmail: t.ContactEmail,
			OccurredAt:   s.now().UTC(),
		})
		if err != nil {
			return err
		}
		return s.events.Publish(ctx, event.SubjectTenantActivated, data)
	}, "tenant_id", t.ID)
}

func (s *ProvisioningService) audit(ctx context.Context, typ audit.Type, risk int, t *tenant.Tenant, registrationID, note string) {
	resilience.BestEffort(ctx, "audit."+string(typ), func(ctx context.Context) error {
		md := audit.Metadata{RegistrationID: registrationID, Note: note}
		if t != nil {
			md.TenantID = t.ID
			md.TenantName = t.Name
		}
		ev, err := audit.New(typ, risk, md)
		if err != nil {
			return err
		}
		return s.store.RecordAudit(ctx, ev)
	})
}

// fail records a terminal failure and returns the classified error.
func (s *ProvisioningService) fail(ctx context.Context, tr *tracker, t *tenant.Tenant, err error) error {
	classified := classify(err)
	// The run may already be past its deadline; the failure is still recorded.
	ctx = context.WithoutCancel(ctx)

	kind := string(tenant.KindInternal)
	message := tenant.MessageRetry
	var f *tenant.Failure
	if errors.As(classified, &f) {
		kind = string(f.Kind)
		message = f.Message
	}

	attrs := []any{"kind", kind, "error", err}
	if t != nil {
		attrs = append(attrs, "tenant_id", t.ID)
	}
	if kind == string(tenant.KindValidation) || kind == string(tenant.KindConflict) {
		slog.InfoContext(ctx, "tenant creation rejected", attrs...)
	} else {
		slog.ErrorContext(ctx, "tenant creation failed", attrs...)
	}

	tr.fail(ctx, message)
	s.audit(ctx, audit.TypeTenantActivationFailed, audit.RiskMedium, t, tr.registrationID, err.Error())
	s.metrics.ProvisionFailed(ctx, kind)
	return classified
}

// tracker emits progress for one registration and remembers the last
// percentage so an error update never goes backwards.
type tracker struct {
	svc            *ProgressService
	registrationID string
	last           int
}

func (s *ProvisioningService) track(registrationID string) *tracker {
	return &tracker{svc: s.progress, registrationID: registrationID}
}

func (tr *tracker) emit(ctx context.Context, st progress.Step) {
	tr.send(ctx, progress.New(tr.registrationID, st))
}

func (tr *tracker) done(ctx context.Context, t *tenant.Tenant) {
	tr.send(ctx, progress.Completed(tr.registrationID, t.ID, t.Name))
}

func (tr *tracker) fail(ctx context.Context, message string) {
	tr.send(ctx, progress.Failed(tr.registrationID, message, tr.last))
}

func (tr *tracker) send(ctx context.Context, u progress.Update) {
	if u.Step != progress.StepError && u.Percent > tr.last {
		tr.last = u.Percent
	}
	if tr.svc == nil || tr.registrationID == "" {
		return
	}
	resilience.BestEffort(ctx, "progress."+string(u.Step), func(ctx context.Context) error {
		return tr.svc.Report(ctx, u)
	})
}
