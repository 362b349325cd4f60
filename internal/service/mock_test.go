package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/audit"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/domain/registration"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/domain/user"
	"github.com/Strob0t/TenantForge/internal/port/credential"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
	"github.com/Strob0t/TenantForge/internal/port/lock"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of database.Store for testing.
type mockStore struct {
	mu            sync.Mutex
	registrations map[string]*registration.Registration
	tenants       map[string]*tenant.Tenant
	admins        map[string]*user.AdminIdentity
	attempts      map[string]*job.Attempt
	rollbackFlags map[string]bool
	audits        []audit.Event

	// Error hooks, set to inject failures.
	getTenantErr      error
	saveTenantErr     error
	createAdminErr    error
	removeOrphanErr   error
	setActiveErr      error
	deleteTenantErr   error
	markRollbackErr   error
	updateDatabaseErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		registrations: make(map[string]*registration.Registration),
		tenants:       make(map[string]*tenant.Tenant),
		admins:        make(map[string]*user.AdminIdentity),
		attempts:      make(map[string]*job.Attempt),
		rollbackFlags: make(map[string]bool),
	}
}

func (m *mockStore) addRegistration(r registration.Registration) *registration.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[r.ID] = &r
	return &r
}

func (m *mockStore) addTenant(t tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = &t
}

func (m *mockStore) addAdmin(a user.AdminIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[a.ID] = &a
}

func (m *mockStore) tenantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

func (m *mockStore) onlyTenant() *tenant.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		cp := *t
		return &cp
	}
	return nil
}

func (m *mockStore) adminsByEmail(email string) []user.AdminIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.AdminIdentity
	for _, a := range m.admins {
		if strings.EqualFold(a.Email, email) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *mockStore) auditTypes() []audit.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Type, 0, len(m.audits))
	for _, e := range m.audits {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockStore) attempt(key string) *job.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[key]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *mockStore) GetRegistration(_ context.Context, id string) (*registration.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) GetRegistrationByTenant(_ context.Context, tenantID string) (*registration.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.registrations {
		if r.TenantID == tenantID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getTenantErr != nil {
		return nil, m.getTenantErr
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) TenantCodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if strings.EqualFold(t.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) ListActiveTenantIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, t := range m.tenants {
		if t.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockStore) SaveProvisionedTenant(_ context.Context, t *tenant.Tenant, registrationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveTenantErr != nil {
		return m.saveTenantErr
	}
	r, ok := m.registrations[registrationID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range m.tenants {
		if strings.EqualFold(other.Code, t.Code) {
			return domain.ErrConflict
		}
	}
	cp := *t
	m.tenants[t.ID] = &cp
	now := time.Now().UTC()
	r.Status = registration.StatusApproved
	r.ApprovedBy = registration.ApprovedBySystem
	r.ApprovedAt = &now
	r.TenantID = t.ID
	return nil
}

func (m *mockStore) UpdateTenantDatabase(_ context.Context, tenantID string, db tenant.Database) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateDatabaseErr != nil {
		return m.updateDatabaseErr
	}
	t, ok := m.tenants[tenantID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Database = db
	return nil
}

func (m *mockStore) SetTenantActive(_ context.Context, tenantID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setActiveErr != nil {
		return m.setActiveErr
	}
	t, ok := m.tenants[tenantID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Active = active
	return nil
}

func (m *mockStore) RemoveOrphanedTenant(_ context.Context, c database.OrphanCleanup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeOrphanErr != nil {
		return m.removeOrphanErr
	}
	if _, ok := m.tenants[c.TenantID]; ok {
		delete(m.tenants, c.TenantID)
		m.deleteAdminsLocked(c.AdminEmail, c.TenantID)
	}
	if r, ok := m.registrations[c.RegistrationID]; ok {
		r.TenantID = ""
	}
	return nil
}

func (m *mockStore) DeleteTenantWithAdmin(_ context.Context, tenantID, adminEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteTenantErr != nil {
		return m.deleteTenantErr
	}
	delete(m.tenants, tenantID)
	m.deleteAdminsLocked(adminEmail, tenantID)
	for _, r := range m.registrations {
		if r.TenantID == tenantID {
			r.TenantID = ""
		}
	}
	return nil
}

func (m *mockStore) deleteAdminsLocked(email, tenantID string) {
	for id, a := range m.admins {
		if strings.EqualFold(a.Email, email) && (a.TenantID == tenantID || a.TenantID == "") {
			delete(m.admins, id)
		}
	}
}

func (m *mockStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) GetAdminIdentityByEmail(_ context.Context, email string) (*user.AdminIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateAdminIdentity(_ context.Context, a *user.AdminIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createAdminErr != nil {
		return m.createAdminErr
	}
	for _, other := range m.admins {
		if other.Username == a.Username {
			return domain.ErrConflict
		}
	}
	cp := *a
	m.admins[a.ID] = &cp
	return nil
}

func (m *mockStore) GetJobAttempt(_ context.Context, key string) (*job.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) SaveJobAttempt(_ context.Context, a *job.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.RollbackEnqueued = m.rollbackFlags[a.Key]
	m.attempts[a.Key] = &cp
	return nil
}

func (m *mockStore) MarkRollbackEnqueued(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markRollbackErr != nil {
		return false, m.markRollbackErr
	}
	if m.rollbackFlags[key] {
		return false, nil
	}
	m.rollbackFlags[key] = true
	if a, ok := m.attempts[key]; ok {
		a.RollbackEnqueued = true
	}
	return true, nil
}

func (m *mockStore) RecordAudit(ctx context.Context, e audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

// mockLifecycle records database operations and can block or fail them.
type mockLifecycle struct {
	mu       sync.Mutex
	created  map[string]int
	migrated map[string]int
	seeded   map[string]int
	dropped  []string

	createErr  error
	migrateErr error
	seedErr    error
	pingErr    error
	dropErr    error
	failFor    map[string]error // migrate error per tenant id

	// onCreate runs before CreateDatabase returns.
	onCreate func(ctx context.Context)
}

func newMockLifecycle() *mockLifecycle {
	return &mockLifecycle{
		created:  make(map[string]int),
		migrated: make(map[string]int),
		seeded:   make(map[string]int),
		failFor:  make(map[string]error),
	}
}

func (l *mockLifecycle) CreateDatabase(ctx context.Context, t *tenant.Tenant) error {
	if l.onCreate != nil {
		l.onCreate(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	l.created[t.Database.Name]++
	return nil
}

func (l *mockLifecycle) Migrate(_ context.Context, t *tenant.Tenant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failFor[t.ID]; err != nil {
		return err
	}
	if l.migrateErr != nil {
		return l.migrateErr
	}
	l.migrated[t.Database.Name]++
	return nil
}

func (l *mockLifecycle) Seed(_ context.Context, t *tenant.Tenant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seedErr != nil {
		return l.seedErr
	}
	l.seeded[t.Database.Name]++
	return nil
}

func (l *mockLifecycle) Ping(_ context.Context, _ tenant.Database) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pingErr
}

func (l *mockLifecycle) Drop(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped = append(l.dropped, name)
	return l.dropErr
}

func (l *mockLifecycle) createdCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.created {
		n += c
	}
	return n
}

func (l *mockLifecycle) droppedNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.dropped...)
}

// mockIssuer hands out deterministic scoped credentials.
type mockIssuer struct {
	mu        sync.Mutex
	issueErr  error
	isolated  []string
	revoked   []string
	revokeErr error
}

func (c *mockIssuer) IssueScoped(_ context.Context, t *tenant.Tenant) (credential.Credential, error) {
	if c.issueErr != nil {
		return credential.Credential{}, c.issueErr
	}
	return credential.Credential{Username: tenant.RoleName(t.ID), Password: "s3cret"}, nil
}

func (c *mockIssuer) EnableRowIsolation(_ context.Context, t *tenant.Tenant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isolated = append(c.isolated, t.ID)
	return nil
}

func (c *mockIssuer) Revoke(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked = append(c.revoked, tenantID)
	return c.revokeErr
}

// mockScheduler records enqueued jobs.
type mockScheduler struct {
	mu         sync.Mutex
	enqueued   []job.Envelope
	enqueueErr error
}

var _ jobqueue.Scheduler = (*mockScheduler)(nil)

func (s *mockScheduler) Enqueue(_ context.Context, kind job.Kind, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, job.Envelope{Kind: kind, TenantID: tenantID, Attempt: 1})
	return nil
}

func (s *mockScheduler) Start(_ context.Context, _ jobqueue.Handler) error { return nil }
func (s *mockScheduler) Stop()                                           {}

func (s *mockScheduler) count(kind job.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.enqueued {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// mockLocker is an in-memory lock.Locker.
type mockLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

var _ lock.Locker = (*mockLocker)(nil)

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]bool)}
}

func (l *mockLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (lock.Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

// mockBroadcaster records broadcast payloads.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (b *mockBroadcaster) BroadcastTo(ctx context.Context, _, _ string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, payload)
	return nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

var _ messagequeue.Queue = (*mockQueue)(nil)

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.published == nil {
		q.published = make(map[string][][]byte)
	}
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {}, nil
}

// deliver hands data to the handler subscribed on subject.
func (q *mockQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h := q.handlers[subject]
	q.mu.Unlock()
	if h == nil {
		return errors.New("no subscriber")
	}
	return h(ctx, subject, data)
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

var errBoom = errors.New("boom")
