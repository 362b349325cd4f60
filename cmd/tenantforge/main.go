package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Strob0t/TenantForge/internal/adapter/email"
	tfhttp "github.com/Strob0t/TenantForge/internal/adapter/http"
	"github.com/Strob0t/TenantForge/internal/adapter/jobmem"
	"github.com/Strob0t/TenantForge/internal/adapter/metrics"
	tfnats "github.com/Strob0t/TenantForge/internal/adapter/nats"
	"github.com/Strob0t/TenantForge/internal/adapter/natskv"
	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/adapter/redislock"
	"github.com/Strob0t/TenantForge/internal/adapter/ristretto"
	"github.com/Strob0t/TenantForge/internal/adapter/slack"
	"github.com/Strob0t/TenantForge/internal/adapter/tiered"
	"github.com/Strob0t/TenantForge/internal/adapter/ws"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain/job"
	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/middleware"
	"github.com/Strob0t/TenantForge/internal/port/cache"
	"github.com/Strob0t/TenantForge/internal/port/jobqueue"
	"github.com/Strob0t/TenantForge/internal/port/lock"
	"github.com/Strob0t/TenantForge/internal/port/notifier"
	"github.com/Strob0t/TenantForge/internal/resilience"
	"github.com/Strob0t/TenantForge/internal/service"
)

var version = "dev"

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"jobs_backend", cfg.Jobs.Backend,
		"provisioning_mode", cfg.Provisioning.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := tfotel.Init(ctx, tfotel.Config{
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	otelMetrics, err := tfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	cluster, err := postgres.NewCluster(ctx, cfg.TenantTemplate(), cfg.TenantDB)
	if err != nil {
		return fmt.Errorf("tenant cluster: %w", err)
	}
	defer cluster.Close()

	var queue *tfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = tfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()
	}

	var (
		locker      lock.Locker
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = redislock.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		locker = redislock.New(redisClient)
	} else {
		slog.Warn("redis not configured, tenant jobs run without exclusive locks")
	}

	tenantCache, closeCache, err := newCache(ctx, cfg, queue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---

	store := postgres.NewStore(pool)
	lifecycle := postgres.NewLifecycle(cluster, cfg.TenantDB.PingTimeout)
	creds := postgres.NewCredentialIssuer(cluster)
	hub := ws.NewHub(originHosts(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	progressSvc := service.NewProgressService(hub, tenantCache)
	notifySvc := service.NewNotificationService(newNotifiers(cfg), nil)
	notifySvc.Route("email", service.SourceTenantWelcome)
	notifySvc.Route("slack", service.SourceTenantActivated)
	tenantSvc := service.NewTenantQueryService(store, tenantCache)

	orphanSvc := service.NewOrphanService(store, lifecycle, creds)
	orphanSvc.SetMetrics(otelMetrics)

	provisioningSvc := service.NewProvisioningService(store, orphanSvc, lifecycle, creds, progressSvc, notifySvc, service.ProvisioningConfig{
		Mode:                  cfg.Provisioning.Mode,
		BaseDomain:            cfg.Provisioning.BaseDomain,
		DatabaseTemplate:      cfg.TenantTemplate(),
		FallbackAdminPassword: cfg.Provisioning.FallbackAdminPassword,
	})
	provisioningSvc.SetTenantQuery(tenantSvc)
	provisioningSvc.SetMetrics(otelMetrics)

	maintenanceSvc := service.NewMaintenanceService(store, lifecycle, creds, cfg.Jobs.MigrateParallelism)
	maintenanceSvc.SetTenantQuery(tenantSvc)
	maintenanceSvc.SetMetrics(otelMetrics)

	if queue != nil {
		provisioningSvc.SetEventQueue(queue)
		cancelWatch, err := tenantSvc.WatchActivations(ctx, queue)
		if err != nil {
			return fmt.Errorf("watch activations: %w", err)
		}
		defer cancelWatch()
	}

	// --- Jobs ---

	scheduler, err := newScheduler(ctx, cfg, queue)
	if err != nil {
		return err
	}
	provisioningSvc.SetScheduler(scheduler)
	coordinator := service.NewJobCoordinator(store, locker, scheduler, provisioningSvc, maintenanceSvc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewJobs(registry)

	if err := scheduler.Start(ctx, jobMetrics.Instrument(coordinator.Handle)); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	// --- HTTP ---

	handlers := &tfhttp.Handlers{
		Provisioning: provisioningSvc,
		Progress:     progressSvc,
		Tenants:      tenantSvc,
		Jobs:         coordinator,
		Checks:       healthChecks(store, queue, redisClient),
		Version:      version,
	}
	if cfg.Server.CreateRatePerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.CreateRatePerMinute, cfg.Server.CreateBurst)
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		handlers.CreateLimiter = limiter.Handler
	}
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled without api keys, tenant and job endpoints will refuse every request")
	}
	handlers.Admin = middleware.Auth(cfg.Auth.APIKeys, cfg.Auth.Enabled)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(tfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(tfhttp.SecurityHeaders)
	r.Use(tfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tfotel.RouteNames)
	tfhttp.MountRoutes(r, handlers, hub.HandleWS, jobMetrics.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           tfotel.HTTPMiddleware(cfg.OTEL.ServiceName)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /ws connections stay open for the whole provisioning.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCache builds the tiered tenant cache. Without NATS it is L1 only.
func newCache(ctx context.Context, cfg *config.Config, queue *tfnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	var l2 cache.Cache
	if queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.NATS.CacheBucket, cfg.Cache.L2TTL)
		if err != nil {
			slog.Warn("l2 cache unavailable, using l1 only", "bucket", cfg.NATS.CacheBucket, "error", err)
		} else {
			l2 = natskv.New(kv)
		}
	}
	return tiered.New(l1, l2, cfg.Cache.L2TTL), l1.Close, nil
}

func newScheduler(ctx context.Context, cfg *config.Config, queue *tfnats.Queue) (jobqueue.Scheduler, error) {
	workers := map[job.Queue]int{
		job.QueueCritical: cfg.Jobs.CriticalWorkers,
		job.QueueLow:      cfg.Jobs.LowWorkers,
	}
	if cfg.Jobs.Backend == "memory" {
		slog.Warn("in-process job backend, jobs do not survive a restart")
		return jobmem.New(workers), nil
	}
	if queue == nil {
		return nil, errors.New("nats job backend requires nats.url")
	}
	s, err := tfnats.NewScheduler(ctx, queue.JetStream(), cfg.NATS.JobsStream, workers)
	if err != nil {
		return nil, fmt.Errorf("job scheduler: %w", err)
	}
	return s, nil
}

func newNotifiers(cfg *config.Config) []notifier.Notifier {
	var out []notifier.Notifier
	if cfg.SMTP.Host != "" {
		out = append(out, email.NewNotifier(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}, resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).Named("email")))
	} else {
		slog.Warn("smtp not configured, welcome emails are disabled")
	}
	if cfg.Slack.WebhookURL != "" {
		out = append(out, slack.NewNotifier(cfg.Slack.WebhookURL,
			resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).Named("slack")))
	}
	return out
}

// originHosts turns the configured CORS origin into the host pattern the
// websocket hub matches Origin headers against.
func originHosts(corsOrigin string) []string {
	if corsOrigin == "" {
		return nil
	}
	u, err := url.Parse(corsOrigin)
	if err != nil || u.Host == "" {
		return []string{corsOrigin}
	}
	return []string{u.Host}
}

func healthChecks(store *postgres.Store, queue *tfnats.Queue, rdb *redis.Client) map[string]tfhttp.Check {
	checks := map[string]tfhttp.Check{
		"postgres": store.Ping,
	}
	if queue != nil {
		checks["nats"] = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
