package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "rollback-migrations":
		return runAdminRollbackMigrations(args[1:])
	case "migrate-tenants":
		return runAdminMigrateTenants(args[1:])
	case "rollback-tenant":
		return runAdminRollbackTenant(args[1:])
	case "audit":
		return runAdminAudit(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: tenantforge admin <command> [options]

Commands:
  migrate               Apply pending control-plane migrations
  rollback-migrations   Roll back control-plane migrations
  migrate-tenants       Migrate every active tenant database now
  rollback-tenant       Undo a failed provisioning (drop database, role, tenant, admin)
  audit                 List audit events of a tenant
  help                  Show this help message

Examples:
  tenantforge admin migrate
  tenantforge admin rollback-migrations --steps 1
  tenantforge admin migrate-tenants --parallel 8
  tenantforge admin rollback-tenant --tenant 3f2c...
  tenantforge admin audit --tenant 3f2c... --limit 20
`)
}

func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// Admin commands are short-lived; synchronous logging avoids a flush.
	cfg.Logging.Async = false
	log, _ := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return cfg, nil
}

// adminDeps holds the control-plane and tenant cluster handles for one command.
type adminDeps struct {
	store       *postgres.Store
	maintenance *service.MaintenanceService
	cleanup     func()
}

func loadAdminDeps(ctx context.Context, cfg *config.Config, parallelism int) (*adminDeps, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	cluster, err := postgres.NewCluster(ctx, cfg.TenantTemplate(), cfg.TenantDB)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to tenant cluster: %w", err)
	}

	store := postgres.NewStore(pool)
	lifecycle := postgres.NewLifecycle(cluster, cfg.TenantDB.PingTimeout)
	creds := postgres.NewCredentialIssuer(cluster)
	return &adminDeps{
		store:       store,
		maintenance: service.NewMaintenanceService(store, lifecycle, creds, parallelism),
		cleanup: func() {
			cluster.Close()
			pool.Close()
		},
	}, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Control plane at version %d\n", v)
	return nil
}

func runAdminRollbackMigrations(args []string) error {
	fs := flag.NewFlagSet("rollback-migrations", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *steps)
	return nil
}

func runAdminMigrateTenants(args []string) error {
	fs := flag.NewFlagSet("migrate-tenants", flag.ContinueOnError)
	parallel := fs.Int("parallel", 0, "tenants migrated concurrently (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	if *parallel < 1 {
		*parallel = cfg.Jobs.MigrateParallelism
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, cfg, *parallel)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if err := deps.maintenance.MigrateAll(ctx); err != nil {
		return fmt.Errorf("migrate tenants: %w", err)
	}
	fmt.Fprintln(os.Stderr, "All active tenants migrated")
	return nil
}

func runAdminRollbackTenant(args []string) error {
	fs := flag.NewFlagSet("rollback-tenant", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, cfg, 1)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if err := deps.maintenance.Rollback(ctx, *tenantID); err != nil {
		return fmt.Errorf("rollback tenant: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tenant %s rolled back\n", *tenantID)
	return nil
}

func runAdminAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, cfg, 1)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	events, err := deps.store.ListAudit(ctx, *tenantID, *limit)
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No audit events found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OCCURRED_AT\tTYPE\tRISK\tMETADATA")
	for i := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			events[i].OccurredAt.Format("2006-01-02 15:04:05"), events[i].Type,
			strconv.Itoa(events[i].RiskScore), events[i].Metadata)
	}
	return w.Flush()
}
