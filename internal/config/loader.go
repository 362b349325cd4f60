package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tenantforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TENANTFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "TENANTFORGE_CORS_ORIGIN")
	setInt(&cfg.Server.CreateRatePerMinute, "TENANTFORGE_CREATE_RATE_PER_MINUTE")
	setInt(&cfg.Server.CreateBurst, "TENANTFORGE_CREATE_BURST")
	setBool(&cfg.Auth.Enabled, "TENANTFORGE_AUTH_ENABLED")
	setStrings(&cfg.Auth.APIKeys, "TENANTFORGE_AUTH_API_KEYS")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TENANTFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TENANTFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TENANTFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TENANTFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TENANTFORGE_PG_HEALTH_CHECK")

	// Tenant databases
	setString(&cfg.TenantDB.Template, "TENANTFORGE_TENANT_DB_TEMPLATE")
	setString(&cfg.TenantDB.MaintenanceDatabase, "TENANTFORGE_TENANT_DB_MAINTENANCE")
	setDuration(&cfg.TenantDB.PingTimeout, "TENANTFORGE_TENANT_DB_PING_TIMEOUT")
	setInt(&cfg.TenantDB.MaxConcurrentDDL, "TENANTFORGE_TENANT_DB_MAX_CONCURRENT_DDL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.JobsStream, "TENANTFORGE_NATS_JOBS_STREAM")
	setString(&cfg.NATS.CacheBucket, "TENANTFORGE_NATS_CACHE_BUCKET")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TENANTFORGE_REDIS_DB")

	// SMTP
	setString(&cfg.SMTP.Host, "TENANTFORGE_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "TENANTFORGE_SMTP_PORT")
	setString(&cfg.SMTP.From, "TENANTFORGE_SMTP_FROM")
	setString(&cfg.SMTP.Username, "TENANTFORGE_SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "TENANTFORGE_SMTP_PASSWORD")
	setString(&cfg.Slack.WebhookURL, "TENANTFORGE_SLACK_WEBHOOK_URL")

	setString(&cfg.Logging.Level, "TENANTFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TENANTFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TENANTFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TENANTFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TENANTFORGE_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TENANTFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L2TTL, "TENANTFORGE_CACHE_L2_TTL")

	// Jobs
	setString(&cfg.Jobs.Backend, "TENANTFORGE_JOBS_BACKEND")
	setInt(&cfg.Jobs.CriticalWorkers, "TENANTFORGE_JOBS_CRITICAL_WORKERS")
	setInt(&cfg.Jobs.LowWorkers, "TENANTFORGE_JOBS_LOW_WORKERS")
	setInt(&cfg.Jobs.MigrateParallelism, "TENANTFORGE_JOBS_MIGRATE_PARALLELISM")

	// Provisioning
	setString(&cfg.Provisioning.Mode, "TENANTFORGE_PROVISIONING_MODE")
	setString(&cfg.Provisioning.BaseDomain, "TENANTFORGE_BASE_DOMAIN")
	setString(&cfg.Provisioning.FallbackAdminPassword, "TENANTFORGE_FALLBACK_ADMIN_PASSWORD")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "TENANTFORGE_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.CreateRatePerMinute > 0 && cfg.Server.CreateBurst < 1 {
		return errors.New("server.create_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.TenantDB.MaintenanceDatabase == "" {
		return errors.New("tenant_db.maintenance_database is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Jobs.Backend {
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the nats job backend")
		}
	case "memory":
	default:
		return fmt.Errorf("jobs.backend %q must be nats or memory", cfg.Jobs.Backend)
	}
	if cfg.Jobs.CriticalWorkers < 1 || cfg.Jobs.LowWorkers < 1 {
		return errors.New("jobs worker counts must be >= 1")
	}
	switch cfg.Provisioning.Mode {
	case "inline", "deferred":
	default:
		return fmt.Errorf("provisioning.mode %q must be inline or deferred", cfg.Provisioning.Mode)
	}
	if cfg.Provisioning.BaseDomain == "" {
		return errors.New("provisioning.base_domain is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated value, dropping empty items.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
