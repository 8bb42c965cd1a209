// Package bootstrap wires configuration into the provider clients, the
// orchestrator and the tenant service. Both the HTTP server and the
// operator CLI start from here so they share locks and the run journal.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/tenant-domains/internal/api"
	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/emaildomain"
	"github.com/ignite/tenant-domains/internal/pkg/distlock"
	"github.com/ignite/tenant-domains/internal/pkg/logger"
	"github.com/ignite/tenant-domains/internal/provisioning"
	"github.com/ignite/tenant-domains/internal/registrar"
	"github.com/ignite/tenant-domains/internal/repository/postgres"
	"github.com/ignite/tenant-domains/internal/service/tenant"
)

// Registrar is a DNS registrar backend.
type Registrar interface {
	provisioning.DNSRecordClient
	IsConfigured() bool
}

// App holds the wired components and the connections they use.
type App struct {
	Config       *config.Config
	Registrar    Registrar
	Email        *emaildomain.Client
	Orchestrator *provisioning.Orchestrator
	Service      *tenant.Service
	DB           *sql.DB
	Redis        *redis.Client
	LockBackend  string
}

// NewRegistrar builds the registrar client selected by cfg.Provider.
func NewRegistrar(ctx context.Context, cfg config.RegistrarConfig) (Registrar, error) {
	switch cfg.Provider {
	case "route53":
		return registrar.NewRoute53Client(ctx, cfg)
	case "rest", "":
		return registrar.NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown registrar provider %q", cfg.Provider)
	}
}

// New wires the application. The database and Redis are optional; when
// they are unreachable the app runs without a journal and with whatever
// lock backend is left.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logging.Level != "" {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}

	reg, err := NewRegistrar(ctx, cfg.Registrar)
	if err != nil {
		return nil, err
	}
	email := emaildomain.NewClient(cfg.EmailProvider)

	if !reg.IsConfigured() {
		logger.Warn("registrar credentials missing; provisioning runs will report configuration errors", "provider", cfg.Registrar.Provider)
	}
	if !email.IsConfigured() {
		logger.Warn("email provider API key missing; provisioning runs will report configuration errors")
	}

	app := &App{
		Config:    cfg,
		Registrar: reg,
		Email:     email,
	}
	app.DB = openDatabase(ctx, cfg.Database.URL)
	app.Redis = openRedis(ctx, cfg.Redis.URL)

	var journal tenant.Repository
	if app.DB != nil {
		journal = postgres.NewRunRepo(app.DB)
	}

	switch {
	case app.Redis != nil:
		app.LockBackend = "redis"
	case app.DB != nil:
		app.LockBackend = "postgres"
	default:
		app.LockBackend = "local"
		logger.Warn("no Redis or database configured; per-tenant locks only cover this process")
	}
	locks := distlock.NewLocker(app.Redis, app.DB, cfg.Lock.TTL())

	app.Orchestrator = provisioning.New(reg, email, provisioning.OptionsFromConfig(cfg.Provisioning))
	app.Service = tenant.NewService(app.Orchestrator, locks, journal)
	return app, nil
}

// Status summarizes the wiring for the status endpoint.
func (a *App) Status() api.ProvisioningStatus {
	opts := a.Orchestrator.Options()
	return api.ProvisioningStatus{
		BaseDomain:              opts.BaseDomain,
		Region:                  opts.Region,
		RegistrarProvider:       a.Config.Registrar.Provider,
		RegistrarConfigured:     a.Registrar.IsConfigured(),
		EmailProviderConfigured: a.Email.IsConfigured(),
		JournalEnabled:          a.Service.HasJournal(),
		LockBackend:             a.LockBackend,
	}
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

// openDatabase connects to Postgres. Failures are logged and yield nil.
func openDatabase(ctx context.Context, dbURL string) *sql.DB {
	if dbURL == "" {
		logger.Info("database not configured; run journal disabled")
		return nil
	}

	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Warn("failed to open database", "error", err)
		return nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database ping failed; run journal disabled", "error", err)
		db.Close()
		return nil
	}
	logger.Info("database connected")
	return db
}

// openRedis connects to Redis. Failures are logged and yield nil.
func openRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}

	var client *redis.Client
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed; falling back to other lock backends", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected (distributed locking enabled)")
	return client
}
