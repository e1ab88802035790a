package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/cache"
	"github.com/healthguard/surveillance/internal/config"
	"github.com/healthguard/surveillance/internal/email"
	"github.com/healthguard/surveillance/internal/httpapi"
	"github.com/healthguard/surveillance/internal/httpapi/router"
	"github.com/healthguard/surveillance/internal/monitor"
	"github.com/healthguard/surveillance/internal/observability/logger"
	"github.com/healthguard/surveillance/internal/push"
	"github.com/healthguard/surveillance/internal/rate"
	"github.com/healthguard/surveillance/internal/security/password"
	"github.com/healthguard/surveillance/internal/store/core"
	"github.com/healthguard/surveillance/internal/store/pg"
	"github.com/healthguard/surveillance/internal/token"
	migrations "github.com/healthguard/surveillance/migrations/postgres"

	rdb "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "healthguard",
		Short: "HealthGuard Surveillance admin backend",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("HEALTHGUARD_CONFIG"), "path to YAML config")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back the database schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(configPath, action)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin user and a demo account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(configPath)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, seedCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(configPath string) (*config.Config, *pg.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "healthguard",
		Version:     version,
	})

	store, err := pg.New(context.Background(), cfg.Storage.DSN, pg.Options{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MinIdleConns:    cfg.Storage.Postgres.MinIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runServe(configPath string) error {
	cfg, store, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer store.Close()
	log := logger.Named("main")

	// Cache tiers. The remote tier is optional; the facade degrades to
	// local-only when redis is not configured.
	var remote cache.Tier
	var redisClient *rdb.Client
	if cfg.Cache.Kind == "redis" {
		redisClient = rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		tier, err := cache.NewRedisTier(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			log.Warn("redis tier unavailable, running local-only", zap.Error(err))
		} else {
			remote = tier
		}
	}
	facade := cache.New(remote, config.Duration(cfg.Cache.DefaultTTL, 0))

	collector := monitor.NewCollector(cfg.Monitoring.BufferSize)

	health := monitor.NewHealthChecker()
	health.Register("database", monitor.DatabaseProbe(store))
	health.Register("cache", monitor.CacheProbe(facade))
	if cfg.Monitoring.ExternalURL != "" {
		health.Register("external", monitor.ExternalProbe(cfg.Monitoring.ExternalURL, nil))
	}

	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Window, 0)
		if redisClient != nil {
			limiter = rate.NewRedisLimiter(redisClient, "rl", cfg.Rate.MaxRequests, window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, window)
		}
	}

	c := &app.Container{
		Cfg:      cfg,
		Accounts: store,
		Users:    store,
		Flags:    store,
		Activity: store,
		Tokens: token.NewService(cfg.Auth.Secret,
			config.Duration(cfg.Auth.AccessTTL, 0),
			config.Duration(cfg.Auth.RenewalTTL, 0)),
		Cache:     facade,
		Collector: collector,
		Health:    health,
		Push:      push.NewRegistry(),
		Notifier: email.NewNotifier(email.Config{
			Enabled:  cfg.Email.Enabled,
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}),
		Limiter: limiter,
	}

	srv := httpapi.NewServer(cfg.Server.Addr, router.New(c),
		config.Duration(cfg.Server.ReadTimeout, 0),
		config.Duration(cfg.Server.WriteTimeout, 0))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampler := monitor.NewSampler(ctx, collector, config.Duration(cfg.Monitoring.SampleInterval, 0))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		sampler.Run(gctx)
		return nil
	})

	log.Info("started", zap.String("env", cfg.App.Env), zap.String("addr", cfg.Server.Addr))
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped cleanly")
	return nil
}

func runMigrate(configPath, action string) error {
	_, store, err := setup(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	switch action {
	case "up":
		return store.Migrate(ctx, migrations.FS)
	case "down":
		return store.Rollback(ctx, migrations.FS)
	default:
		return fmt.Errorf("unknown action %q, use up or down", action)
	}
}

// runSeed provisions the bootstrap admin (alice) plus a demo client
// account so a fresh install is immediately usable. Idempotent-ish:
// existing rows are reported, not overwritten.
func runSeed(configPath string) error {
	_, store, err := setup(configPath)
	if err != nil {
		return err
	}
	defer store.Close()
	log := logger.Named("seed")
	ctx := context.Background()

	hash, err := password.Hash(password.Default, "s3cret")
	if err != nil {
		return err
	}
	admin := &core.User{
		Username:     "alice",
		Email:        "alice@healthguard.local",
		PasswordHash: hash,
		Role:         core.RoleAdmin,
		Active:       true,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		log.Warn("admin user not created", zap.Error(err))
	} else {
		log.Info("admin user created", zap.String("username", admin.Username))
	}

	demo := &core.ClientAccount{
		CompanyName:   "Acme Clinics",
		Email:         "ops@acme.test",
		Phone:         "1",
		ContactPerson: "Dana",
		Tier:          core.TierProfessional,
		BillingCycle:  core.CycleMonthly,
		MaxUsers:      10,
	}
	meta := core.ActivityMeta{IPAddress: "127.0.0.1", UserAgent: "healthguard-seed"}
	if err := store.CreateAccount(ctx, demo, meta); err != nil {
		log.Warn("demo account not created", zap.Error(err))
	} else {
		log.Info("demo account created", zap.String("id", demo.ID))
	}

	// Every configured gate starts enabled so a fresh install serves
	// all modules.
	for _, slug := range config.DefaultGates() {
		if err := store.SetFeature(ctx, slug, true); err != nil {
			return err
		}
	}
	log.Info("feature flags seeded")
	return nil
}
