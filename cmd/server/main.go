package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gatekeylabs/gatekey/config"
	appmodel "github.com/gatekeylabs/gatekey/internal/app/model"
	apprepository "github.com/gatekeylabs/gatekey/internal/app/repository"
	appserver "github.com/gatekeylabs/gatekey/internal/app/server"
	appservice "github.com/gatekeylabs/gatekey/internal/app/service"
	"github.com/gatekeylabs/gatekey/internal/infra/logger"
	infraNATS "github.com/gatekeylabs/gatekey/internal/infra/nats"
	infraPostgres "github.com/gatekeylabs/gatekey/internal/infra/postgres"
	infraPrometheus "github.com/gatekeylabs/gatekey/internal/infra/prometheus"
	infraRedis "github.com/gatekeylabs/gatekey/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_user", cfg.Postgres.User),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Int("cooldown_seconds", cfg.Access.CooldownSeconds),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.AccessLink{},
		&appmodel.AccessAttempt{},
		&appmodel.NotificationProvider{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB, pool)
	attemptRepo := apprepository.NewAttemptRepository(gormDB)
	providerRepo := apprepository.NewProviderRepository(gormDB)

	codeFilter, err := appservice.NewCodeFilter(ctx, linkRepo)
	if err != nil {
		log.Fatal("Failed to seed code filter", zap.Error(err))
	}

	arbiter := appservice.NewGrantArbiter(linkRepo, codeFilter, cfg.Access.Cooldown(), log)
	recorder := appservice.NewAttemptPublisher(js)

	consumer := appservice.NewAttemptConsumer(js, log, attemptRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start attempt consumer", zap.Error(err))
	}

	dispatcher := appservice.NewDispatcher(appservice.DispatcherConfig{
		GateWebhookURL:   cfg.Gate.WebhookURL,
		GateWebhookToken: cfg.Gate.WebhookToken,
		GateTimeout:      cfg.Gate.Timeout(),
		GateRetries:      cfg.Gate.RetryAttempts,
		GateOpenSeconds:  cfg.Gate.OpenDurationSec,
		NotifyTimeout:    cfg.Access.NotifyTimeout(),
	}, providerRepo, log)

	sweeper := appservice.NewStatusSweeper(log, linkRepo, cfg.Access.SweepInterval())
	sweeper.Start()
	defer sweeper.Stop()

	linkService := appservice.NewLinkService(linkRepo, providerRepo, codeFilter, appservice.LinkServiceConfig{
		CodeLength:        cfg.Access.CodeLength,
		DefaultExpiration: time.Duration(cfg.Access.DefaultExpirationHours) * time.Hour,
	}, log)
	providerService := appservice.NewProviderService(providerRepo, log)

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Postgres:  pool,
		Redis:     redisClient,
		NATS:      natsConn,
		JetStream: js,

		Links:     linkRepo,
		Attempts:  attemptRepo,
		Providers: providerRepo,

		Arbiter:         arbiter,
		Recorder:        recorder,
		Dispatcher:      dispatcher,
		LinkService:     linkService,
		ProviderService: providerService,

		AccessRateLimit: cfg.Access.RateLimitPerMinute,
	})

	if err := server.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
