package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/handler"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/internal/repository"
	"github.com/noah-isme/sortify-api/internal/service"
	"github.com/noah-isme/sortify-api/pkg/cache"
	"github.com/noah-isme/sortify-api/pkg/claimtoken"
	"github.com/noah-isme/sortify-api/pkg/config"
	"github.com/noah-isme/sortify-api/pkg/database"
	"github.com/noah-isme/sortify-api/pkg/events"
	"github.com/noah-isme/sortify-api/pkg/jobs"
	"github.com/noah-isme/sortify-api/pkg/logger"
	"github.com/noah-isme/sortify-api/pkg/storage"
)

// @title Sortify API
// @version 1.0.0
// @description Waste collection requests, smart-bin deposits and token reward settlement.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey BinKey
// @in header
// @name X-Bin-Key

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.URL()); err != nil {
			return err
		}
		logr.Info("migrations applied")
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close() //nolint:errcheck

	publisher, natsConn := newPublisher(cfg, logr)
	if natsConn != nil {
		defer natsConn.Drain() //nolint:errcheck
	}
	dispatcher := events.NewDispatcher(publisher, jobs.QueueConfig{
		Workers:    cfg.NATS.Workers,
		MaxRetries: cfg.NATS.MaxRetries,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logr.Named("events"),
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	app, err := buildApp(ctx, cfg, logr, db, redisClient, dispatcher)
	if err != nil {
		return err
	}

	if natsConn != nil {
		sub, err := events.Subscribe(natsConn, cfg.NATS.SubjectPrefix, models.EventRatesUpdated, logr, app.rates.HandleRatesUpdated)
		if err != nil {
			logr.Warn("rates subscription unavailable", zap.Error(err))
		} else {
			defer sub.Unsubscribe() //nolint:errcheck
		}
	}
	go app.rates.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newPublisher(cfg *config.Config, logr *zap.Logger) (events.Publisher, *nats.Conn) {
	if !cfg.NATS.Enabled {
		return events.NopPublisher{}, nil
	}
	conn, err := events.Connect(cfg.NATS, logr.Named("nats"))
	if err != nil {
		logr.Warn("nats unavailable, events disabled", zap.Error(err))
		return events.NopPublisher{}, nil
	}
	return events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix), conn
}

// application holds the wired services and handlers.
type application struct {
	rates   *service.RateService
	metrics *service.MetricsService
	audit   *repository.AuditRepository

	identity *service.IdentityService
	bins     *service.BinService

	authHandler       *handler.AuthHandler
	collectionHandler *handler.CollectionHandler
	depositHandler    *handler.DepositHandler
	binHandler        *handler.BinHandler
	rateHandler       *handler.RateHandler
	verifierHandler   *handler.VerifierHandler
	accountHandler    *handler.AccountHandler
	metricsHandler    *handler.MetricsHandler
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client, dispatcher *events.Dispatcher) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	auditRepo := repository.NewAuditRepository(db)
	rateRepo := repository.NewRateRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	verifierRepo := repository.NewVerifierRepository(db)
	binRepo := repository.NewBinRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr.Named("cache"))

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.VerifierTTL, logr.Named("cache"), cfg.Cache.Enabled)

	rateSvc := service.NewRateService(rateRepo, dispatcher, auditRepo, logr.Named("rates"), cfg.Rewards.RefreshInterval)
	if err := rateSvc.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load reward rates: %w", err)
	}
	policy, err := service.NewSplitPolicy(cfg.Rewards)
	if err != nil {
		return nil, err
	}
	calculator := service.NewRewardCalculator(rateSvc, policy)

	verifierSvc := service.NewVerifierService(verifierRepo, cacheSvc, cfg.Cache.VerifierTTL, auditRepo, logr.Named("verifiers"))

	claims := claimtoken.NewSigner(cfg.ClaimTokens.Secret, cfg.ClaimTokens.MaxAge)

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init evidence storage: %w", err)
	}
	evidenceSigner := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	collectionSvc := service.NewCollectionService(collectionRepo, calculator, verifierSvc, validate, logr.Named("collections"),
		service.WithCollectionObservers(auditRepo, dispatcher, metrics),
		service.WithVerificationRecorder(verifierSvc),
	)
	depositSvc := service.NewDepositService(depositRepo, claims, calculator, verifierSvc, validate, logr.Named("deposits"),
		service.WithDepositObservers(auditRepo, dispatcher, metrics, verifierSvc),
		service.WithDepositEvidence(service.EvidenceOptions{
			Store:        evidenceStore,
			Signer:       evidenceSigner,
			BaseURL:      strings.TrimRight(cfg.APIPrefix, "/") + "/evidence",
			MaxBytes:     cfg.Evidence.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Evidence.AllowedMIMEs,
		}),
	)
	identitySvc := service.NewIdentityService(sessionRepo, validate, auditRepo, logr.Named("identity"), service.IdentityConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		NonceTTL:          cfg.JWT.NonceTTL,
		AdminAccounts:     cfg.Admin.Accounts,
	})
	binSvc := service.NewBinService(binRepo, claims, validate, logr.Named("bins"))
	accountSvc := service.NewAccountService(ledgerRepo, collectionRepo, verifierSvc, logr.Named("accounts"))

	readiness := []handler.ReadinessCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }},
	}

	return &application{
		rates:    rateSvc,
		metrics:  metrics,
		audit:    auditRepo,
		identity: identitySvc,
		bins:     binSvc,

		authHandler:       handler.NewAuthHandler(identitySvc),
		collectionHandler: handler.NewCollectionHandler(collectionSvc),
		depositHandler:    handler.NewDepositHandler(depositSvc),
		binHandler:        handler.NewBinHandler(binSvc),
		rateHandler:       handler.NewRateHandler(rateSvc),
		verifierHandler:   handler.NewVerifierHandler(verifierSvc),
		accountHandler:    handler.NewAccountHandler(accountSvc, collectionSvc, depositSvc),
		metricsHandler:    handler.NewMetricsHandler(metrics, readiness...),
	}, nil
}
