// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"athlos-billing/internal/config"
	"athlos-billing/internal/db"
	billingHandler "athlos-billing/internal/handlers/billing"
	"athlos-billing/internal/middleware"
	"athlos-billing/internal/payment"
	"athlos-billing/internal/pkg/lock"
	"athlos-billing/internal/repository/postgres"
	auditUsecase "athlos-billing/internal/service/audit"
	notifyUsecase "athlos-billing/internal/service/notification"
	"athlos-billing/internal/service/renewal"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server
	pool       *pgxpool.Pool
	scheduler  *renewal.Scheduler
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool

	// ----- Distributed lock backend -----
	// Redis is optional. Without it the scan lock and processing guards fall
	// back to process-local exclusion, which is correct for single-instance
	// deployments.
	var locker lock.Locker
	if s.cfg.RedisAddr != "" {
		redisClient, err := db.NewRedisClient(db.RedisConfig{
			Addresses: []string{s.cfg.RedisAddr},
			Password:  s.cfg.RedisPass,
			PoolSize:  10,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		locker = lock.NewRedisLocker(redisClient)
		logger.Info("using redis for scan locks", zap.String("addr", s.cfg.RedisAddr))
	} else {
		locker = lock.NewMemoryLocker()
		logger.Warn("no REDIS_ADDR configured, scan locks are process-local only")
	}

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	attemptRepo := postgres.NewPaymentAttemptRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	renewalStore := postgres.NewRenewalStore(dbWrapper, subscriptionRepo, attemptRepo)

	// ----- Payment adapters -----
	var adapters []payment.Adapter
	if s.cfg.StripeAPIKey != "" {
		adapters = append(adapters, payment.NewStripeAdapter(s.cfg.StripeAPIKey))
	}
	if s.cfg.MockProviderEnabled {
		adapters = append(adapters, payment.NewMockAdapter("mock"))
	}
	registry := payment.NewRegistry(adapters...)
	logger.Info("payment adapters registered", zap.Strings("providers", registry.Providers()))

	// ----- Services -----
	notifService := notifyUsecase.NewService(notifyRepo, logger)
	auditService := auditUsecase.NewService(auditRepo, logger)

	engine := renewal.NewEngine(renewalStore, notifService, auditService, s.cfg.MaxRetry, s.cfg.GracePeriodDays, logger)
	executor := renewal.NewChargeExecutor(registry, s.cfg.AdapterTimeout, logger)
	scanner := renewal.NewScanner(renewalStore, executor, engine, locker, renewal.ScanConfig{
		LookaheadWindow: s.cfg.LookaheadWindow,
		ChunkSize:       s.cfg.DueChunkSize,
		GuardTTL:        s.cfg.GuardTTL,
		ScanLockTTL:     s.cfg.ScanLockTTL,
	}, logger)

	s.scheduler = renewal.NewScheduler(scanner, logger)
	s.scheduler.Start(s.cfg.ScanInterval)

	// ----- Handlers -----
	renewalHandlerInst := billingHandler.NewRenewalHandler(scanner, s.scheduler, subscriptionRepo, attemptRepo, notifyRepo, auditService)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.OperatorJWTSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		RenewalHandler: renewalHandlerInst,
		AuthMiddleware: authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down in dependency order: stop taking requests, stop
// the scan loop, then release the database pool.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && s.logger != nil {
			s.logger.Error("http shutdown failed", zap.Error(err))
		}
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
