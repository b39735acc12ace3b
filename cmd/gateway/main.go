package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/services"
	httphandlers "collabgate/internal/handlers/http"
	"collabgate/internal/infrastructure/distributed"
	"collabgate/internal/infrastructure/gateway"
	"collabgate/internal/infrastructure/middleware"
	"collabgate/internal/infrastructure/monitoring"
	repositories "collabgate/internal/infrastructure/repositories"
	"collabgate/pkg/config"
	"collabgate/pkg/logger"
	"collabgate/pkg/tracing"
	"collabgate/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/collabgate/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "collabgate",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, zapLogger)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories
	permRepo := repoFactory.CreatePermissionRepository()
	docStore := repoFactory.CreateDocumentStore()
	policyRepo := repoFactory.CreatePolicyRepository()
	sessionRepo := repoFactory.CreateSessionRepository()

	// Initialize services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	permissionService := services.NewPermissionService(permRepo, cfg.Permissions.CacheTTL)
	policyService := services.NewPolicyService(policyRepo, log)
	sessionService := services.NewSessionService(sessionRepo, log)
	defer sessionService.Close()

	// Initialize monitoring
	collector := monitoring.NewCollector(prometheus.DefaultRegisterer)

	// Initialize the room registry and WebSocket server
	registry := gateway.NewRegistry(
		permissionService,
		policyService,
		sessionService,
		docStore,
		collector,
		log,
	)
	wsServer := gateway.NewServer(registry, authService, policyService, cfg, log)

	// When several gateway instances share a Redis, propagate policy
	// flips and admin disconnects between them.
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	var peerDisconnects httphandlers.SessionDisconnector
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		bus := distributed.NewEventBus(redisClient, utils.GenerateInstanceID(), log)
		policyService.Subscribe(bus)
		peerDisconnects = bus
		go func() {
			if err := bus.Subscribe(busCtx, func(ev *distributed.Event) error {
				switch ev.Type {
				case distributed.EventPolicyChanged:
					var policy domain.CollaborationPolicy
					if err := json.Unmarshal(ev.Payload, &policy); err != nil {
						return err
					}
					registry.PolicyChanged(&policy)
				case distributed.EventSessionDisconnect:
					registry.DisconnectSession(ev.SessionID)
				}
				return nil
			}); err != nil && busCtx.Err() == nil {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
		defer bus.Close()
	}

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL)
	adminHandler := httphandlers.NewAdminHandler(policyService, sessionRepo, registry, peerDisconnects)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.RequestLoggerMiddleware(zapLogger))
	router.Use(middleware.ErrorHandlerMiddleware(zapLogger))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Global HTTP rate limiting (if enabled)
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// WebSocket endpoint
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	// Setup auth routes (public, development token issuance)
	authHandler.SetupRoutes(router)

	// Admin routes require authentication plus the admin role
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService), middleware.AdminMiddleware())
	adminHandler.SetupRoutes(api)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint on a separate port
	var metricsSrv *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler: metricsMux,
		}
		go func() {
			log.Infof("Prometheus metrics listening on :%d", cfg.Monitoring.PrometheusPort)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting collaboration gateway on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down collaboration gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error shutting down metrics server", "error", err)
		}
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Collaboration gateway stopped")
}
