package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/handlers"
	"tradecompass-core/internal/pkg/logger"
	"tradecompass-core/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger.Info("Starting TradeCompass workflow core",
		"environment", cfg.Environment,
		"port", cfg.HTTP.Port)

	// A failed Redis connection is not fatal: the machine runs memory-only
	// and loses nothing but cross-restart durability.
	var cacheService *services.CacheService
	var sessionService *services.SessionService
	checkers := map[string]handlers.HealthChecker{}

	redisClient, err := services.NewRedisClient(cfg.Redis, appLogger)
	if err != nil {
		appLogger.WithError(err).Warn("Persistence backend unavailable, running in degraded memory-only mode")
	} else {
		cacheService = services.NewCacheService(redisClient, cfg.Cache, appLogger)
		sessionService = services.NewSessionService(redisClient, appLogger)
		checkers["cache"] = cacheService
	}

	var registry services.EntityLookup
	if cfg.Registry.BaseURL != "" {
		registryService, err := services.NewRegistryService(cfg.Registry, appLogger)
		if err != nil {
			appLogger.WithError(err).Warn("Registry client unavailable, supplier lookups disabled")
		} else {
			registry = registryService
			checkers["registry"] = registryService
		}
	}

	machine := services.NewWorkflowMachine(cacheStoreOrNil(cacheService), sessionStoreOrNil(sessionService), registry, cfg.Workflow, appLogger)

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), cfg.Workflow.BootstrapTimeout)
	machine.InitializeSession(bootstrapCtx, os.Getenv("WORKFLOW_OWNER_ID"))
	cancelBootstrap()

	analysisService := services.NewAnalysisService(appLogger)
	handler := handlers.NewWorkflowHandler(machine, analysisService, appLogger)
	router := handlers.SetupRouter(handler, appLogger, checkers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Error("HTTP server failed")
		}
	}()

	appLogger.Info("TradeCompass workflow core started", "addr", server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("HTTP server shutdown failed")
	}

	// Flush pending debounced writes before the backend goes away.
	machine.Close()

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			appLogger.WithError(err).Error("Cache service shutdown failed")
		}
	}

	appLogger.Info("Shutdown complete")
}

// cacheStoreOrNil keeps the machine's nil checks simple: a typed nil inside a
// non-nil interface would defeat them.
func cacheStoreOrNil(service *services.CacheService) services.CacheStore {
	if service == nil {
		return nil
	}
	return service
}

func sessionStoreOrNil(service *services.SessionService) services.SessionStore {
	if service == nil {
		return nil
	}
	return service
}
