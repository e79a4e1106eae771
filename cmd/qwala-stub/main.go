package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwamber/qwala-go/internal/config"
	"github.com/qwamber/qwala-go/internal/handler"
	"github.com/qwamber/qwala-go/internal/logger"
	"github.com/qwamber/qwala-go/internal/middleware"
	"github.com/qwamber/qwala-go/internal/repository"
	"github.com/qwamber/qwala-go/internal/service"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.String("config", ".env", "path to .env config file")
	pflag.Parse()

	// Загрузка конфига
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(gin.ReleaseMode)

	// Хранилище в памяти: заглушка ничего не сохраняет между запусками
	linkRepo := repository.NewLinkRepository()
	viewRepo := repository.NewViewRepository()
	linkService := service.NewLinkService(linkRepo, viewRepo, logger)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Stub.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.Stub.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(linkService, rateLimiter, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Stub.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Stub server starting", zap.String("port", cfg.Stub.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server exited")
}
