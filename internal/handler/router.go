package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qwamber/qwala-go/internal/middleware"
	"github.com/qwamber/qwala-go/internal/service"
	"go.uber.org/zap"
)

// NewRouter собирает gin-роутер с маршрутами API. rateLimiter может быть nil.
func NewRouter(
	linkService service.LinkService,
	rateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
		)
	})

	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(linkService, logger)

	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)
		api.POST("/shorten", linkHandler.Shorten)
		api.GET("/lengthen", linkHandler.Lengthen)
		api.GET("/statistics", linkHandler.Statistics)
	}

	return router
}

// HealthCheck отвечает, что сервер жив
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
