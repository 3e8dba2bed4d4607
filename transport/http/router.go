package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/metrics"
	"github.com/layer-3/assetgate/service"
)

// RouterConfig carries what the router serves.
type RouterConfig struct {
	Auth    *service.AuthService
	KYC     *service.KYCService
	Guard   *service.Guard
	Limiter *IPRateLimiter
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Health reports readiness of the backing stores when set.
	Health func(ctx context.Context) error
	Logger *logger.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	// Create handlers
	handlers := NewAuthHandlers(cfg.Auth, cfg.KYC, cfg.Logger)

	// Auth routes
	auth := router.Group("/auth")
	if cfg.Limiter != nil {
		auth.Use(RateLimit(cfg.Limiter))
	}
	{
		auth.POST("/wallet", handlers.Wallet)
		auth.POST("/email", handlers.Email)
		auth.POST("/register", handlers.Register)
		auth.POST("/profile", handlers.Profile)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.POST("/email/verify", handlers.VerifyEmail)
		auth.POST("/email/resend", handlers.ResendVerification)
		auth.POST("/password/reset", handlers.ResetPassword)
		auth.POST("/password/confirm", handlers.ConfirmPasswordReset)
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/persona", handlers.PersonaWebhook)
		webhooks.POST("/didit", handlers.DiditWebhook)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(handlers.AuthMiddleware(cfg.Guard))
	{
		api.GET("/me", handlers.Me)
		api.POST("/password", handlers.ChangePassword)
		api.PUT("/users/:id/role", handlers.RequirePermission(cfg.Guard, core.PermUsersManageRoles), handlers.AssignRole)
		api.GET("/admin/ping", handlers.RequireRole(cfg.Guard, core.RoleAdmin), handlers.AdminPing)
		api.POST("/kyc/didit/:session/sync", handlers.RequirePermission(cfg.Guard, core.PermKYCReview), handlers.SyncDidit)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Gatherer)))
	}
	router.GET("/healthz", func(c *gin.Context) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
