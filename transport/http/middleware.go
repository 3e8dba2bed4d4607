package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/service"
)

// AuthMiddleware creates middleware that validates access tokens and
// attaches the identity to the request context.
func (h *AuthHandlers) AuthMiddleware(guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := guard.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects identities below role. It must run after AuthMiddleware.
func (h *AuthHandlers) RequireRole(guard *service.Guard, role core.Role) gin.HandlerFunc {
	return h.require(guard, service.RequireRole(role))
}

// RequirePermission rejects identities whose role lacks perm. It must run
// after AuthMiddleware.
func (h *AuthHandlers) RequirePermission(guard *service.Guard, perm core.Permission) gin.HandlerFunc {
	return h.require(guard, service.RequirePermission(perm))
}

func (h *AuthHandlers) require(guard *service.Guard, req service.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := core.IdentityFromContext(c.Request.Context())
		if err := guard.Check(identity, req); err != nil {
			h.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RateLimit throttles requests per client IP.
func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"ip", c.ClientIP())
	}
}
