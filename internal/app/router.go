// internal/app/router.go
package app

import (
	billingHandler "athlos-billing/internal/handlers/billing"
	"athlos-billing/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	RenewalHandler *billingHandler.RenewalHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Renewals (operator surface) ====================
	renewals := api.Group("/renewals")
	renewals.Use(h.AuthMiddleware.Auth())
	{
		renewals.POST("/scan", h.RenewalHandler.TriggerScan)
	}

	// ==================== Subscriptions ====================
	subscriptions := api.Group("/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.GET("/:id", h.RenewalHandler.GetSubscription)
		subscriptions.GET("/:id/attempts", h.RenewalHandler.ListAttempts)
		subscriptions.GET("/:id/notifications", h.RenewalHandler.ListNotifications)
		subscriptions.POST("/:id/retry", h.RenewalHandler.RetrySubscription)
		subscriptions.PATCH("/:id/auto-renew", h.RenewalHandler.UpdateAutoRenew)
	}
}
