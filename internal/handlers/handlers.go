// Package handlers exposes the storefront over HTTP with gin.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/checkout"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
	"github.com/imrishuroy/go-phone-storefront/internal/validation"
)

// UserHeader carries the caller's user id; empty for guests.
const UserHeader = "X-User-Id"

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Checkout *checkout.Service
	Orders   *orders.Machine
	Ledger   *discount.Ledger
	Logger   *zap.Logger
}

type handler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterRoutes registers the customer and admin routes on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{cfg: cfg, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/discounts/apply", h.applyDiscount)
	r.POST("/orders", h.createOrder)
	r.GET("/orders/:id", h.getOrder)

	admin := r.Group("/admin")
	admin.POST("/orders/:id/confirm", h.confirmOrder)
	admin.POST("/orders/:id/reject", h.rejectOrder)
	admin.POST("/orders/:id/advance", h.advanceOrder)
	admin.PUT("/discounts", h.upsertDiscount)
	admin.GET("/discounts/:code", h.getDiscount)
}

// writeError maps typed errors to their status; anything else is a 500.
func (h *handler) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		h.cfg.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": kind, "msg": err.Error()})
}
