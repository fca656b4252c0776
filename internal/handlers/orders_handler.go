package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/checkout"
	"github.com/imrishuroy/go-phone-storefront/internal/idempotency"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
	"github.com/imrishuroy/go-phone-storefront/internal/validation"
)

func (h *handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}

	in := checkout.PlaceOrderInput{
		UserID:         c.GetHeader(UserHeader),
		IdempotencyKey: idempKey,
		ShippingAddress: orders.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Phone:    req.ShippingAddress.Phone,
			Email:    req.ShippingAddress.Email,
			Line1:    req.ShippingAddress.Line1,
			City:     req.ShippingAddress.City,
		},
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
		DiscountCode:  req.DiscountCode,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, checkout.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.cfg.Checkout.PlaceOrder(ctx, in)
	if errors.Is(err, orders.ErrDuplicateKey) {
		h.replay(c, idempKey)
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	body, err := json.Marshal(order)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// the order is committed; a lost response record only costs a 202 on retry
	if err := h.cfg.Checkout.Remember(ctx, idempKey, string(body), http.StatusCreated); err != nil {
		h.cfg.Logger.Warn("idempotency response not stored",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
	c.Data(http.StatusCreated, "application/json", body)
}

// replay answers a retried checkout from its idempotency record.
func (h *handler) replay(c *gin.Context, idempKey string) {
	rec, err := h.cfg.Checkout.Replay(c.Request.Context(), idempKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction_failed_no_idempotency_record"})
		return
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "order_id": rec.OrderID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *handler) getOrder(c *gin.Context) {
	id := c.Param("id")
	o, err := h.cfg.Orders.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// customers only see their own orders; guest orders are reachable by id
	if o.UserID != "" && o.UserID != c.GetHeader(UserHeader) {
		h.writeError(c, apperr.New(apperr.OrderNotFound, "order %s", id))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) confirmOrder(c *gin.Context) {
	o, err := h.cfg.Orders.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) rejectOrder(c *gin.Context) {
	var req validation.RejectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	// an empty reason is a typed state machine error, not a validation failure
	o, err := h.cfg.Orders.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) advanceOrder(c *gin.Context) {
	var req validation.AdvanceOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.cfg.Orders.Advance(c.Request.Context(), c.Param("id"), orders.Status(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
