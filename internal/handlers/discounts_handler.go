package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-phone-storefront/internal/apperr"
	"github.com/imrishuroy/go-phone-storefront/internal/discount"
	"github.com/imrishuroy/go-phone-storefront/internal/validation"
)

// applyDiscount answers 200 for invalid codes too; the reason is in the body.
func (h *handler) applyDiscount(c *gin.Context) {
	var req validation.ApplyDiscountRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.cfg.Checkout.ApplyDiscount(c.Request.Context(), req.Code, c.GetHeader(UserHeader), req.OrderValue)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) upsertDiscount(c *gin.Context) {
	var req validation.UpsertDiscountRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	saved, err := h.cfg.Ledger.Put(c.Request.Context(), DiscountFromRequest(req))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *handler) getDiscount(c *gin.Context) {
	code, err := h.cfg.Ledger.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if code == nil {
		h.writeError(c, apperr.New(apperr.DiscountNotFound, "discount code %q", c.Param("code")))
		return
	}
	c.JSON(http.StatusOK, code)
}

// DiscountFromRequest converts a validated admin request into a discount definition.
func DiscountFromRequest(req validation.UpsertDiscountRequest) discount.Code {
	return discount.Code{
		Code:           req.Code,
		Type:           discount.Type(req.Type),
		Value:          req.Value,
		MaxDiscount:    req.MaxDiscount,
		MinOrderValue:  req.MinOrderValue,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		Status:         discount.Status(req.Status),
	}
}
