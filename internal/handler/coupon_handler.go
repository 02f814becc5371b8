package handler

import (
	"net/http"

	"affluence/internal/middleware"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

type CouponHandler struct {
	svc *service.CouponService
}

func NewCouponHandler(svc *service.CouponService) *CouponHandler {
	return &CouponHandler{svc: svc}
}

type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// Redeem claims a coupon for the caller and credits their activity balance.
func (h *CouponHandler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	r, err := h.svc.Redeem(c.Request.Context(), middleware.GetUserID(c), req.Code)
	if err != nil {
		respondError(c, "coupon", "redeem failed", err)
		return
	}
	c.JSON(http.StatusOK, r)
}
