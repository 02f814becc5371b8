package handler

import (
	"net/http"

	"affluence/internal/domain"
	"affluence/internal/middleware"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

type WithdrawRequest struct {
	BalanceType string `json:"balance_type" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"` // kobo
}

// Request debits the chosen bucket and records a pending payout.
func (h *WithdrawalHandler) Request(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, b, err := h.svc.Request(c.Request.Context(), middleware.GetUserID(c), domain.Bucket(req.BalanceType), req.Amount)
	if err != nil {
		respondError(c, "withdrawal", "withdrawal failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"withdrawal": w, "balance": b})
}

func (h *WithdrawalHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, "withdrawal", "failed to list withdrawals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
