package handler

import (
	"net/http"

	"affluence/internal/domain"
	"affluence/internal/middleware"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

// MeHandler serves the authenticated user's own balance and history.
type MeHandler struct {
	board *service.LeaderboardService
}

func NewMeHandler(board *service.LeaderboardService) *MeHandler {
	return &MeHandler{board: board}
}

func (h *MeHandler) Balance(c *gin.Context) {
	b, err := h.board.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, "me", "failed to load balance", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Transactions lists the user's ledger entries, newest first. ?source=
// narrows to one flow (coupon, task, commission ...).
func (h *MeHandler) Transactions(c *gin.Context) {
	source := c.Query("source")
	if source != "" && !domain.TxSource(source).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source"})
		return
	}
	page, limit := parsePagination(c)
	list, total, err := h.board.Transactions(c.Request.Context(), middleware.GetUserID(c), source, page, limit)
	if err != nil {
		respondError(c, "me", "failed to list transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
