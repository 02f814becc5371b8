package handler

import (
	"net/http"
	"strconv"

	"affluence/internal/middleware"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referrals *service.ReferralService
	board     *service.LeaderboardService
}

func NewReferralHandler(referrals *service.ReferralService, board *service.LeaderboardService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, board: board}
}

// Summary returns the caller's referral code, invitee count and commission totals.
func (h *ReferralHandler) Summary(c *gin.Context) {
	s, err := h.referrals.Summary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, "referral", "failed to load referrals", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *ReferralHandler) Referred(c *gin.Context) {
	list, err := h.referrals.ReferredUsers(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, "referral", "failed to list referred users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Leaderboard is public: top earners by affiliate balance.
func (h *ReferralHandler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	list, err := h.board.TopEarners(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "leaderboard", "failed to load leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Count reports how many users signed up with a referral code.
func (h *ReferralHandler) Count(c *gin.Context) {
	n, err := h.board.ReferralCount(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, "referral", "failed to count referrals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referral_code": c.Param("code"), "referral_count": n})
}
