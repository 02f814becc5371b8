package handler

import (
	"errors"
	"net/http"
	"strconv"

	"affluence/internal/domain"
	"affluence/internal/middleware"
	"affluence/internal/models"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin       *service.AdminService
	tasks       *service.TaskService
	withdrawals *service.WithdrawalService
	coupons     *service.CouponService
}

func NewAdminHandler(admin *service.AdminService, tasks *service.TaskService, withdrawals *service.WithdrawalService, coupons *service.CouponService) *AdminHandler {
	return &AdminHandler{admin: admin, tasks: tasks, withdrawals: withdrawals, coupons: coupons}
}

func actorFrom(c *gin.Context) service.Actor {
	id, _ := middleware.GetIdentity(c)
	return service.Actor{
		ID:       id.UserID,
		Username: id.Email,
		Role:     id.Role,
		IP:       c.ClientIP(),
	}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.admin.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, "admin", "failed to load dashboard", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, limit := parsePagination(c)
	users, total, err := h.admin.ListUsers(c.Request.Context(), c.Query("search"), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.admin.InspectUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "admin", "failed to load user", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// SetUserActive enables or disables a user. Disabled users cannot earn or spend.
func (h *AdminHandler) SetUserActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}
	if err := h.admin.SetUserActive(c.Request.Context(), actorFrom(c), id, *req.IsActive); err != nil {
		respondError(c, "admin", "failed to update user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "is_active": *req.IsActive})
}

// AdjustRequest takes the amount either in kobo or as a naira string
// ("1500.50"), not both.
type AdjustRequest struct {
	BalanceType string `json:"balance_type" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Amount      int64  `json:"amount"`
	AmountNaira string `json:"amount_naira"`
	Reference   string `json:"reference" binding:"required"`
	Note        string `json:"note"`
}

func (r AdjustRequest) kobo() (int64, error) {
	switch {
	case r.AmountNaira != "" && r.Amount != 0:
		return 0, errors.New("set amount or amount_naira, not both")
	case r.AmountNaira != "":
		return domain.ParseNaira(r.AmountNaira)
	case r.Amount != 0:
		return r.Amount, nil
	default:
		return 0, errors.New("amount is required")
	}
}

func (h *AdminHandler) Adjust(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := req.kobo()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.admin.Adjust(c.Request.Context(), actorFrom(c), service.Adjustment{
		UserID:    id,
		Bucket:    domain.Bucket(req.BalanceType),
		Type:      domain.EntryType(req.Type),
		Amount:    amount,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		respondError(c, "admin", "adjustment failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"balance": res.Balance, "transaction": res.Transaction})
}

// Reconcile replays one user's log. ?dry_run=true reports without writing.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := h.admin.Reconcile(c.Request.Context(), actorFrom(c), id, c.Query("dry_run") == "true")
	if err != nil {
		respondError(c, "admin", "reconcile failed", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *AdminHandler) ReconcileAll(c *gin.Context) {
	sum, err := h.admin.ReconcileAll(c.Request.Context(), actorFrom(c), c.Query("dry_run") == "true")
	if sum == nil {
		respondError(c, "admin", "reconcile failed", err)
		return
	}
	resp := gin.H{"summary": sum}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) ListRepairs(c *gin.Context) {
	page, limit := parsePagination(c)
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 32)
	list, total, err := h.admin.ListRepairs(c.Request.Context(), uint(userID), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list repairs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) ListTransactions(c *gin.Context) {
	page, limit := parsePagination(c)
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 32)
	list, total, err := h.admin.ListTransactions(c.Request.Context(), uint(userID), c.Query("source"), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list transactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// RepostCommissions re-posts commissions missing for a referred user's earnings.
func (h *AdminHandler) RepostCommissions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n, err := h.admin.RepostCommissions(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, "admin", "repost failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posted": n})
}

type GenerateCouponsRequest struct {
	Type  string `json:"type" binding:"required"`
	Count int    `json:"count" binding:"required,gt=0"`
}

func (h *AdminHandler) GenerateCoupons(c *gin.Context) {
	var req GenerateCouponsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := domain.ParseCouponType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, err := h.admin.GenerateCoupons(c.Request.Context(), actorFrom(c), t, req.Count)
	if err != nil {
		respondError(c, "admin", "coupon generation failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": list, "total": len(list)})
}

func (h *AdminHandler) ListCoupons(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.coupons.List(c.Request.Context(), c.Query("status"), c.Query("type"), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list coupons", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	effective, stored, err := h.admin.Settings(c.Request.Context())
	if err != nil {
		respondError(c, "admin", "failed to load settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"effective": effective, "stored": stored})
}

type UpdateSettingsRequest struct {
	MegaBonus     *int64 `json:"coupon_bonus_mega"`
	AlphaBonus    *int64 `json:"coupon_bonus_alpha"`
	CommissionBPS *int64 `json:"referral_commission_bps"`
}

// UpdateSettings applies only the fields present in the body.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, actor := c.Request.Context(), actorFrom(c)
	if req.MegaBonus != nil {
		if err := h.admin.SetCouponBonus(ctx, actor, domain.CouponMega, *req.MegaBonus); err != nil {
			respondError(c, "admin", "failed to update settings", err)
			return
		}
	}
	if req.AlphaBonus != nil {
		if err := h.admin.SetCouponBonus(ctx, actor, domain.CouponAlpha, *req.AlphaBonus); err != nil {
			respondError(c, "admin", "failed to update settings", err)
			return
		}
	}
	if req.CommissionBPS != nil {
		if err := h.admin.SetCommissionBPS(ctx, actor, *req.CommissionBPS); err != nil {
			respondError(c, "admin", "failed to update settings", err)
			return
		}
	}
	h.GetSettings(c)
}

func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.admin.ListAuditLogs(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list audit logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	page, limit := parsePagination(c)
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 32)
	list, total, err := h.withdrawals.List(c.Request.Context(), uint(userID), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, "admin", "failed to list withdrawals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

type SettleWithdrawalRequest struct {
	ProviderRef string `json:"provider_ref"`
}

func (h *AdminHandler) CompleteWithdrawal(c *gin.Context) {
	h.settleWithdrawal(c, true)
}

// FailWithdrawal marks the payout failed and refunds the debited bucket.
func (h *AdminHandler) FailWithdrawal(c *gin.Context) {
	h.settleWithdrawal(c, false)
}

func (h *AdminHandler) settleWithdrawal(c *gin.Context, ok bool) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	var req SettleWithdrawalRequest
	_ = c.ShouldBindJSON(&req)
	var (
		w   *models.Withdrawal
		err error
	)
	if ok {
		w, err = h.withdrawals.Complete(c.Request.Context(), id, req.ProviderRef)
	} else {
		w, err = h.withdrawals.Fail(c.Request.Context(), id, req.ProviderRef)
	}
	if err != nil {
		respondError(c, "admin", "withdrawal update failed", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type CreateTaskRequest struct {
	Title        string `json:"title" binding:"required"`
	TaskType     string `json:"task_type"`
	TaskURL      string `json:"task_url"`
	Instructions string `json:"instructions"`
	RewardAmount int64  `json:"reward_amount" binding:"required,gt=0"`
}

func (h *AdminHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := &models.Task{
		Title:        req.Title,
		TaskType:     req.TaskType,
		TaskURL:      req.TaskURL,
		Instructions: req.Instructions,
		RewardAmount: req.RewardAmount,
	}
	if err := h.tasks.Create(c.Request.Context(), t); err != nil {
		respondError(c, "admin", "failed to create task", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *AdminHandler) ListTasks(c *gin.Context) {
	list, err := h.tasks.List(c.Request.Context(), false)
	if err != nil {
		respondError(c, "admin", "failed to list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *AdminHandler) SetTaskActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}
	if err := h.tasks.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		respondError(c, "admin", "failed to update task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "is_active": *req.IsActive})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
