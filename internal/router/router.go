package router

import (
	"net/http"

	"affluence/internal/app"
	"affluence/internal/domain"
	"affluence/internal/handler"
	"affluence/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func Setup(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger() to reduce log noise; use gin.Default() if you need request logging
	r.Use(traceContext())
	r.Use(middleware.RateLimit(a.RequestLimit, middleware.ByClientIP))

	// Handlers
	authHandler := handler.NewAuthHandler(a.Auth)
	meHandler := handler.NewMeHandler(a.Leaderboard)
	couponHandler := handler.NewCouponHandler(a.Coupons)
	taskHandler := handler.NewTaskHandler(a.Tasks)
	withdrawalHandler := handler.NewWithdrawalHandler(a.Withdrawals)
	referralHandler := handler.NewReferralHandler(a.Referrals, a.Leaderboard)
	adminHandler := handler.NewAdminHandler(a.Admin, a.Tasks, a.Withdrawals, a.Coupons)

	authMw := middleware.AuthRequired(&cfg.JWT)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)
	writeLimit := middleware.RateLimit(a.WriteLimit, middleware.ByUser)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
		}

		api.GET("/leaderboard", referralHandler.Leaderboard)
		api.GET("/referrals/:code/count", referralHandler.Count)

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("", authHandler.Me)
			me.GET("/balance", meHandler.Balance)
			me.GET("/transactions", meHandler.Transactions)
			me.POST("/coupons/redeem", writeLimit, couponHandler.Redeem)
			me.GET("/tasks", taskHandler.List)
			me.POST("/tasks/:id/complete", writeLimit, taskHandler.Complete)
			me.POST("/withdrawals", writeLimit, withdrawalHandler.Request)
			me.GET("/withdrawals", withdrawalHandler.List)
			me.GET("/referrals", referralHandler.Summary)
			me.GET("/referrals/users", referralHandler.Referred)
		}

		// Subadmins can read everything; ledger writes and settings are admin only.
		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PATCH("/users/:id/active", adminHandler.SetUserActive)
			admin.POST("/users/:id/adjust", adminOnly, adminHandler.Adjust)
			admin.POST("/users/:id/reconcile", adminHandler.Reconcile)
			admin.POST("/users/:id/commissions/repost", adminOnly, adminHandler.RepostCommissions)
			admin.POST("/reconcile", adminOnly, adminHandler.ReconcileAll)
			admin.GET("/repairs", adminHandler.ListRepairs)
			admin.GET("/transactions", adminHandler.ListTransactions)

			admin.GET("/coupons", adminHandler.ListCoupons)
			admin.POST("/coupons", adminOnly, adminHandler.GenerateCoupons)

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PATCH("/settings", adminOnly, adminHandler.UpdateSettings)

			admin.GET("/tasks", adminHandler.ListTasks)
			admin.POST("/tasks", adminHandler.CreateTask)
			admin.PATCH("/tasks/:id/active", adminHandler.SetTaskActive)

			admin.GET("/withdrawals", adminHandler.ListWithdrawals)
			admin.POST("/withdrawals/:id/complete", adminOnly, adminHandler.CompleteWithdrawal)
			admin.POST("/withdrawals/:id/fail", adminOnly, adminHandler.FailWithdrawal)

			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}
	}
	return r
}

// traceContext continues a caller's trace so ledger spans join it.
func traceContext() gin.HandlerFunc {
	prop := otel.GetTextMapPropagator()
	return func(c *gin.Context) {
		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
