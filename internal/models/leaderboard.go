package models

// LeaderboardEntry is a read model for the top earners board.
type LeaderboardEntry struct {
	UserID           uint   `json:"user_id"`
	Username         string `json:"username"`
	FullName         string `json:"full_name"`
	ReferralCode     string `json:"referral_code"`
	AffiliateBalance int64  `json:"affiliate_balance"`
	ReferralCount    int64  `json:"referral_count"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalUsers         int64 `json:"total_users"`
	ActiveUsers        int64 `json:"active_users"`
	TotalReferrals     int64 `json:"total_referrals"`
	OutstandingBalance int64 `json:"outstanding_balance"`
	TotalTransactions  int64 `json:"total_transactions"`
	CouponsUsed        int64 `json:"coupons_used"`
	CouponsUnused      int64 `json:"coupons_unused"`
	PendingWithdrawals int64 `json:"pending_withdrawals"`
}

// ReferralSummary is what a user sees about their own referrals.
type ReferralSummary struct {
	ReferralCode     string `json:"referral_code"`
	ReferralCount    int64  `json:"referral_count"`
	AffiliateBalance int64  `json:"affiliate_balance"`
	CommissionEarned int64  `json:"commission_earned"`
}
