package service

import (
	"context"

	"affluence/internal/ledger"
	"affluence/internal/models"
)

const (
	defaultTopEarners = 10
	maxTopEarners     = 100
)

// LeaderboardService serves read-only views over balances and referrals.
type LeaderboardService struct {
	store   ledger.Store
	reports ReportStore
}

func NewLeaderboardService(store ledger.Store, reports ReportStore) *LeaderboardService {
	return &LeaderboardService{store: store, reports: reports}
}

// TopEarners ranks active users by affiliate balance.
func (s *LeaderboardService) TopEarners(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultTopEarners
	}
	if limit > maxTopEarners {
		limit = maxTopEarners
	}
	return s.reports.TopEarners(ctx, limit)
}

func (s *LeaderboardService) ReferralCount(ctx context.Context, code string) (int64, error) {
	return s.reports.ReferralCount(ctx, code)
}

func (s *LeaderboardService) Balance(ctx context.Context, userID uint) (*models.Balance, error) {
	return s.store.GetBalance(ctx, userID)
}

func (s *LeaderboardService) Transactions(ctx context.Context, userID uint, source string, page, limit int) ([]models.Transaction, int64, error) {
	return s.reports.ListTransactions(ctx, userID, source, page, limit)
}
