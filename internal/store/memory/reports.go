package memory

import (
	"context"
	"sort"

	"affluence/internal/domain"
	"affluence/internal/models"
)

func (s *Store) referralCounts() map[string]int64 {
	counts := map[string]int64{}
	for _, u := range s.users {
		if u.ReferredBy != nil {
			counts[*u.ReferredBy]++
		}
	}
	return counts
}

func (s *Store) TopEarners(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	counts := s.referralCounts()
	var list []models.LeaderboardEntry
	for _, u := range s.users {
		if !u.IsActive {
			continue
		}
		e := models.LeaderboardEntry{
			UserID:        u.ID,
			Username:      u.Username,
			FullName:      u.FullName,
			ReferralCode:  u.ReferralCode,
			ReferralCount: counts[u.ReferralCode],
		}
		if b, ok := s.balances[u.ID]; ok {
			e.AffiliateBalance = b.AffiliateBalance
		}
		list = append(list, e)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].AffiliateBalance == list[j].AffiliateBalance {
			return list[i].UserID < list[j].UserID
		}
		return list[i].AffiliateBalance > list[j].AffiliateBalance
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) ReferralCount(ctx context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referralCounts()[code], nil
}

func (s *Store) CommissionEarned(ctx context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.txs[userID] {
		if t.Source == domain.SourceCommission {
			sum += t.Signed()
		}
	}
	return sum, nil
}

func (s *Store) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.DashboardStats
	for _, u := range s.users {
		st.TotalUsers++
		if u.IsActive {
			st.ActiveUsers++
		}
		if u.ReferredBy != nil {
			st.TotalReferrals++
		}
	}
	for _, b := range s.balances {
		st.OutstandingBalance += b.TotalBalance
	}
	for _, list := range s.txs {
		st.TotalTransactions += int64(len(list))
	}
	for _, c := range s.coupons {
		if c.Status == domain.CouponUsed {
			st.CouponsUsed++
		} else {
			st.CouponsUnused++
		}
	}
	for _, w := range s.withdrawals {
		if w.Status == domain.WithdrawalPending {
			st.PendingWithdrawals++
		}
	}
	return &st, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uint, source string, page, limit int) ([]models.Transaction, int64, error) {
	s.mu.Lock()
	var list []models.Transaction
	for uid, txs := range s.txs {
		if userID != 0 && uid != userID {
			continue
		}
		for _, t := range txs {
			if source != "" && string(t.Source) != source {
				continue
			}
			list = append(list, t)
		}
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return paginate(list, page, limit), int64(len(list)), nil
}

func (s *Store) ListRepairs(ctx context.Context, userID uint, page, limit int) ([]models.BalanceRepair, int64, error) {
	s.mu.Lock()
	var list []models.BalanceRepair
	for i := len(s.repairs) - 1; i >= 0; i-- {
		if userID != 0 && s.repairs[i].UserID != userID {
			continue
		}
		list = append(list, s.repairs[i])
	}
	s.mu.Unlock()
	return paginate(list, page, limit), int64(len(list)), nil
}
