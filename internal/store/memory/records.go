package memory

import (
	"context"
	"fmt"
	"sort"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

func (s *Store) CreateCoupons(ctx context.Context, coupons []models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range coupons {
		if _, ok := s.coupons[coupons[i].Code]; ok {
			return fmt.Errorf("%w: coupon %s", domain.ErrConflict, coupons[i].Code)
		}
	}
	for i := range coupons {
		c := coupons[i]
		s.nextCoupon++
		c.ID = s.nextCoupon
		if c.Status == "" {
			c.Status = domain.CouponUnused
		}
		c.CreatedAt = now()
		c.UpdatedAt = c.CreatedAt
		s.coupons[c.Code] = &c
		coupons[i] = c
	}
	return nil
}

func (s *Store) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponNotFound, code)
	}
	out := *c
	return &out, nil
}

func (s *Store) ListCoupons(ctx context.Context, status, couponType string, page, limit int) ([]models.Coupon, int64, error) {
	s.mu.Lock()
	var list []models.Coupon
	for _, c := range s.coupons {
		if status != "" && c.Status != status {
			continue
		}
		if couponType != "" && string(c.CouponType) != couponType {
			continue
		}
		list = append(list, *c)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, page, limit), int64(len(list)), nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[key]
	if !ok {
		return "", fmt.Errorf("%w: setting %s", domain.ErrNotFound, key)
	}
	return st.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[key]
	if !ok {
		s.nextSetting++
		st = &models.SystemSetting{ID: s.nextSetting, Key: key, CreatedAt: now()}
		s.settings[key] = st
	}
	st.Value = value
	st.UpdatedBy = actor
	st.UpdatedAt = now()
	return nil
}

func (s *Store) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	s.mu.Lock()
	list := make([]models.SystemSetting, 0, len(s.settings))
	for _, st := range s.settings {
		list = append(list, *st)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list, nil
}

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTask++
	t.ID = s.nextTask
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %d", domain.ErrNotFound, id)
	}
	c := *t
	return &c, nil
}

func (s *Store) ListTasks(ctx context.Context, activeOnly bool) ([]models.Task, error) {
	s.mu.Lock()
	var list []models.Task
	for _, t := range s.tasks {
		if activeOnly && !t.IsActive {
			continue
		}
		list = append(list, *t)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) SetTaskActive(ctx context.Context, id uint, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %d", domain.ErrNotFound, id)
	}
	t.IsActive = active
	t.UpdatedAt = now()
	return nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.withdrawals {
		if o.Reference == w.Reference {
			return fmt.Errorf("%w: withdrawal %s", domain.ErrConflict, w.Reference)
		}
	}
	s.nextWithdrawal++
	w.ID = s.nextWithdrawal
	w.CreatedAt = now()
	w.UpdatedAt = w.CreatedAt
	c := *w
	s.withdrawals[w.ID] = &c
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id uint) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %d", domain.ErrNotFound, id)
	}
	c := *w
	return &c, nil
}

func (s *Store) UpdateWithdrawalStatus(ctx context.Context, id uint, fromStatus string, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.withdrawals[id]
	if !ok {
		return fmt.Errorf("%w: withdrawal %d", domain.ErrNotFound, id)
	}
	if cur.Status != fromStatus {
		return fmt.Errorf("%w: withdrawal %d is %s", domain.ErrConflict, id, cur.Status)
	}
	cur.Status = w.Status
	cur.ProviderRef = w.ProviderRef
	cur.CompletedAt = w.CompletedAt
	cur.UpdatedAt = now()
	*w = *cur
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID uint, status string, page, limit int) ([]models.Withdrawal, int64, error) {
	s.mu.Lock()
	var list []models.Withdrawal
	for _, w := range s.withdrawals {
		if userID != 0 && w.UserID != userID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		list = append(list, *w)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, page, limit), int64(len(list)), nil
}

func (s *Store) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAudit++
	l.ID = s.nextAudit
	l.CreatedAt = now()
	s.audits = append(s.audits, *l)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, page, limit int) ([]models.AuditLog, int64, error) {
	s.mu.Lock()
	list := make([]models.AuditLog, len(s.audits))
	for i := range s.audits {
		list[len(s.audits)-1-i] = s.audits[i]
	}
	s.mu.Unlock()
	return paginate(list, page, limit), int64(len(list)), nil
}
