package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		switch {
		case strings.EqualFold(o.Email, u.Email):
			return fmt.Errorf("%w: email %s", domain.ErrConflict, u.Email)
		case o.Username == u.Username:
			return fmt.Errorf("%w: username %s", domain.ErrConflict, u.Username)
		case o.ReferralCode == u.ReferralCode:
			return fmt.Errorf("%w: referral code %s", domain.ErrConflict, u.ReferralCode)
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	c := *u
	c.Balance = nil
	s.users[u.ID] = &c

	s.nextBalance++
	s.balances[u.ID] = &models.Balance{ID: s.nextBalance, UserID: u.ID, UpdatedAt: u.CreatedAt}
	return nil
}

func (s *Store) findUser(match func(*models.User) bool) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			c := *u
			return &c, true
		}
	}
	return nil, false
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) }); ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUserNotFound, email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if u, ok := s.findUser(func(u *models.User) bool { return u.Username == username }); ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrUserNotFound, username)
}

func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	if u, ok := s.findUser(func(u *models.User) bool { return u.ReferralCode == code }); ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: referral code %s", ledger.ErrUserNotFound, code)
}

func (s *Store) SetUserActive(ctx context.Context, id uint, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrUserNotFound, id)
	}
	u.IsActive = active
	u.UpdatedAt = now()
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id uint, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrUserNotFound, id)
	}
	u.PasswordHash = hash
	u.UpdatedAt = now()
	return nil
}

// SetUserRole promotes or demotes a user; used when seeding admins.
func (s *Store) SetUserRole(ctx context.Context, id uint, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = now()
	return nil
}

func (s *Store) ListUsers(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	s.mu.Lock()
	var list []models.User
	for _, u := range s.users {
		if search != "" && !strings.Contains(u.Username, search) && !strings.Contains(u.Email, search) {
			continue
		}
		c := *u
		if b, ok := s.balances[u.ID]; ok {
			bc := *b
			c.Balance = &bc
		}
		list = append(list, c)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, page, limit), int64(len(list)), nil
}

func (s *Store) ListReferredUsers(ctx context.Context, code string) ([]models.User, error) {
	s.mu.Lock()
	var list []models.User
	for _, u := range s.users {
		if u.ReferredBy != nil && *u.ReferredBy == code {
			list = append(list, *u)
		}
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}
