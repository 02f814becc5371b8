package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"affluence/config"
	"affluence/internal/auth"
	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

const (
	referralCodeLen      = 8
	referralCodeAttempts = 10
	referralAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type AuthService struct {
	cfg   *config.Config
	users UserStore
}

func NewAuthService(cfg *config.Config, users UserStore) *AuthService {
	return &AuthService{cfg: cfg, users: users}
}

type RegisterInput struct {
	Email        string
	Username     string
	FullName     string
	Password     string
	ReferralCode string // inviter's code, optional
}

// Register creates the user with a fresh referral code and an empty balance.
// referred_by is only set when ReferralCode belongs to an existing user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", "", ErrEmailExists
	} else if !errors.Is(err, ledger.ErrUserNotFound) {
		return nil, "", "", err
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, "", "", ErrUsernameExists
	} else if !errors.Is(err, ledger.ErrUserNotFound) {
		return nil, "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", err
	}

	var referredBy *string
	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		if _, err := s.users.GetUserByReferralCode(ctx, code); err == nil {
			referredBy = &code
		} else {
			log.Printf("[auth] ignoring unknown referral code %q for %s", code, email)
		}
	}

	u := &models.User{
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		ReferredBy:   referredBy,
		IsActive:     true,
		Role:         domain.RoleUser,
	}
	for attempt := 0; ; attempt++ {
		if attempt == referralCodeAttempts {
			return nil, "", "", fmt.Errorf("failed to generate a unique referral code after %d attempts", referralCodeAttempts)
		}
		code, err := generateReferralCode()
		if err != nil {
			return nil, "", "", err
		}
		if _, err := s.users.GetUserByReferralCode(ctx, code); err == nil {
			continue
		}
		u.ReferralCode = code
		err = s.users.CreateUser(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, "", "", err
		}
		// A racing signup took the email, username or code; recheck which.
		if _, gerr := s.users.GetUserByEmail(ctx, email); gerr == nil {
			return nil, "", "", ErrEmailExists
		}
		if _, gerr := s.users.GetUserByUsername(ctx, username); gerr == nil {
			return nil, "", "", ErrUsernameExists
		}
	}
	access, refresh, err := s.issue(u)
	if err != nil {
		return u, "", "", err
	}
	return u, access, refresh, nil
}

// SeedAdmin makes sure an admin account exists for the configured email.
// An existing user with that email is promoted; otherwise one is registered.
func (s *AuthService) SeedAdmin(ctx context.Context, cfg config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(cfg.Email)))
	if errors.Is(err, ledger.ErrUserNotFound) {
		u, _, _, err = s.Register(ctx, RegisterInput{
			Email:    cfg.Email,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if u.Role == domain.RoleAdmin {
		return nil
	}
	if err := s.users.SetUserRole(ctx, u.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("[auth] seeded admin %s", u.Email)
	return nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, string, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	if !u.IsActive {
		return nil, "", "", ErrAccountDisabled
	}
	access, refresh, err := s.issue(u)
	if err != nil {
		return nil, "", "", err
	}
	return u, access, refresh, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return "", "", err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if !u.IsActive {
		return "", "", ErrAccountDisabled
	}
	return s.issue(u)
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetUser(ctx, userID)
}

func (s *AuthService) issue(u *models.User) (string, string, error) {
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// generateReferralCode returns an 8-character uppercase code without the
// easily confused 0/O and 1/I.
func generateReferralCode() (string, error) {
	b := make([]byte, referralCodeLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = referralAlphabet[int(b[i])%len(referralAlphabet)]
	}
	return string(b), nil
}
