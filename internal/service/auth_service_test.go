package service_test

import (
	"context"
	"errors"
	"testing"

	"affluence/config"
	"affluence/internal/auth"
	"affluence/internal/domain"
	"affluence/internal/service"
)

func registration(name, code string) service.RegisterInput {
	return service.RegisterInput{
		Email:        name + "@Example.com",
		Username:     name,
		FullName:     name,
		Password:     "s3cret-pass",
		ReferralCode: code,
	}
}

func TestRegisterBindsKnownReferralCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inviter, access, refresh, err := h.auth.Register(ctx, registration("alice", ""))
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("expected tokens")
	}
	if len(inviter.ReferralCode) != 8 || inviter.ReferredBy != nil || inviter.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", inviter)
	}
	claims, err := auth.ParseAccessToken(&h.cfg.JWT, access)
	if err != nil || claims.UserID != inviter.ID {
		t.Fatalf("access token: %+v, %v", claims, err)
	}

	invited, _, _, err := h.auth.Register(ctx, registration("bob", " "+inviter.ReferralCode+" "))
	if err != nil {
		t.Fatal(err)
	}
	if invited.ReferredBy == nil || *invited.ReferredBy != inviter.ReferralCode {
		t.Fatalf("referred_by = %v, want %s", invited.ReferredBy, inviter.ReferralCode)
	}
	if b := h.balance(t, invited.ID); b.TotalBalance != 0 {
		t.Fatalf("new balance = %+v", b)
	}

	stranger, _, _, err := h.auth.Register(ctx, registration("carol", "NOSUCHCD"))
	if err != nil {
		t.Fatal(err)
	}
	if stranger.ReferredBy != nil {
		t.Fatalf("unknown code was bound: %v", *stranger.ReferredBy)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, _, _, err := h.auth.Register(ctx, registration("alice", "")); err != nil {
		t.Fatal(err)
	}

	in := registration("alice", "")
	in.Username = "alice2"
	if _, _, _, err := h.auth.Register(ctx, in); !errors.Is(err, service.ErrEmailExists) {
		t.Fatalf("duplicate email: got %v", err)
	}
	in = registration("alice", "")
	in.Email = "other@example.com"
	if _, _, _, err := h.auth.Register(ctx, in); !errors.Is(err, service.ErrUsernameExists) {
		t.Fatalf("duplicate username: got %v", err)
	}
}

func TestLoginAndRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, _, _, err := h.auth.Register(ctx, registration("alice", ""))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := h.auth.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, service.ErrInvalidCreds) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, _, err := h.auth.Login(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, service.ErrInvalidCreds) {
		t.Fatalf("unknown email: got %v", err)
	}
	_, _, refresh, err := h.auth.Login(ctx, " ALICE@example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := h.auth.RefreshToken(ctx, refresh); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := h.store.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := h.auth.Login(ctx, "alice@example.com", "s3cret-pass"); !errors.Is(err, service.ErrAccountDisabled) {
		t.Fatalf("disabled login: got %v", err)
	}
	if _, _, err := h.auth.RefreshToken(ctx, refresh); !errors.Is(err, service.ErrAccountDisabled) {
		t.Fatalf("disabled refresh: got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, _, _, err := h.auth.Register(ctx, registration("alice", ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.auth.ChangePassword(ctx, u.ID, "nope", "new-pass-1"); !errors.Is(err, service.ErrInvalidCreds) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if err := h.auth.ChangePassword(ctx, u.ID, "s3cret-pass", "new-pass-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := h.auth.Login(ctx, "alice@example.com", "new-pass-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestSeedAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.auth.SeedAdmin(ctx, config.AdminConfig{}); err != nil {
		t.Fatalf("empty config should be a no-op: %v", err)
	}
	cfg := config.AdminConfig{Email: "root@example.com", Username: "root", Password: "root-password"}
	if err := h.auth.SeedAdmin(ctx, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	u, access, _, err := h.auth.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", u.Role)
	}
	claims, err := auth.ParseAccessToken(&h.cfg.JWT, access)
	if err != nil || claims.Role != domain.RoleAdmin {
		t.Fatalf("token role: %+v, %v", claims, err)
	}
	// A second run finds the account and changes nothing.
	if err := h.auth.SeedAdmin(ctx, cfg); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	bob, _, _, err := h.auth.Register(ctx, registration("bob", ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.auth.SeedAdmin(ctx, config.AdminConfig{Email: bob.Email, Password: "ignored"}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	got, err := h.auth.Me(ctx, bob.ID)
	if err != nil || got.Role != domain.RoleAdmin {
		t.Fatalf("expected bob promoted, got %+v, %v", got, err)
	}
}
