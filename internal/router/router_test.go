package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"affluence/config"
	"affluence/internal/app"
	"affluence/internal/domain"
	"affluence/internal/models"
	"affluence/internal/router"

	"github.com/gin-gonic/gin"
)

type server struct {
	t   *testing.T
	app *app.App
	h   http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		JWT: config.JWTConfig{
			AccessSecret:  "access",
			RefreshSecret: "refresh",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
			Issuer:        "affluence-test",
		},
		Rewards: config.RewardsConfig{
			MegaBonusKobo:       50000,
			AlphaBonusKobo:      200000,
			CommissionBPS:       1000,
			CommissionOnCoupons: true,
			CommissionMode:      "inline",
			MinWithdrawalKobo:   10000,
		},
		Ledger: config.LedgerConfig{ReconcileWorkers: 2},
		Admin:  config.AdminConfig{Email: "root@example.com", Username: "root", Password: "root-password"},
	}
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return &server{t: t, app: a, h: router.Setup(a)}
}

func (s *server) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, out
}

// register returns the new user's access token and referral code.
func (s *server) register(name, code string) (string, string) {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":         name + "@example.com",
		"username":      name,
		"password":      "password-" + name,
		"referral_code": code,
	})
	if status != http.StatusCreated {
		s.t.Fatalf("register %s: %d %v", name, status, body)
	}
	user := body["user"].(map[string]any)
	return body["access_token"].(string), user["referral_code"].(string)
}

func (s *server) login(email, password string) string {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": email, "password": password})
	if status != http.StatusOK {
		s.t.Fatalf("login %s: %d %v", email, status, body)
	}
	return body["access_token"].(string)
}

func num(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func TestCouponRedeemPaysReferrer(t *testing.T) {
	s := newServer(t)
	aliceTok, aliceCode := s.register("alice", "")
	bobTok, _ := s.register("bob", aliceCode)
	root := s.login("root@example.com", "root-password")

	status, body := s.do(http.MethodPost, "/api/v1/admin/coupons", root, map[string]any{"type": "mega", "count": 2})
	if status != http.StatusCreated || num(body["total"]) != 2 {
		t.Fatalf("generate: %d %v", status, body)
	}
	code := body["data"].([]any)[0].(map[string]any)["code"].(string)

	status, body = s.do(http.MethodPost, "/api/v1/me/coupons/redeem", bobTok, map[string]any{"code": code})
	if status != http.StatusOK || num(body["amount"]) != 50000 {
		t.Fatalf("redeem: %d %v", status, body)
	}
	status, body = s.do(http.MethodPost, "/api/v1/me/coupons/redeem", aliceTok, map[string]any{"code": code})
	if status != http.StatusConflict {
		t.Fatalf("second redeem: %d %v", status, body)
	}
	status, _ = s.do(http.MethodPost, "/api/v1/me/coupons/redeem", bobTok, map[string]any{"code": "MEGA-NOPE0000"})
	if status != http.StatusNotFound {
		t.Fatalf("unknown code: %d", status)
	}

	status, body = s.do(http.MethodGet, "/api/v1/me/balance", aliceTok, nil)
	if status != http.StatusOK || num(body["affiliate_balance"]) != 5000 || num(body["total_balance"]) != 5000 {
		t.Fatalf("alice balance: %d %v", status, body)
	}
	status, body = s.do(http.MethodGet, "/api/v1/me/referrals", aliceTok, nil)
	if status != http.StatusOK || num(body["referral_count"]) != 1 || num(body["commission_earned"]) != 5000 {
		t.Fatalf("referrals: %d %v", status, body)
	}
	status, body = s.do(http.MethodGet, "/api/v1/me/transactions?source=commission", aliceTok, nil)
	if status != http.StatusOK || num(body["total"]) != 1 {
		t.Fatalf("transactions: %d %v", status, body)
	}
	status, body = s.do(http.MethodGet, "/api/v1/leaderboard?limit=5", "", nil)
	if status != http.StatusOK {
		t.Fatalf("leaderboard: %d", status)
	}
	top := body["data"].([]any)[0].(map[string]any)
	if top["username"] != "alice" || num(top["referral_count"]) != 1 {
		t.Fatalf("leaderboard top: %v", top)
	}
	status, body = s.do(http.MethodGet, "/api/v1/referrals/"+aliceCode+"/count", "", nil)
	if status != http.StatusOK || num(body["referral_count"]) != 1 {
		t.Fatalf("count: %d %v", status, body)
	}
}

func TestAccessControl(t *testing.T) {
	s := newServer(t)
	userTok, _ := s.register("carol", "")

	if status, _ := s.do(http.MethodGet, "/api/v1/me/balance", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("no token: %d", status)
	}
	if status, _ := s.do(http.MethodGet, "/api/v1/me/balance", "garbage", nil); status != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", status)
	}
	if status, _ := s.do(http.MethodGet, "/api/v1/admin/dashboard", userTok, nil); status != http.StatusForbidden {
		t.Fatalf("user on admin route: %d", status)
	}

	// A subadmin can read but not post to the ledger.
	subTok, _ := s.register("dave", "")
	sub, err := s.app.Memory.GetUserByUsername(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.app.Memory.SetUserRole(context.Background(), sub.ID, domain.RoleSubadmin); err != nil {
		t.Fatal(err)
	}
	subTok = s.login("dave@example.com", "password-dave")
	if status, body := s.do(http.MethodGet, "/api/v1/admin/dashboard", subTok, nil); status != http.StatusOK || num(body["total_users"]) != 3 {
		t.Fatalf("subadmin dashboard: %d %v", status, body)
	}
	path := fmt.Sprintf("/api/v1/admin/users/%d/adjust", sub.ID)
	status, _ := s.do(http.MethodPost, path, subTok, map[string]any{
		"balance_type": "main", "type": "credit", "amount": 100, "reference": "x",
	})
	if status != http.StatusForbidden {
		t.Fatalf("subadmin adjust: %d", status)
	}
}

func TestAdjustWithdrawAndReconcile(t *testing.T) {
	s := newServer(t)
	tok, _ := s.register("erin", "")
	root := s.login("root@example.com", "root-password")
	erin, _ := s.app.Memory.GetUserByUsername(context.Background(), "erin")
	userPath := fmt.Sprintf("/api/v1/admin/users/%d", erin.ID)

	adjust := map[string]any{"balance_type": "main", "type": "credit", "amount": 30000, "reference": "promo-1", "note": "launch"}
	status, body := s.do(http.MethodPost, userPath+"/adjust", root, adjust)
	if status != http.StatusCreated {
		t.Fatalf("adjust: %d %v", status, body)
	}
	if tx := body["transaction"].(map[string]any); tx["actor"] != "admin:root@example.com" {
		t.Fatalf("actor not stored: %v", tx)
	}
	if status, _ = s.do(http.MethodPost, userPath+"/adjust", root, adjust); status != http.StatusConflict {
		t.Fatalf("duplicate reference: %d", status)
	}
	adjust["reference"] = ""
	if status, _ = s.do(http.MethodPost, userPath+"/adjust", root, adjust); status != http.StatusBadRequest {
		t.Fatalf("missing reference: %d", status)
	}

	status, body = s.do(http.MethodPost, "/api/v1/me/withdrawals", tok, map[string]any{"balance_type": "main", "amount": 50000})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: %d %v", status, body)
	}
	status, body = s.do(http.MethodPost, "/api/v1/me/withdrawals", tok, map[string]any{"balance_type": "main", "amount": 20000})
	if status != http.StatusCreated {
		t.Fatalf("withdraw: %d %v", status, body)
	}
	wd := body["withdrawal"].(map[string]any)
	failPath := fmt.Sprintf("/api/v1/admin/withdrawals/%d/fail", num(wd["id"]))
	if status, body = s.do(http.MethodPost, failPath, root, map[string]any{"provider_ref": "bank-timeout"}); status != http.StatusOK || body["status"] != domain.WithdrawalFailed {
		t.Fatalf("fail: %d %v", status, body)
	}
	// Retrying a failed payout refunds at most once.
	if status, _ = s.do(http.MethodPost, failPath, root, nil); status != http.StatusOK {
		t.Fatalf("second fail: %d", status)
	}
	completePath := fmt.Sprintf("/api/v1/admin/withdrawals/%d/complete", num(wd["id"]))
	if status, _ = s.do(http.MethodPost, completePath, root, nil); status != http.StatusConflict {
		t.Fatalf("complete after fail: %d", status)
	}
	if _, body = s.do(http.MethodGet, "/api/v1/me/balance", tok, nil); num(body["main_balance"]) != 30000 {
		t.Fatalf("refund missing: %v", body)
	}

	s.app.Memory.CorruptBalance(erin.ID, func(b *models.Balance) { b.MainBalance = 1 })
	status, body = s.do(http.MethodPost, userPath+"/reconcile?dry_run=true", root, nil)
	if status != http.StatusOK || body["repaired"] != false || len(body["drifts"].([]any)) == 0 {
		t.Fatalf("dry run: %d %v", status, body)
	}
	status, body = s.do(http.MethodPost, userPath+"/reconcile", root, nil)
	if status != http.StatusOK || body["repaired"] != true {
		t.Fatalf("reconcile: %d %v", status, body)
	}
	if _, body = s.do(http.MethodGet, "/api/v1/admin/repairs?user_id="+fmt.Sprint(erin.ID), root, nil); num(body["total"]) == 0 {
		t.Fatalf("repairs: %v", body)
	}
	if _, body = s.do(http.MethodGet, "/api/v1/admin/audit-logs", root, nil); num(body["total"]) < 2 {
		t.Fatalf("audit logs: %v", body)
	}
}

func TestAdjustInNaira(t *testing.T) {
	s := newServer(t)
	tok, _ := s.register("femi", "")
	root := s.login("root@example.com", "root-password")
	femi, _ := s.app.Memory.GetUserByUsername(context.Background(), "femi")
	path := fmt.Sprintf("/api/v1/admin/users/%d/adjust", femi.ID)

	status, body := s.do(http.MethodPost, path, root, map[string]any{
		"balance_type": "main", "type": "credit", "amount_naira": "1500.5", "reference": "promo-naira",
	})
	if status != http.StatusCreated {
		t.Fatalf("adjust: %d %v", status, body)
	}
	if _, body = s.do(http.MethodGet, "/api/v1/me/balance", tok, nil); num(body["main_balance"]) != 150050 {
		t.Fatalf("expected 150050 kobo, got %v", body)
	}

	for _, bad := range []map[string]any{
		{"amount_naira": "5.+5"},
		{"amount_naira": "-3"},
		{"amount_naira": "10", "amount": 1000},
		{},
	} {
		req := map[string]any{"balance_type": "main", "type": "credit", "reference": "bad"}
		for k, v := range bad {
			req[k] = v
		}
		if status, body := s.do(http.MethodPost, path, root, req); status != http.StatusBadRequest {
			t.Fatalf("%v: %d %v", bad, status, body)
		}
	}
}

func TestTaskCompletionAndSettings(t *testing.T) {
	s := newServer(t)
	_, code := s.register("fred", "")
	tok, _ := s.register("gina", code)
	root := s.login("root@example.com", "root-password")

	status, body := s.do(http.MethodPost, "/api/v1/admin/tasks", root, map[string]any{"title": "Follow us", "reward_amount": 20000})
	if status != http.StatusCreated {
		t.Fatalf("create task: %d %v", status, body)
	}
	complete := fmt.Sprintf("/api/v1/me/tasks/%d/complete", num(body["id"]))

	status, body = s.do(http.MethodPatch, "/api/v1/admin/settings", root, map[string]any{"referral_commission_bps": 2500})
	if status != http.StatusOK {
		t.Fatalf("settings: %d %v", status, body)
	}
	if eff := body["effective"].(map[string]any); num(eff[domain.SettingCommissionBPS]) != 2500 {
		t.Fatalf("effective settings: %v", eff)
	}
	if status, _ = s.do(http.MethodPatch, "/api/v1/admin/settings", root, map[string]any{"referral_commission_bps": 20000}); status != http.StatusBadRequest {
		t.Fatalf("out of range rate: %d", status)
	}

	if status, body = s.do(http.MethodPost, complete, tok, nil); status != http.StatusOK {
		t.Fatalf("complete: %d %v", status, body)
	}
	if status, _ = s.do(http.MethodPost, complete, tok, nil); status != http.StatusConflict {
		t.Fatalf("complete twice: %d", status)
	}
	if status, _ = s.do(http.MethodPost, "/api/v1/me/tasks/999/complete", tok, nil); status != http.StatusNotFound {
		t.Fatalf("unknown task: %d", status)
	}
	fred, _ := s.app.Memory.GetUserByUsername(context.Background(), "fred")
	b, _ := s.app.Memory.GetBalance(context.Background(), fred.ID)
	if b.AffiliateBalance != 5000 {
		t.Fatalf("commission at 25%%: got %d", b.AffiliateBalance)
	}
}
