package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"affluence/config"
	"affluence/internal/auth"
	"affluence/internal/domain"

	"github.com/gin-gonic/gin"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", errMissingAuth},
		{"Basic abc", "", errAuthFormat},
		{"Bearer", "", errAuthFormat},
		{"Bearer   ", "", errAuthFormat},
	}
	for _, tt := range tests {
		got, err := bearerToken(tt.header)
		if got != tt.want || err != tt.err {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}

func TestAuthRequiredSetsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s", AccessExpiry: time.Minute, Issuer: "affluence-test"}
	token, err := auth.GenerateAccessToken(cfg, 7, "ada@example.com", domain.RoleSubadmin)
	if err != nil {
		t.Fatal(err)
	}

	var got Identity
	r := gin.New()
	r.GET("/x", AuthRequired(cfg), func(c *gin.Context) {
		got, _ = GetIdentity(c)
		c.Status(http.StatusOK)
	})
	r.GET("/admin", AuthRequired(cfg), RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("/x", "Bearer "+token); code != http.StatusOK {
		t.Fatalf("valid token: %d", code)
	}
	if got != (Identity{UserID: 7, Email: "ada@example.com", Role: domain.RoleSubadmin}) {
		t.Fatalf("unexpected identity %+v", got)
	}
	if code := send("/x", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing header: %d", code)
	}
	if code := send("/x", "Bearer not-a-jwt"); code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", code)
	}
	if code := send("/admin", "Bearer "+token); code != http.StatusForbidden {
		t.Fatalf("subadmin on an admin-only route: %d", code)
	}
}
