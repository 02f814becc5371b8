package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8099" {
		t.Fatalf("expected default port 8099, got %q", cfg.Server.Port)
	}
	if cfg.Rewards.MegaBonusKobo != 50000 {
		t.Fatalf("expected mega bonus 50000 kobo, got %d", cfg.Rewards.MegaBonusKobo)
	}
	if cfg.Rewards.AlphaBonusKobo != 200000 {
		t.Fatalf("expected alpha bonus 200000 kobo, got %d", cfg.Rewards.AlphaBonusKobo)
	}
	if cfg.Rewards.CommissionBPS != 1000 {
		t.Fatalf("expected commission 1000 bps, got %d", cfg.Rewards.CommissionBPS)
	}
	if cfg.Ledger.LockTTL != 30*time.Second {
		t.Fatalf("expected lock ttl 30s, got %s", cfg.Ledger.LockTTL)
	}
	if cfg.Ledger.StoreTimeout != 5*time.Second {
		t.Fatalf("expected store timeout 5s, got %s", cfg.Ledger.StoreTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("REWARDS_COMMISSION_BPS", "1500")
	t.Setenv("LEDGER_RECONCILE_INTERVAL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Rewards.CommissionBPS != 1500 {
		t.Fatalf("expected 1500 bps, got %d", cfg.Rewards.CommissionBPS)
	}
	if cfg.Ledger.ReconcileInterval != time.Hour {
		t.Fatalf("expected 1h interval, got %s", cfg.Ledger.ReconcileInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "driver", key: "DB_DRIVER", val: "sqlite", want: "DB_DRIVER"},
		{name: "mode", key: "REWARDS_COMMISSION_MODE", val: "batch", want: "COMMISSION_MODE"},
		{name: "queue without redis", key: "REWARDS_COMMISSION_MODE", val: "queue", want: "REDIS_ADDR"},
		{name: "rate", key: "REWARDS_COMMISSION_BPS", val: "20000", want: "out of range"},
		{name: "parse", key: "LEDGER_STORE_TIMEOUT", val: "soon", want: "parse env:"},
		{name: "lock ttl", key: "LEDGER_LOCK_TTL", val: "10s", want: "LEDGER_LOCK_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestEffectiveLockTTL(t *testing.T) {
	l := LedgerConfig{StoreTimeout: 5 * time.Second, LockTimeout: 10 * time.Second, MaxRetries: 4}
	if got := l.EffectiveLockTTL(); got != 30*time.Second {
		t.Fatalf("expected derived ttl 30s, got %s", got)
	}
	l.LockTTL = time.Minute
	if got := l.EffectiveLockTTL(); got != time.Minute {
		t.Fatalf("expected configured ttl, got %s", got)
	}
	if l.EffectiveLockTTL() < l.MinLockTTL() {
		t.Fatal("lease shorter than one retry cycle")
	}
}
