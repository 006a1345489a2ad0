package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "saas-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "saas-auth")
	}
	if cfg.JWTAudience != "saas-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "saas-api")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.RecalcConcurrency != 4 {
		t.Errorf("RecalcConcurrency = %d, want 4", cfg.RecalcConcurrency)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.SuperAdminList()) != 0 {
		t.Errorf("SuperAdminList = %v, want empty", cfg.SuperAdminList())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("RECALC_CONCURRENCY", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.RecalcConcurrency != 8 {
		t.Errorf("RecalcConcurrency = %d, want 8", cfg.RecalcConcurrency)
	}
}

func TestLoad_BcryptCostRange(t *testing.T) {
	for _, cost := range []string{"3", "32"} {
		t.Run(cost, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", cost)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for BCRYPT_COST=%s", cost)
			}
		})
	}
}

func TestLoad_ProductionRequiresSuperAdmins(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when production has no super-admins")
	}

	os.Setenv("SUPER_ADMIN_EMAILS", "ops@example.com")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestSuperAdminList(t *testing.T) {
	cfg := &Config{SuperAdminEmails: " Ops@Example.com, ,root@example.com "}
	got := cfg.SuperAdminList()
	want := []string{"ops@example.com", "root@example.com"}
	if len(got) != len(want) {
		t.Fatalf("SuperAdminList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SuperAdminList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDurations(t *testing.T) {
	testCases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"access valid", (&Config{JWTAccessTTL: "30m"}).AccessTTL(), 30 * time.Minute},
		{"access invalid", (&Config{JWTAccessTTL: "soon"}).AccessTTL(), time.Hour},
		{"access negative", (&Config{JWTAccessTTL: "-5m"}).AccessTTL(), time.Hour},
		{"session valid", (&Config{SessionTTLValue: "24h"}).SessionTTL(), 24 * time.Hour},
		{"session empty", (&Config{}).SessionTTL(), 720 * time.Hour},
		{"invitation valid", (&Config{InvitationTTLValue: "48h"}).InvitationTTL(), 48 * time.Hour},
		{"invitation zero", (&Config{InvitationTTLValue: "0s"}).InvitationTTL(), 168 * time.Hour},
		{"retention valid", (&Config{SessionRetentionValue: "72h"}).SessionRetention(), 72 * time.Hour},
		{"retention empty", (&Config{}).SessionRetention(), 168 * time.Hour},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}
