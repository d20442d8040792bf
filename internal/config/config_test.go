package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TESSERA_PG_DSN", "postgres://localhost/tessera")
	t.Setenv("TESSERA_AUTH_SECRET", "dev-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.VerifyTimeout != 5*time.Second || cfg.QueryTimeout != 3*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.VerifyTimeout, cfg.QueryTimeout)
	}
	if cfg.RateLimitPerSecond != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("unexpected rate limits: %d %d", cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
	if cfg.UsesOIDC() {
		t.Fatal("static-secret config should not report OIDC")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("TESSERA_PG_DSN", "")
	t.Setenv("TESSERA_AUTH_SECRET", "dev-secret")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TESSERA_PG_DSN") {
		t.Fatalf("expected DSN error, got %v", err)
	}
}

func TestLoadRequiresSomeVerifier(t *testing.T) {
	t.Setenv("TESSERA_PG_DSN", "postgres://localhost/tessera")
	t.Setenv("TESSERA_AUTH_SECRET", "")
	t.Setenv("TESSERA_IDP_ISSUER_URL", "")
	t.Setenv("TESSERA_IDP_CLIENT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with no verifier configured")
	}
}

func TestLoadOIDCPair(t *testing.T) {
	t.Setenv("TESSERA_PG_DSN", "postgres://localhost/tessera")
	t.Setenv("TESSERA_AUTH_SECRET", "")
	t.Setenv("TESSERA_IDP_ISSUER_URL", "https://idp.example.com")
	t.Setenv("TESSERA_IDP_CLIENT_ID", "tessera-id")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.UsesOIDC() {
		t.Fatal("expected OIDC configuration")
	}

	// Issuer without client id is a misconfiguration, not a fallback.
	t.Setenv("TESSERA_IDP_CLIENT_ID", "")
	t.Setenv("TESSERA_AUTH_SECRET", "dev-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for issuer without client id")
	}
}
