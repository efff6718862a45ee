package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
auth:
  jwt_secret: secret
contract_service:
  endpoint: http://contracts.local
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 50 {
		t.Errorf("expected default rate limit, got %+v", cfg.RateLimit)
	}
	if cfg.Auth.JWTSecret != "secret" {
		t.Errorf("expected secret from file, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	_, err := Load(writeConfig(t, "contract_service:\n  endpoint: http://contracts.local\n"))
	if err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestLoadRejectsMissingContractEndpoint(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  jwt_secret: secret\n"))
	if err == nil {
		t.Fatal("expected error for missing contract endpoint")
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DATABASE_DSN", "postgres://env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected env port, got %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("expected env secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Errorf("expected env dsn, got %q", cfg.Database.DSN)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
