package config

import (
	"os"
	"path/filepath"
	"testing"

	"nexusgreen.org/internal/access"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"NEXUS_HTTP_ADDR", "NEXUS_UPSTREAM_URL", "NEXUS_PUBLIC_URL",
		"NEXUS_PG_DSN", "NEXUS_ROLES_PATH", "NEXUS_BROWSER_URL",
		"NEXUS_RATE_BURST", "NEXUS_RATE_PER_SEC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.UpstreamURL != "http://localhost:3000" {
		t.Fatalf("unexpected upstream: %s", cfg.UpstreamURL)
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Fatalf("unexpected public url: %s", cfg.PublicURL)
	}
	if cfg.RateBurst != 20 || cfg.RatePerSec != 10 {
		t.Fatalf("unexpected rate defaults: %d %d", cfg.RateBurst, cfg.RatePerSec)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NEXUS_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("NEXUS_PG_DSN", "postgres://portal@localhost/portal")
	t.Setenv("NEXUS_RATE_BURST", "50")
	t.Setenv("NEXUS_RATE_PER_SEC", "bogus")
	os.Unsetenv("NEXUS_PUBLIC_URL")

	cfg := Load()
	if cfg.HTTPAddr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.PublicURL != "http://localhost:9000" {
		t.Fatalf("unexpected public url: %s", cfg.PublicURL)
	}
	if cfg.PGDSN != "postgres://portal@localhost/portal" {
		t.Fatalf("unexpected dsn: %s", cfg.PGDSN)
	}
	if cfg.RateBurst != 50 {
		t.Fatalf("unexpected burst: %d", cfg.RateBurst)
	}
	if cfg.RatePerSec != 10 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RatePerSec)
	}
}

func TestLoadRoleDefaultsOverlaysBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	doc := `roles:
  - name: customer
    permissions:
      - resource: dashboard
        action: read
        scope: own
      - resource: export
        action: create
        scope: own
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write roles file: %v", err)
	}

	defaults, err := LoadRoleDefaults(path)
	if err != nil {
		t.Fatalf("LoadRoleDefaults: %v", err)
	}
	customer := defaults[access.RoleCustomer]
	if len(customer) != 2 || customer[0].Resource != "dashboard" {
		t.Fatalf("file entry not applied: %v", customer)
	}
	admin := defaults[access.RoleSuperAdmin]
	if len(admin) == 0 || admin[0].Resource != access.Wildcard {
		t.Fatalf("builtin defaults not preserved: %v", admin)
	}
}

func TestLoadRoleDefaultsRejectsUnknownRole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	doc := `roles:
  - name: intruder
    permissions: []
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write roles file: %v", err)
	}
	if _, err := LoadRoleDefaults(path); err == nil {
		t.Fatal("expected unknown role error")
	}
}
