package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("STRATA_ADDR", ":9090")
	t.Setenv("STRATA_DB_HOST", "db.internal")
	t.Setenv("STRATA_DB_PORT", "5433")
	t.Setenv("STRATA_DB_PASSWORD", "hunter2")
	t.Setenv("STRATA_LOG_QUERIES", "true")

	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Database.Host = "localhost"
	cfg.applyEnvironment()

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("Database.Password = %q, want hunter2", cfg.Database.Password)
	}
	if !cfg.Logging.Queries {
		t.Error("Logging.Queries should be true")
	}
}

func TestApplyEnvironmentIgnoresUnset(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "db.internal"
	cfg.applyEnvironment()

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
}

func TestApplyEnvironmentIgnoresMalformedValues(t *testing.T) {
	t.Setenv("STRATA_DB_PORT", "not-a-port")
	t.Setenv("STRATA_DEBUG", "maybe")

	cfg := &Config{}
	cfg.Database.Port = 5432
	cfg.applyEnvironment()

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432 (malformed override ignored)", cfg.Database.Port)
	}
	if cfg.Server.Debug {
		t.Error("Server.Debug should stay false on a malformed override")
	}
}

func TestLoadFromPathEnvironmentWins(t *testing.T) {
	t.Setenv("STRATA_DB_NAME", "survey_2026")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	partial := "database:\n  host: db.internal\n  name: strata\n"
	if err := os.WriteFile(configPath, []byte(partial), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	loaded, _, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}

	if loaded.Database.Name != "survey_2026" {
		t.Errorf("Database.Name = %q, want survey_2026 (environment wins)", loaded.Database.Name)
	}
	// File values without an override stay put
	if loaded.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", loaded.Database.Host)
	}
}
