package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.Path != "chorekeeper.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Scan.Interval != time.Minute {
		t.Errorf("Scan.Interval = %v, want 1m", cfg.Scan.Interval)
	}
	if cfg.Auth.TokenTTL != 30*24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorekeeper.yaml")
	content := `
server:
  addr: ":9090"
  allowed_origins: ["home.example.com"]
database:
  path: /var/lib/chorekeeper/data.db
scan:
  interval: 30s
backup:
  s3:
    bucket: snaps
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHOREKEEPER_LOG_LEVEL", "debug")
	t.Setenv("CHOREKEEPER_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should override file: Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Database.Path != "/var/lib/chorekeeper/data.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Scan.Interval != 30*time.Second {
		t.Errorf("Scan.Interval = %v, want 30s", cfg.Scan.Interval)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "home.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Backup.S3.Bucket != "snaps" || cfg.Backup.S3.Region != "us-east-1" {
		t.Errorf("Backup.S3 = %+v", cfg.Backup.S3)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "auth.secret is required") {
		t.Fatalf("Validate() = %v, want missing secret", err)
	}

	cfg.Auth.Secret = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	cfg.Backup.S3.Bucket = "snaps"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for S3 bucket without credentials")
	}
}
