package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("wrong poll interval: %v", cfg.PollInterval())
	}
	if cfg.SnapshotGap() != 1500*time.Millisecond {
		t.Errorf("wrong snapshot gap: %v", cfg.SnapshotGap())
	}
	if cfg.IdentityStaleTTL() != 30*time.Second {
		t.Errorf("wrong identity stale TTL: %v", cfg.IdentityStaleTTL())
	}
	if cfg.Currency != "gold" || cfg.LogEncoding != "utf-8" {
		t.Errorf("wrong defaults: %+v", cfg)
	}
	if cfg.PriceSync.Enabled {
		t.Error("price sync must be off by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.DatabasePath != "loottrack.db" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loottrack.yaml")
	content := `
log_path: /games/Player.log
log_encoding: windows-1252
poll_interval_ms: 250
price_sync:
  enabled: true
  base_url: https://prices.example.com
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LogPath != "/games/Player.log" || cfg.LogEncoding != "windows-1252" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Errorf("wrong poll interval: %v", cfg.PollInterval())
	}
	if !cfg.PriceSync.Enabled || cfg.PriceSync.BaseURL != "https://prices.example.com" {
		t.Errorf("price sync not applied: %+v", cfg.PriceSync)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Currency != "gold" || cfg.SnapshotGapMS != 1500 {
		t.Errorf("defaults clobbered: %+v", cfg)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loottrack.yaml")
	if err := os.WriteFile(path, []byte("season: s1\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("LOOTTRACK_SEASON", "s2")
	t.Setenv("LOOTTRACK_SYNC_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Season != "s2" {
		t.Errorf("env override lost: %s", cfg.Season)
	}
	if !cfg.PriceSync.Enabled {
		t.Error("boolean env override lost")
	}
}

func TestValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loottrack.yaml")
	if err := os.WriteFile(path, []byte("log_encoding: ebcdic\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported encoding")
	}

	// Nonsense intervals fall back to defaults instead of erroring.
	if err := os.WriteFile(path, []byte("poll_interval_ms: -5\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.PollIntervalMS != 500 {
		t.Errorf("negative interval not reset: %d", cfg.PollIntervalMS)
	}
}

func TestMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loottrack.yaml")
	if err := os.WriteFile(path, []byte("log_path: [unclosed\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
