package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := []byte(`
discord_token: file-token
mode: AUDIT
storage:
  driver: postgresql
  dsn: postgres://localhost/sentinel
detection:
  exempt_role_ids: ["r1"]
  spam:
    max_messages_per_window: 9
  raid:
    action: kick_new
`)
	if err := os.WriteFile(path, yamlData, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("RAID_JOINS", "4")
	t.Setenv("EXEMPT_ROLE_IDS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "file-token" {
		t.Fatalf("unexpected token %q", cfg.DiscordToken)
	}
	if cfg.Mode != "audit" {
		t.Fatalf("expected audit mode, got %q", cfg.Mode)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Detection.Spam.MaxMessagesPerWindow != 9 {
		t.Fatalf("expected file override 9, got %d", cfg.Detection.Spam.MaxMessagesPerWindow)
	}
	if cfg.Detection.Raid.MaxJoinsPerWindow != 4 {
		t.Fatalf("expected env override 4, got %d", cfg.Detection.Raid.MaxJoinsPerWindow)
	}
	if cfg.Detection.Raid.Action != "kick_new" {
		t.Fatalf("unexpected raid action %q", cfg.Detection.Raid.Action)
	}
	if len(cfg.Detection.ExemptRoleIDs) != 1 || cfg.Detection.ExemptRoleIDs[0] != "r1" {
		t.Fatalf("unexpected exempt roles %v", cfg.Detection.ExemptRoleIDs)
	}
}

func TestHighPresetTightensDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RulePreset = "high"
	cfg.Detection.Raid.MaxJoinsPerWindow = 20
	applyPreset(&cfg)
	if cfg.Detection.Spam.MaxMessagesPerWindow != 4 {
		t.Fatalf("expected preset spam threshold 4, got %d", cfg.Detection.Spam.MaxMessagesPerWindow)
	}
	if cfg.Detection.Raid.MaxJoinsPerWindow != 20 {
		t.Fatalf("explicit raid threshold must survive preset, got %d", cfg.Detection.Raid.MaxJoinsPerWindow)
	}
	if !cfg.Detection.Scam.BlockShorteners {
		t.Fatalf("expected shorteners blocked on high preset")
	}
}

func TestAccountConfigEnabled(t *testing.T) {
	if (AccountConfig{}).Enabled() {
		t.Fatalf("empty account config must be disabled")
	}
	if !(AccountConfig{FlagDefaultAvatar: true}).Enabled() {
		t.Fatalf("avatar check should enable account analysis")
	}
}
