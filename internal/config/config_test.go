package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"general": {"logLevel": "debug"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("logLevel not applied: %q", cfg.General.LogLevel)
	}
	if cfg.Generation.Model != "gemini-1.5-flash-latest" {
		t.Fatalf("default model lost: %q", cfg.Generation.Model)
	}
	if !cfg.Channels.Discord.Enabled {
		t.Fatal("discord must stay enabled by default")
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `{"general": {"logLevel": "loud"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_NoChannelEnabledRejected(t *testing.T) {
	path := writeConfig(t, `{"channels": {"discord": {"enabled": false}, "telegram": {"enabled": false}}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for no enabled channel")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GEMBOT_TEST_TOKEN", "tok-123")

	got := ExpandEnvVars(`{"token": "${GEMBOT_TEST_TOKEN}"}`)
	if !strings.Contains(got, "tok-123") {
		t.Fatalf("variable not expanded: %s", got)
	}

	got = ExpandEnvVars(`${GEMBOT_TEST_UNSET:-fallback}`)
	if got != "fallback" {
		t.Fatalf("default not applied: %s", got)
	}

	// Unset without default stays as-is.
	got = ExpandEnvVars(`${GEMBOT_TEST_UNSET}`)
	if got != "${GEMBOT_TEST_UNSET}" {
		t.Fatalf("unset variable must be kept: %s", got)
	}
}

func TestResolveSecrets_FromEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "d-tok")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg := Defaults()
	if err := cfg.ResolveSecrets(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Channels.Discord.Token != "d-tok" {
		t.Fatalf("discord token not resolved: %q", cfg.Channels.Discord.Token)
	}
	if cfg.Generation.APIKey != "g-key" {
		t.Fatalf("api key not resolved: %q", cfg.Generation.APIKey)
	}
}

func TestResolveSecrets_MissingIsFatal(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := Defaults()
	err := cfg.ResolveSecrets()
	if err == nil {
		t.Fatal("expected error for missing secrets")
	}
	if !strings.Contains(err.Error(), "DISCORD_TOKEN") || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("error must name the missing secrets: %v", err)
	}
}

func TestResolveSecrets_DisabledChannelNotRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "d-tok")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("TELEGRAM_TOKEN", "")

	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = false
	if err := cfg.ResolveSecrets(); err != nil {
		t.Fatalf("disabled channel must not require a token: %v", err)
	}
}
