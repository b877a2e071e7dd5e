// Package config loads and validates the gembot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for gembot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Channels   ChannelsConfig   `json:"channels"`
	Generation GenerationConfig `json:"generation"`
	Replies    RepliesConfig    `json:"replies"`
	Store      StoreConfig      `json:"store"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel    string `json:"logLevel"`
	Presence    string `json:"presence,omitempty"`    // activity shown on the bot profile
	Concurrency int    `json:"concurrency,omitempty"` // max events processed in parallel
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to a specific guild
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"` // optional: restrict to these user IDs
}

// GenerationConfig configures the text generation backend.
type GenerationConfig struct {
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type RepliesConfig struct {
	TemplatesPath string `json:"templatesPath,omitempty"` // optional YAML overriding canned replies
}

// StoreConfig configures the local event log.
type StoreConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.gembot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gembot"
	}
	return filepath.Join(home, ".gembot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Replies.TemplatesPath = ExpandPath(cfg.Replies.TemplatesPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ResolveSecrets fills the platform token and the generation API key from the
// environment when the config left them empty or unexpanded, then fails if any
// required secret is still missing. Called once at startup, before anything
// connects.
func (cfg *Config) ResolveSecrets() error {
	resolve := func(val, envVar string) string {
		if val == "" || strings.HasPrefix(val, "${") {
			return os.Getenv(envVar)
		}
		return val
	}

	cfg.Channels.Discord.Token = resolve(cfg.Channels.Discord.Token, "DISCORD_TOKEN")
	cfg.Channels.Telegram.Token = resolve(cfg.Channels.Telegram.Token, "TELEGRAM_TOKEN")
	cfg.Generation.APIKey = resolve(cfg.Generation.APIKey, "GEMINI_API_KEY")

	var missing []string
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if cfg.Generation.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s (set the environment variables or fill the config)", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Concurrency < 0 || cfg.General.Concurrency > 64 {
		errs = append(errs, "general.concurrency must be between 0 and 64")
	}

	if cfg.Generation.Model == "" {
		errs = append(errs, "generation.model must not be empty")
	}

	if !cfg.Channels.Discord.Enabled && !cfg.Channels.Telegram.Enabled {
		errs = append(errs, "at least one channel must be enabled")
	}

	if cfg.Store.Enabled && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath must not be empty when store is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must not be empty when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
