package config

import "path/filepath"

// Defaults returns a config preset for the common single-Discord-bot setup.
// Secrets default to ${VAR} placeholders so a generated config file never
// contains the actual values.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:    "info",
			Presence:    "mentions and DMs",
			Concurrency: 4,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled: true,
				Token:   "${DISCORD_TOKEN}",
			},
			Telegram: TelegramConfig{
				Enabled: false,
				Token:   "${TELEGRAM_TOKEN}",
			},
		},
		Generation: GenerationConfig{
			APIKey: "${GEMINI_API_KEY}",
			Model:  "gemini-1.5-flash-latest",
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  filepath.Join(DefaultConfigDir(), "events.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
