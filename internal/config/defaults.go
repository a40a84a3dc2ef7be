package config

// Defaults returns the baseline configuration. Credential fields hold
// ${VAR} placeholders so a freshly written config file picks values up
// from the environment (or a .env file) without editing.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Production: false,
			LogLevel:   "info",
			StorePath:  "~/.relaybot/db.json",
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey: "${OPENAI_API_KEY}",
				Model:  "gpt-4.1",
			},
			Google: ProviderConfig{
				APIKey: "${GOOGLE_API_KEY}",
				Model:  "gemini-2.5-pro",
			},
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled:            true,
				Token:              "${BOT_TOKEN}",
				AdminUserID:        "${ADMIN_USER_ID}",
				DevelopmentGuildID: "${DEVELOPMENT_SERVER_ID}",
			},
			Telegram: TelegramConfig{
				Enabled: false,
				Token:   "${TELEGRAM_BOT_TOKEN}",
			},
		},
		Personas: PersonasConfig{
			Dir: "~/.relaybot/personas",
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  "~/.relaybot/audit.db",
		},
	}
}
