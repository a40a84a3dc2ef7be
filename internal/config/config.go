package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"relaybot/internal/domain"
)

// Config is the root configuration for the relay bot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Personas  PersonasConfig  `json:"personas"`
	Audit     AuditConfig     `json:"audit"`
}

type GeneralConfig struct {
	// Production lifts the development-server gate. Outside production
	// the bot only answers inside the configured development guild.
	Production   bool   `json:"production"`
	LogLevel     string `json:"logLevel"`
	StorePath    string `json:"storePath"`
	SystemPrompt string `json:"systemPrompt,omitempty"` // override for the built-in prompt
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
	Google ProviderConfig `json:"google"`
}

// ProviderConfig configures one LLM backend. An empty APIKey disables
// the provider (warning at startup, not an error).
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// AdminUserID gates the privileged slash commands.
	AdminUserID string `json:"adminUserId,omitempty"`
	// DevelopmentGuildID is the only guild answered outside production.
	DevelopmentGuildID string `json:"developmentGuildId,omitempty"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token"`
	AdminUserID string `json:"adminUserId,omitempty"`
}

type PersonasConfig struct {
	Dir string `json:"dir,omitempty"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
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

	cfg.General.StorePath = ExpandPath(cfg.General.StorePath)
	cfg.Personas.Dir = ExpandPath(cfg.Personas.Dir)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)

	clearUnexpanded(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is
// unset or empty. An unset variable without a default keeps the
// original placeholder; credential fields that still hold a placeholder
// after expansion are cleared by clearUnexpanded.
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
			return match
		}
		return val
	})
}

// clearUnexpanded blanks credential fields whose ${VAR} placeholder was
// not substituted, so an unset optional key reads as "not configured"
// instead of a garbage credential.
func clearUnexpanded(cfg *Config) {
	clear := func(s *string) {
		if envVarPattern.MatchString(*s) {
			*s = ""
		}
	}
	clear(&cfg.Providers.OpenAI.APIKey)
	clear(&cfg.Providers.Google.APIKey)
	clear(&cfg.Channels.Discord.Token)
	clear(&cfg.Channels.Discord.AdminUserID)
	clear(&cfg.Channels.Discord.DevelopmentGuildID)
	clear(&cfg.Channels.Telegram.Token)
	clear(&cfg.Channels.Telegram.AdminUserID)
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

// Validate checks that the config has valid values. The transport token
// is the one hard requirement: a bot with no channel credential cannot
// do anything.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.StorePath == "" {
		errs = append(errs, "general.storePath must be set")
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token must be provided (set BOT_TOKEN)")
	}
	if cfg.Channels.Discord.Enabled && !cfg.General.Production && cfg.Channels.Discord.DevelopmentGuildID == "" {
		errs = append(errs, "channels.discord.developmentGuildId must be provided when not running in production mode")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token must be provided")
	}
	if !cfg.Channels.Discord.Enabled && !cfg.Channels.Telegram.Enabled {
		errs = append(errs, "at least one channel must be enabled")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath must be set when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ProviderConfigured reports whether platform p holds a credential.
func (c *Config) ProviderConfigured(p domain.Platform) bool {
	switch p {
	case domain.PlatformOpenAI:
		return c.Providers.OpenAI.APIKey != ""
	case domain.PlatformGoogle:
		return c.Providers.Google.APIKey != ""
	}
	return false
}

// DefaultPlatformFallback reports which platform a fresh store should
// default to given the configured providers: openai unless only google
// holds a credential.
func (c *Config) DefaultPlatformFallback() domain.Platform {
	if c.Providers.OpenAI.APIKey == "" && c.Providers.Google.APIKey != "" {
		return domain.PlatformGoogle
	}
	return domain.PlatformOpenAI
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
