package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"relaybot/internal/audit"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/persona"
	"relaybot/internal/provider"
	"relaybot/internal/relay"
	"relaybot/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; config placeholders expand from whatever the
	// environment ends up holding.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "relaybot: a conversational relay between chat servers and LLM providers",
		Long:  "relaybot listens for mentions and slash commands on Discord and Telegram,\nforwards them to OpenAI or Gemini, and relays the answers back into the thread.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.relaybot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(modelCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect the enabled channels and answer until interrupted",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.General.StorePath), 0o755); err != nil {
		return err
	}
	st, err := store.Open(cfg.General.StorePath, logger)
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	// The stored default is admin-owned; only step on it when its
	// provider holds no credential and would never resolve.
	if stored := st.DefaultPlatform(); !cfg.ProviderConfigured(stored) {
		if fallback := cfg.DefaultPlatformFallback(); fallback != stored {
			if _, err := st.SetDefaultPlatform(fallback); err == nil {
				logger.Info("stored default model has no credential, adjusting",
					"from", string(stored), "to", string(fallback))
			}
		}
	}

	registry := provider.NewRegistry(provider.RegistryConfig{
		OpenAIKey:     cfg.Providers.OpenAI.APIKey,
		OpenAIAPIBase: cfg.Providers.OpenAI.APIBase,
		OpenAIModel:   cfg.Providers.OpenAI.Model,
		GoogleKey:     cfg.Providers.Google.APIKey,
		GoogleAPIBase: cfg.Providers.Google.APIBase,
		GoogleModel:   cfg.Providers.Google.Model,
		Logger:        logger,
	})
	if avail := registry.Available(); len(avail) == 0 {
		logger.Warn("no provider configured; every request will be answered with the error message")
	} else {
		logger.Info("providers ready", "available", platformList(avail))
	}

	personas, err := persona.LoadFromDirectory(cfg.Personas.Dir, logger)
	if err != nil {
		return fmt.Errorf("personas: %w", err)
	}

	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditLog, err = audit.Open(cfg.Audit.DBPath, logger)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer auditLog.Close()
	}

	orch := relay.New(relay.Config{
		Store:        st,
		Providers:    registry,
		Personas:     personas,
		SystemPrompt: cfg.General.SystemPrompt,
		Logger:       logger,
	})

	var wg sync.WaitGroup
	started := 0

	if cfg.Channels.Discord.Enabled {
		discord := channel.NewDiscord(channel.DiscordConfig{
			Token:              cfg.Channels.Discord.Token,
			Production:         cfg.General.Production,
			DevelopmentGuildID: cfg.Channels.Discord.DevelopmentGuildID,
			AdminUserID:        cfg.Channels.Discord.AdminUserID,
			Store:              st,
			Orchestrator:       orch,
			Audit:              auditLog,
			Logger:             logger,
		})
		wg.Add(1)
		started++
		go func() {
			defer wg.Done()
			if err := discord.Start(ctx); err != nil {
				logger.Error("discord channel error", "err", err)
				stop()
			}
		}()
	}

	if cfg.Channels.Telegram.Enabled {
		telegram := channel.NewTelegram(channel.TelegramConfig{
			Token:        cfg.Channels.Telegram.Token,
			AdminUserID:  cfg.Channels.Telegram.AdminUserID,
			Store:        st,
			Orchestrator: orch,
			Audit:        auditLog,
			Logger:       logger,
		})
		wg.Add(1)
		started++
		go func() {
			defer wg.Done()
			if err := telegram.Start(ctx); err != nil {
				logger.Error("telegram channel error", "err", err)
				stop()
			}
		}()
	}

	if started == 0 {
		return fmt.Errorf("no channels enabled")
	}

	logger.Info("relaybot started, press Ctrl+C to stop",
		"version", version,
		"production", cfg.General.Production,
	)

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()

	if err := st.Flush(); err != nil {
		logger.Error("final store flush failed", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured providers and store state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := store.Open(cfg.General.StorePath, logger)
			if err != nil {
				return fmt.Errorf("conversation store: %w", err)
			}
			registry := provider.NewRegistry(provider.RegistryConfig{
				OpenAIKey: cfg.Providers.OpenAI.APIKey,
				GoogleKey: cfg.Providers.Google.APIKey,
				Logger:    logger,
			})
			fmt.Printf("config:         %s\n", cfgPath)
			fmt.Printf("store:          %s\n", cfg.General.StorePath)
			fmt.Printf("conversations:  %d\n", st.ConversationCount())
			fmt.Printf("default model:  %s\n", st.DefaultPlatform())
			fmt.Printf("available:      %s\n", platformList(registry.Available()))
			return nil
		},
	}
}

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model [platform]",
		Short: "Show or set the stored default model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := store.Open(cfg.General.StorePath, logger)
			if err != nil {
				return fmt.Errorf("conversation store: %w", err)
			}
			if len(args) == 0 {
				fmt.Println(st.DefaultPlatform())
				return nil
			}
			previous, err := st.SetDefaultPlatform(domain.Platform(args[0]))
			if err != nil {
				return err
			}
			if err := st.Flush(); err != nil {
				return fmt.Errorf("store flush: %w", err)
			}
			logger.Info("default model changed", "from", string(previous), "to", args[0])
			return nil
		},
	}
	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func platformList(ps []domain.Platform) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, string(p))
	}
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
