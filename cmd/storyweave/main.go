package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kotvirt/storyweave/ai"
	"github.com/kotvirt/storyweave/ai/cache"
	"github.com/kotvirt/storyweave/ai/judge"
	"github.com/kotvirt/storyweave/ai/llm"
	"github.com/kotvirt/storyweave/ai/matcher"
	"github.com/kotvirt/storyweave/bot"
	"github.com/kotvirt/storyweave/internal/profile"
	"github.com/kotvirt/storyweave/internal/version"
	"github.com/kotvirt/storyweave/server"
	"github.com/kotvirt/storyweave/store"
	"github.com/kotvirt/storyweave/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "storyweave",
	Short: "A digital-twin chat bot that weaves personal stories into conversations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Best effort; a missing .env just means everything comes from the
		// real environment.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := loadProfile()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		storeInstance, err := setupStore(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		aiConfig := ai.NewConfigFromProfile(instanceProfile)
		if err := aiConfig.Validate(); err != nil {
			return fmt.Errorf("invalid AI configuration: %w", err)
		}

		embedder := cache.NewCachedEmbeddingService(ai.NewEmbeddingService(&aiConfig.Embedding))
		llmService := llm.NewService(&aiConfig.LLM)

		judgmentCache, err := cache.NewJudgmentCache()
		if err != nil {
			return fmt.Errorf("failed to create judgment cache: %w", err)
		}
		judgeService := judge.NewService(llmService, judgmentCache)
		storyMatcher := matcher.New(embedder, storeInstance, judgeService)

		b := bot.New(instanceProfile.BotID, storeInstance, storyMatcher, llmService)
		if err := b.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize bot: %w", err)
		}

		telegram, err := bot.NewTelegram(instanceProfile.TelegramToken, b)
		if err != nil {
			return fmt.Errorf("failed to connect to Telegram: %w", err)
		}

		healthServer := server.New(instanceProfile)
		go func() {
			if err := healthServer.Start(); err != nil {
				slog.Error("health server failed", "error", err)
			}
		}()

		// Trigger graceful shutdown on SIGINT or SIGTERM. SIGTERM is what
		// systemd and kubernetes send.
		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			sig := <-c
			slog.Info("shutting down", "signal", sig.String())
			cancel()
		}()

		go llmService.Warmup(ctx)

		slog.Info("storyweave started",
			"version", version.String(),
			"bot_id", instanceProfile.BotID,
			"mode", instanceProfile.Mode,
		)

		err = telegram.Start(ctx)

		shutdownCtx := context.Background()
		if shutdownErr := healthServer.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("health server shutdown failed", "error", shutdownErr)
		}
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func loadProfile() *profile.Profile {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		DSN:     viper.GetString("dsn"),
		BotID:   viper.GetString("bot-id"),
		Version: version.String(),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	return instanceProfile
}

// setupStore opens the database, runs migrations, and wraps the driver.
func setupStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return storeInstance, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the health/metrics server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of the health/metrics server")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("bot-id", "", "identity of the persona this process serves")

	for _, flag := range []string{"mode", "addr", "port", "dsn", "bot-id"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("storyweave")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(initEmbeddingsCmd)
	rootCmd.AddCommand(importStoriesCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of storyweave",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.StringFull())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
