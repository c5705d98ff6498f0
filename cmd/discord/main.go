// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"banebot/internal/commands"
	"banebot/internal/config"
	"banebot/internal/discord"
	"banebot/internal/dispatch"
	"banebot/internal/karma"
	"banebot/internal/logging"
	"banebot/internal/storage"
	"banebot/pkg/cmd"
)

const appName = "banebot"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Str("app", appName).Stringer("config", cfg).Msg("Starting bot...")

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath, &logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	bot, err := discord.New(cfg.DiscordToken, discord.Options{
		StatusActivity: cfg.StatusActivity,
		ShutdownGrace:  cfg.ShutdownGrace,
		Logger:         &logger,
	})
	if err != nil {
		return err
	}

	votes := karma.NewService(store, bot.Messages(), karma.Options{
		Window: cfg.KarmaWindow,
		Logger: &logger,
	})

	reg := cmd.NewRegistry()
	if err := commands.Register(reg, commands.Deps{
		Prefix:      cfg.CommandPrefix,
		Karma:       votes,
		History:     store,
		Latency:     bot.Latency,
		Permissions: bot.Permissions(),
		Recorder:    store,
		Logger:      &logger,
	}); err != nil {
		return err
	}

	dispatcher, err := dispatch.New(reg, bot.Sender(), dispatch.Options{
		Prefix:       cfg.CommandPrefix,
		Timeout:      cfg.HandlerTimeout,
		Workers:      cfg.WorkerLimit,
		ReplyUnknown: cfg.ReplyUnknown,
		ReplyErrors:  cfg.ReplyErrors,
		AllowDM:      cfg.AllowDM,
		IgnoreBots:   cfg.IgnoreBots,
		Logger:       &logger,
	})
	if err != nil {
		return err
	}
	bot.Attach(dispatcher, votes)

	logger.Info().Int("commands", reg.Len()).Str("prefix", cfg.CommandPrefix).Msg("Commands registered")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil {
		return fmt.Errorf("bot run error: %w", err)
	}

	logger.Info().Msg("Discord bot exited cleanly")
	return nil
}
