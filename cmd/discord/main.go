// cmd/discord/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/chatdispatch/internal/bot"
	"github.com/keshon/chatdispatch/internal/config"
	"github.com/keshon/chatdispatch/internal/discord"
	"github.com/keshon/chatdispatch/internal/logging"
	"github.com/keshon/chatdispatch/internal/storage"
	"github.com/keshon/chatdispatch/pkg/jobmgr"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("[ERR] Invalid configuration: %v", err)
	}
	if cfg.DiscordToken == "" {
		log.Fatal("[ERR] DISCORD_TOKEN is not set")
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to open storage")
	}
	defer store.Close()

	dc, err := discord.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create discord bot")
	}
	state, err := bot.NewState(cfg, dc.Transport(), store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build dispatch engine")
	}

	jobs := jobmgr.New(ctx, logger)
	_ = jobs.Start("discord", func(ctx context.Context) error {
		return dc.Run(ctx, state)
	})
	_ = jobs.Start("retention", func(ctx context.Context) error {
		storage.RunRetentionCleaner(ctx, store, cfg.HistoryRetention(), time.Hour, logger)
		return nil
	})

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case f := <-jobs.Failures():
		logger.Error().Err(f).Msg("background job failed, shutting down")
	}

	jobs.StopAll()
	jobs.Wait()
	logger.Info().Msg("discord bot exited cleanly")
}
