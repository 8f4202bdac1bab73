// cmd/cli/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keshon/chatdispatch/internal/bot"
	"github.com/keshon/chatdispatch/internal/config"
	"github.com/keshon/chatdispatch/internal/console"
	"github.com/keshon/chatdispatch/internal/logging"
	"github.com/keshon/chatdispatch/internal/storage"
	"github.com/keshon/chatdispatch/pkg/jobmgr"
)

func main() {
	user := flag.String("user", "1", "user id to speak as")
	thread := flag.String("thread", "g1", "thread id; ids starting with g are groups")
	admins := flag.String("group-admins", "", "comma separated admin ids reported for group threads")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("[ERR] Invalid configuration: %v", err)
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

	var groupAdmins []string
	if *admins != "" {
		groupAdmins = strings.Split(*admins, ",")
	}
	transport := console.NewTransport(os.Stdout, groupAdmins)
	state, err := bot.NewState(cfg, transport, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build dispatch engine")
	}

	jobs := jobmgr.New(ctx, logger)
	done := make(chan struct{})
	_ = jobs.Start("console", func(ctx context.Context) error {
		defer close(done)
		return console.Run(ctx, os.Stdin, os.Stdout, console.NewSession(*user, *thread), state)
	})
	_ = jobs.Start("retention", func(ctx context.Context) error {
		storage.RunRetentionCleaner(ctx, store, cfg.HistoryRetention(), time.Hour, logger)
		return nil
	})

	select {
	case <-ctx.Done():
	case <-done:
	case f := <-jobs.Failures():
		logger.Error().Err(f).Msg("background job failed")
	}

	jobs.StopAll()
	jobs.Wait()
}
