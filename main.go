package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gofrs/flock"
	telego "github.com/mymmrac/telego"

	"vk-tg-mirror/internal/auth"
	"vk-tg-mirror/internal/config"
	"vk-tg-mirror/internal/mirror"
	"vk-tg-mirror/internal/storage"
	"vk-tg-mirror/internal/telegram"
	"vk-tg-mirror/internal/vk"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     cfg.Version,
		Debug:       cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// The store is created before the lock so the lock file's directory
	// exists on a fresh deployment.
	cursors, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}

	// Acquire the run-level lock so the cursor file has a single writer.
	runLock := flock.New(cfg.StoragePath + ".lock")
	locked, err := runLock.TryLock()
	if err != nil {
		log.Fatalf("Failed to acquire run lock: %v", err)
	}
	if !locked {
		log.Fatal("Another mirror run is already in progress, exiting.")
	}
	defer func() {
		if err := runLock.Unlock(); err != nil {
			log.Printf("Error releasing run lock: %v", err)
		}
	}()

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Bot and VK client initialization ---
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	tempDir, err := os.MkdirTemp("", "vk-tg-mirror-*")
	if err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	vkClient, err := vk.NewClient(cfg.VKToken, tempDir, cfg.Debug)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create VK client: %v", err)
	}

	// Warn early about channels the bot cannot post to; the per-pair error
	// isolation in the syncer handles them again at publish time.
	checker, err := auth.NewChannelChecker(bot)
	if err != nil {
		log.Fatal(err)
	}
	for _, pair := range cfg.Pairs {
		canPost, err := checker.CanPost(ctx, pair.ChannelID)
		if err != nil {
			log.Printf("Warning: could not verify access to channel %d: %v", pair.ChannelID, err)
			continue
		}
		if !canPost {
			log.Printf("Warning: bot is not an admin of channel %d, publishing will fail", pair.ChannelID)
		}
	}

	// --- Pipeline wiring ---
	fetcher, err := mirror.NewFetcher(vkClient, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	resolver, err := mirror.NewResolver(vkClient, vkClient, telegram.MaxUploadSizeMB)
	if err != nil {
		log.Fatal(err)
	}
	converter, err := mirror.NewConverter(resolver, telegram.MaxMessageTextLen)
	if err != nil {
		log.Fatal(err)
	}
	publisher, err := telegram.NewPublisher(bot, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}

	pairs := make([]mirror.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pairs = append(pairs, mirror.Pair{
			Source:        p.Source,
			ChannelID:     p.ChannelID,
			SeedTimestamp: p.SeedTimestamp,
		})
	}

	syncer, err := mirror.NewSyncer(fetcher, converter, publisher, cursors, pairs)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	// A single run by default (cron-style); SYNC_INTERVAL turns the process
	// into its own scheduler.
	syncer.Run(ctx)
	if cfg.SyncInterval == "" {
		log.Println("Run complete.")
		return
	}

	interval, err := time.ParseDuration(cfg.SyncInterval)
	if err != nil || interval <= 0 {
		log.Fatalf("Invalid SYNC_INTERVAL %q: %v", cfg.SyncInterval, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down.")
			return
		case <-ticker.C:
			syncer.Run(ctx)
		}
	}
}
