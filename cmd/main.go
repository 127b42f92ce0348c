package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/tick-trader/internal/collector"
	"github.com/amirphl/tick-trader/internal/config"
	"github.com/amirphl/tick-trader/internal/db"
	"github.com/amirphl/tick-trader/internal/exchange"
	"github.com/amirphl/tick-trader/internal/journal"
	"github.com/amirphl/tick-trader/internal/notifier"
	"github.com/amirphl/tick-trader/internal/tfutils"
)

func main() {
	cfg := config.MustLoadConfig()
	durs, err := cfg.ParseDurations()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	storage := openStorage(ctx, cfg)
	defer storage.Close()

	var notif notifier.Notifier = notifier.NopNotifier{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notif = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		log.Println("Telegram notifications enabled")
	}

	feed := exchange.NewGMOFeed(cfg.Symbol, cfg.FeedBuffer)

	coll, err := collector.New(collector.Config{
		Symbol:            cfg.Symbol,
		Timeframe:         durs.Timeframe,
		RingLength:        cfg.RingLength,
		RingDir:           cfg.RingDir,
		SnapshotTimeframe: durs.SnapshotTimeframe,
		PriceExp:          int32(cfg.PriceExp),
		FlushSchedule:     tfutils.NewSchedule(durs.FlushInterval, 0),
	}, feed, storage, notif)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}
	defer coll.Close()

	if err := storage.LogEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        "system",
		Description: "startup",
		Data:        map[string]any{"symbol": cfg.Symbol, "timeframe": cfg.Timeframe},
	}); err != nil {
		log.Printf("Failed to journal startup: %v", err)
	}

	log.Printf("Collecting %s (timeframe %s, ring %d slots)", cfg.Symbol, cfg.Timeframe, cfg.RingLength)
	if err := coll.Run(ctx); err != nil {
		log.Printf("Collector stopped: %v", err)
	}

	stats := coll.GetStats()
	log.Printf("Shutdown: %d trades, %d book updates, %d snapshots, %d fired orders",
		stats.Trades, stats.BookUpdates, stats.Snapshots, stats.FiredOrders)
}

// openStorage connects to Postgres when a connection string is configured and
// falls back to the in-memory store otherwise.
func openStorage(ctx context.Context, cfg config.Config) db.Storage {
	if cfg.DBConnStr == "" {
		log.Println("No DB_CONN_STR set, using in-memory storage")
		return db.NewMemoryDB()
	}

	pg, err := db.New(db.Config{
		ConnStr: cfg.DBConnStr,
		MaxOpen: cfg.DBMaxOpen,
		MaxIdle: cfg.DBMaxIdle,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.RunMigration {
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations applied")
	}
	return pg
}
