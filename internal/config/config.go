// Package config
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
symbol: "BTC_JPY"
timeframe: "1m"
ring_length: 300
ring_dir: "/var/tmp"
snapshot_timeframe: "1s"
price_exp: 0
flush_interval: "5s"
feed_buffer: 1024
db_conn_str: "postgres://..."
db_max_open: 10
db_max_idle: 5
telegram_token: "..."
telegram_chat_id: "..."
*/

type Config struct {
	Symbol            string `yaml:"symbol"`
	Timeframe         string `yaml:"timeframe"`
	RingLength        int    `yaml:"ring_length"`
	RingDir           string `yaml:"ring_dir"`
	SnapshotTimeframe string `yaml:"snapshot_timeframe"`
	PriceExp          int    `yaml:"price_exp"`
	FlushInterval     string `yaml:"flush_interval"`
	FeedBuffer        int    `yaml:"feed_buffer"`
	DBConnStr         string `yaml:"db_conn_str"`
	DBMaxOpen         int    `yaml:"db_max_open"`
	DBMaxIdle         int    `yaml:"db_max_idle"`
	RunMigration      bool   `yaml:"run_migration"`
	TelegramToken     string `yaml:"telegram_token"`
	TelegramChatID    string `yaml:"telegram_chat_id"`
}

// Durations holds the parsed time settings.
type Durations struct {
	Timeframe         time.Duration
	SnapshotTimeframe time.Duration
	FlushInterval     time.Duration
}

// ParseDurations validates and parses the config's duration strings.
func (c Config) ParseDurations() (Durations, error) {
	tf, err := time.ParseDuration(c.Timeframe)
	if err != nil {
		return Durations{}, fmt.Errorf("config: timeframe: %w", err)
	}
	stf, err := time.ParseDuration(c.SnapshotTimeframe)
	if err != nil {
		return Durations{}, fmt.Errorf("config: snapshot_timeframe: %w", err)
	}
	fi, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		return Durations{}, fmt.Errorf("config: flush_interval: %w", err)
	}
	if tf < time.Second || stf < time.Second {
		return Durations{}, fmt.Errorf("config: timeframes must be at least one second")
	}
	return Durations{Timeframe: tf, SnapshotTimeframe: stf, FlushInterval: fi}, nil
}

// MustLoadConfig parses flags, optionally merges a YAML file, and fills
// secrets from the environment. Exits on invalid input.
func MustLoadConfig() Config {
	symbol := flag.String("symbol", "BTC_JPY", "Trading symbol")
	timeframe := flag.String("timeframe", "1m", "Kline timeframe (e.g. 1s, 1m)")
	ringLength := flag.Int("ring-length", 300, "Number of kline slots")
	ringDir := flag.String("ring-dir", "/var/tmp", "Directory for kline ring files")
	snapshotTimeframe := flag.String("snapshot-timeframe", "1s", "Orderbook snapshot bucket width")
	priceExp := flag.Int("price-exp", 0, "Price exponent (e.g. -2 for cent precision)")
	flushInterval := flag.String("flush-interval", "5s", "Ring flush cadence")
	feedBuffer := flag.Int("feed-buffer", 1024, "Feed channel buffer size")
	dbMaxOpen := flag.Int("db-max-open", 10, "Max open DB connections")
	dbMaxIdle := flag.Int("db-max-idle", 5, "Max idle DB connections")
	runMigration := flag.Bool("migrate", false, "Run DB migrations on startup")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	// secrets come from .env / the environment, never from flags
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: .env not loaded: %v", err)
	}

	cfg := Config{
		Symbol:            *symbol,
		Timeframe:         *timeframe,
		RingLength:        *ringLength,
		RingDir:           *ringDir,
		SnapshotTimeframe: *snapshotTimeframe,
		PriceExp:          *priceExp,
		FlushInterval:     *flushInterval,
		FeedBuffer:        *feedBuffer,
		DBMaxOpen:         *dbMaxOpen,
		DBMaxIdle:         *dbMaxIdle,
		RunMigration:      *runMigration,
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Failed to parse config file: %v", err)
		}
	}

	if cfg.DBConnStr == "" {
		cfg.DBConnStr = os.Getenv("DB_CONN_STR")
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.TelegramChatID == "" {
		cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}

	if _, err := cfg.ParseDurations(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}
