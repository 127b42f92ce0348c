package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/amirphl/tick-trader/internal/journal"
	"github.com/amirphl/tick-trader/internal/orderbook"
)

// PostgresDB implements Storage backed by Postgres/TimescaleDB.
type PostgresDB struct {
	db *sql.DB
}

// Config holds the database connection settings.
type Config struct {
	ConnStr string
	MaxOpen int
	MaxIdle int
}

// New connects to Postgres and verifies the connection.
func New(cfg Config) (*PostgresDB, error) {
	db, err := sql.Open("postgres", cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) GetDB() *sql.DB { return p.db }

func (p *PostgresDB) Close() error { return p.db.Close() }

// Migrate creates the tables when they do not exist yet.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS orderbook_bests (
	symbol    TEXT        NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	levels    JSONB       NOT NULL,
	PRIMARY KEY (symbol, ts)
);
CREATE TABLE IF NOT EXISTS events (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	event_type  TEXT        NOT NULL,
	description TEXT        NOT NULL,
	data        JSONB
);
CREATE INDEX IF NOT EXISTS events_type_ts_idx ON events (event_type, ts);
`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// SaveOrderbookBest upserts one best-of-book snapshot. The snapshot timestamp
// is a bucket boundary, so replays after a reconnect overwrite rather than
// duplicate.
func (p *PostgresDB) SaveOrderbookBest(ctx context.Context, symbol string, best orderbook.Best) error {
	levels, err := json.Marshal(best.Levels)
	if err != nil {
		return fmt.Errorf("db: marshal levels: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO orderbook_bests (symbol, ts, levels)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, ts) DO UPDATE SET levels = EXCLUDED.levels`,
		symbol, best.Timestamp, levels)
	if err != nil {
		return fmt.Errorf("db: save orderbook best: %w", err)
	}
	return nil
}

// GetOrderbookBests returns snapshots for symbol in [start, end) ordered by time.
func (p *PostgresDB) GetOrderbookBests(ctx context.Context, symbol string, start, end time.Time) ([]orderbook.Best, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ts, levels FROM orderbook_bests
		WHERE symbol = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`,
		symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("db: get orderbook bests: %w", err)
	}
	defer rows.Close()

	var bests []orderbook.Best
	for rows.Next() {
		var best orderbook.Best
		var levels []byte
		if err := rows.Scan(&best.Timestamp, &levels); err != nil {
			return nil, fmt.Errorf("db: scan orderbook best: %w", err)
		}
		if err := json.Unmarshal(levels, &best.Levels); err != nil {
			return nil, fmt.Errorf("db: unmarshal levels: %w", err)
		}
		best.Timestamp = best.Timestamp.UTC()
		bests = append(bests, best)
	}
	return bests, rows.Err()
}

// LogEvent journals one event.
func (p *PostgresDB) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("db: marshal event data: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO events (ts, event_type, description, data)
		VALUES ($1, $2, $3, $4)`,
		event.Time, event.Type, event.Description, data)
	if err != nil {
		return fmt.Errorf("db: log event: %w", err)
	}
	return nil
}

// GetEvents returns events of one type in [start, end) ordered by time.
func (p *PostgresDB) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ts, event_type, description, data FROM events
		WHERE event_type = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`,
		eventType, start, end)
	if err != nil {
		return nil, fmt.Errorf("db: get events: %w", err)
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var ev journal.Event
		var data []byte
		if err := rows.Scan(&ev.Time, &ev.Type, &ev.Description, &data); err != nil {
			return nil, fmt.Errorf("db: scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("db: unmarshal event data: %w", err)
			}
		}
		ev.Time = ev.Time.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}
