// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/amirphl/tick-trader/internal/journal"
	"github.com/amirphl/tick-trader/internal/orderbook"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	SaveOrderbookBest(ctx context.Context, symbol string, best orderbook.Best) error
	GetOrderbookBests(ctx context.Context, symbol string, start, end time.Time) ([]orderbook.Best, error)
	journal.Journaler
	Close() error
}
