package db

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/tick-trader/internal/journal"
	"github.com/amirphl/tick-trader/internal/orderbook"
)

// MemoryDB is an in-memory Storage used in tests and dry runs.
type MemoryDB struct {
	mu     sync.RWMutex
	bests  map[string][]orderbook.Best
	events []journal.Event
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{bests: make(map[string][]orderbook.Best)}
}

func (m *MemoryDB) GetDB() *sql.DB { return nil }

func (m *MemoryDB) Close() error { return nil }

func (m *MemoryDB) SaveOrderbookBest(_ context.Context, symbol string, best orderbook.Best) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// upsert on the bucket timestamp, matching the Postgres conflict rule
	for i, b := range m.bests[symbol] {
		if b.Timestamp.Equal(best.Timestamp) {
			m.bests[symbol][i] = best
			return nil
		}
	}
	m.bests[symbol] = append(m.bests[symbol], best)
	return nil
}

func (m *MemoryDB) GetOrderbookBests(_ context.Context, symbol string, start, end time.Time) ([]orderbook.Best, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []orderbook.Best
	for _, b := range m.bests[symbol] {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryDB) LogEvent(_ context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryDB) GetEvents(_ context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, ev := range m.events {
		if ev.Type == eventType && !ev.Time.Before(start) && ev.Time.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}
