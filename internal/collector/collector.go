// Package collector wires the exchange feeds into the market-state
// structures: trade ticks into the kline ring and the reserved-orders
// manager, order-book diffs into the orderbook repository, plus a periodic
// flush of the ring to its backing file.
//
// The four structures are owned here and passed by handle, each guarded by
// its own read-write lock. Updates per symbol are bounded by exchange
// throughput, so serializing through the locks is acceptable.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/tick-trader/internal/db"
	"github.com/amirphl/tick-trader/internal/exchange"
	"github.com/amirphl/tick-trader/internal/journal"
	"github.com/amirphl/tick-trader/internal/kline"
	"github.com/amirphl/tick-trader/internal/market"
	"github.com/amirphl/tick-trader/internal/notifier"
	"github.com/amirphl/tick-trader/internal/orderbook"
	"github.com/amirphl/tick-trader/internal/reserved"
	"github.com/amirphl/tick-trader/internal/tfutils"
)

// Config holds collector settings for one symbol.
type Config struct {
	Symbol            string
	Timeframe         time.Duration
	RingLength        int
	RingDir           string
	SnapshotTimeframe time.Duration
	PriceExp          int32
	FlushSchedule     tfutils.Schedule
}

// Stats is a point-in-time view of the collector's counters.
type Stats struct {
	Trades           int64
	BookUpdates      int64
	Snapshots        int64
	ArrangeRemovals  int64
	OutOfWindow      int64
	FiredOrders      int64
	LastTradeTime    time.Time
	LastBookTime     time.Time
}

// Collector runs the feed consumers and the flush timer for one symbol.
type Collector struct {
	cfg      Config
	feed     exchange.Feed
	storage  db.Storage
	notifier notifier.Notifier

	ringMu sync.RWMutex
	ring   *kline.Ring

	bookMu sync.RWMutex
	book   *orderbook.Repository

	reservedMu sync.RWMutex
	reserved   *reserved.Manager

	// fired orders are handed to the owning strategy; nil means log only
	onFired func([]reserved.Order)

	statsMu sync.Mutex
	stats   Stats
}

// New builds a collector, opening (or creating) the kline ring file.
func New(cfg Config, feed exchange.Feed, storage db.Storage, notif notifier.Notifier) (*Collector, error) {
	ring, err := kline.New(cfg.RingDir, cfg.Symbol, cfg.Timeframe, cfg.RingLength)
	if err != nil {
		return nil, err
	}
	return &Collector{
		cfg:      cfg,
		feed:     feed,
		storage:  storage,
		notifier: notif,
		ring:     ring,
		book:     orderbook.New(cfg.SnapshotTimeframe, cfg.PriceExp),
		reserved: reserved.NewManager(cfg.PriceExp),
	}, nil
}

// OnFired sets the callback receiving fired reserved orders. Must be called
// before Run.
func (c *Collector) OnFired(fn func([]reserved.Order)) { c.onFired = fn }

// Reserved returns the reserved-orders manager handle. Callers must not hold
// it across blocking operations; the collector locks internally.
func (c *Collector) Reserved() *reserved.Manager { return c.reserved }

// Run starts the feed and the three consumer tasks and blocks until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := c.feed.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[collector] %s: feed stopped: %v", c.cfg.Symbol, err)
		}
	}()
	go func() {
		defer wg.Done()
		c.tradeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.bookLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.flushLoop(ctx)
	}()

	wg.Wait()

	c.ringMu.Lock()
	defer c.ringMu.Unlock()
	if err := c.ring.UpdateFile(); err != nil {
		log.Printf("[collector] %s: final flush failed: %v", c.cfg.Symbol, err)
	}
	return nil
}

// Close releases the ring's backing file. Call after Run has returned.
func (c *Collector) Close() error {
	c.ringMu.Lock()
	defer c.ringMu.Unlock()
	return c.ring.Close()
}

func (c *Collector) tradeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-c.feed.Trades():
			c.handleTrades(ctx, []market.Trade{trade})
		}
	}
}

// handleTrades applies a batch in arrival order to the ring and the
// reserved-orders manager. Order matters: both keep previous-value state.
func (c *Collector) handleTrades(ctx context.Context, trades []market.Trade) {
	type ringFailure struct {
		trade market.Trade
		err   error
	}
	var failures []ringFailure

	c.ringMu.Lock()
	for _, trade := range trades {
		if err := c.ring.UpdateOHLCV(trade); err != nil {
			failures = append(failures, ringFailure{trade, err})
		}
	}
	c.ringMu.Unlock()

	for _, f := range failures {
		c.noteOutOfWindow(ctx, f.trade, f.err)
	}

	c.reservedMu.Lock()
	fired := c.reserved.TradesHandler(trades)
	c.reservedMu.Unlock()

	c.statsMu.Lock()
	c.stats.Trades += int64(len(trades))
	c.stats.FiredOrders += int64(len(fired))
	if n := len(trades); n > 0 {
		c.stats.LastTradeTime = trades[n-1].Timestamp
	}
	c.statsMu.Unlock()

	c.deliverFired(ctx, fired, "trades")
}

func (c *Collector) noteOutOfWindow(ctx context.Context, trade market.Trade, err error) {
	if !errors.Is(err, kline.ErrOutOfWindow) {
		log.Printf("[collector] %s: ring update: %v", c.cfg.Symbol, err)
		return
	}
	// recoverable: usually a timestamp-ordering bug upstream
	log.Printf("[collector] %s: %v", c.cfg.Symbol, err)
	c.statsMu.Lock()
	c.stats.OutOfWindow++
	c.statsMu.Unlock()
	c.logEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        "feed",
		Description: "trade_out_of_window",
		Data:        map[string]any{"symbol": trade.Symbol, "timestamp": trade.Timestamp},
	})
}

func (c *Collector) bookLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-c.feed.BookUpdates():
			c.handleBookUpdate(ctx, update)
		}
	}
}

func (c *Collector) handleBookUpdate(ctx context.Context, update market.BookUpdate) {
	c.bookMu.Lock()

	// snapshot before diffs, or the persisted record leaks the new bucket
	best := c.book.SnapshotOnUpdate(update.ServerTime)

	for _, side := range []market.Side{market.Buy, market.Sell} {
		for _, l := range update.BySide(side) {
			if l.Size == 0 {
				c.book.Remove(side, l.Price)
			} else {
				c.book.Insert(side, l.Price, l.Size)
			}
		}
	}

	removed := 0
	top := c.book.BestN(1)
	bid, ask := top[market.Buy][0], top[market.Sell][0]
	if bid.Size > 0 && ask.Size > 0 {
		mid := (bid.Price + ask.Price) / 2
		removed = c.book.Arrange(mid)
		if removed > 0 {
			top = c.book.BestN(1)
			bid, ask = top[market.Buy][0], top[market.Sell][0]
		}
	}
	c.bookMu.Unlock()

	if removed > 0 {
		log.Printf("[collector] %s: arrange removed %d crossed levels", c.cfg.Symbol, removed)
		c.logEvent(ctx, journal.Event{
			Time:        time.Now().UTC(),
			Type:        "book",
			Description: "arrange_removed_levels",
			Data:        map[string]any{"symbol": update.Symbol, "count": removed},
		})
	}

	if best != nil {
		if err := c.storage.SaveOrderbookBest(ctx, c.cfg.Symbol, *best); err != nil {
			log.Printf("[collector] %s: save snapshot: %v", c.cfg.Symbol, err)
		}
	}

	c.reservedMu.Lock()
	fired := c.reserved.OrderbookHandler([2]market.Level{bid, ask})
	c.reservedMu.Unlock()

	c.statsMu.Lock()
	c.stats.BookUpdates++
	c.stats.ArrangeRemovals += int64(removed)
	if best != nil {
		c.stats.Snapshots++
	}
	c.stats.FiredOrders += int64(len(fired))
	c.stats.LastBookTime = update.ServerTime
	c.statsMu.Unlock()

	c.deliverFired(ctx, fired, "orderbook")
}

func (c *Collector) flushLoop(ctx context.Context) {
	for {
		if err := c.cfg.FlushSchedule.SleepUntilNext(ctx); err != nil {
			return
		}
		c.ringMu.Lock()
		err := c.ring.UpdateFileWithShift(time.Now().UTC())
		c.ringMu.Unlock()
		if err != nil {
			log.Printf("[collector] %s: flush: %v", c.cfg.Symbol, err)
			c.logEvent(ctx, journal.Event{
				Time:        time.Now().UTC(),
				Type:        "flush",
				Description: "ring_flush_failed",
				Data:        map[string]any{"symbol": c.cfg.Symbol, "error": err.Error()},
			})
		}
	}
}

func (c *Collector) deliverFired(ctx context.Context, fired []reserved.Order, source string) {
	if len(fired) == 0 {
		return
	}
	for _, o := range fired {
		c.logEvent(ctx, journal.Event{
			Time:        time.Now().UTC(),
			Type:        "order",
			Description: "reserved_order_fired",
			Data: map[string]any{
				"id":      o.ID.String(),
				"kind":    o.Kind.String(),
				"side":    o.Side.String(),
				"trigger": o.Price.String(),
				"source":  source,
			},
		})
	}
	if err := c.notifier.Send(fmt.Sprintf("%s: %d reserved order(s) fired (%s)", c.cfg.Symbol, len(fired), source)); err != nil {
		log.Printf("[collector] %s: notify: %v", c.cfg.Symbol, err)
	}
	if c.onFired != nil {
		c.onFired(fired)
	}
}

// ReconcileBook rebuilds the book from a fresh snapshot plus the diffs
// buffered while the snapshot was being fetched, in order. Used after a
// reconnect instead of resuming incrementally from an unknown point.
func (c *Collector) ReconcileBook(snapshot orderbook.State, buffered []market.BookUpdate) {
	bids := snapshot.Bids
	asks := snapshot.Asks
	for _, u := range buffered {
		bids = orderbook.ApplyDiffOnce(bids, u.Bids)
		asks = orderbook.ApplyDiffOnce(asks, u.Asks)
	}
	c.bookMu.Lock()
	c.book.ReplaceState(orderbook.State{Bids: bids, Asks: asks})
	c.bookMu.Unlock()

	log.Printf("[collector] %s: book state replaced (%d buffered updates)", c.cfg.Symbol, len(buffered))
}

// ReadKlines returns the persisted candle window oldest-to-newest.
func (c *Collector) ReadKlines() ([]kline.Bar, error) {
	c.ringMu.RLock()
	defer c.ringMu.RUnlock()
	return c.ring.ReadAll()
}

// BestLevels returns the top n levels per side.
func (c *Collector) BestLevels(n int) [2][]market.Level {
	c.bookMu.RLock()
	defer c.bookMu.RUnlock()
	return c.book.BestN(n)
}

// GetStats returns a copy of the counters.
func (c *Collector) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Collector) logEvent(ctx context.Context, ev journal.Event) {
	if err := c.storage.LogEvent(ctx, ev); err != nil {
		log.Printf("[collector] %s: journal: %v", c.cfg.Symbol, err)
	}
}
