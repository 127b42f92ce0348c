package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/amirphl/tick-trader/internal/market"
)

const (
	gmoPublicWsURL = "wss://api.coin.z.com/ws/public/v1"

	// GMO rejects rapid-fire subscriptions with ERR-5003
	subscribeDelay = time.Second
	reconnectDelay = 5 * time.Second
)

// GMOFeed streams trades and order-book diffs for one symbol from the GMO
// Coin public websocket.
type GMOFeed struct {
	symbol string

	trades chan market.Trade
	books  chan market.BookUpdate

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewGMOFeed creates a feed for the given GMO symbol (e.g. "BTC_JPY").
func NewGMOFeed(symbol string, buffer int) *GMOFeed {
	return &GMOFeed{
		symbol: symbol,
		trades: make(chan market.Trade, buffer),
		books:  make(chan market.BookUpdate, buffer),
	}
}

func (g *GMOFeed) Trades() <-chan market.Trade { return g.trades }

func (g *GMOFeed) BookUpdates() <-chan market.BookUpdate { return g.books }

func (g *GMOFeed) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Start connects, subscribes and pumps messages until ctx is cancelled,
// reconnecting on any read or dial failure. Errors are logged, not returned,
// except for context cancellation.
func (g *GMOFeed) Start(ctx context.Context) error {
	for {
		if err := g.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("GMOFeed | %s: connection lost: %v, reconnecting in %s", g.symbol, err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (g *GMOFeed) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, gmoPublicWsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	g.setConn(conn, true)
	defer g.setConn(nil, false)

	// close the socket when ctx is cancelled so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for _, channel := range []string{"trades", "orderbooks"} {
		sub := map[string]string{"command": "subscribe", "channel": channel, "symbol": g.symbol}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(subscribeDelay):
		}
	}
	log.Printf("GMOFeed | %s: subscribed to trades and orderbooks", g.symbol)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := g.dispatch(ctx, data); err != nil {
			log.Printf("GMOFeed | %s: %v", g.symbol, err)
		}
	}
}

func (g *GMOFeed) setConn(conn *websocket.Conn, connected bool) {
	g.mu.Lock()
	g.conn = conn
	g.connected = connected
	g.mu.Unlock()
}

func (g *GMOFeed) dispatch(ctx context.Context, data []byte) error {
	msg, err := DecodeGMOMessage(data)
	if err != nil {
		return err
	}
	switch {
	case msg.Err != "":
		if strings.Contains(msg.Err, "Request too many") {
			// backoff is handled by the subscribe pacing; just surface it
			return fmt.Errorf("rate limited: %s", msg.Err)
		}
		return fmt.Errorf("server error: %s", msg.Err)
	case msg.Trade != nil:
		select {
		case g.trades <- *msg.Trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	case msg.Book != nil:
		select {
		case g.books <- *msg.Book:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Wire shapes. Prices and sizes arrive as decimal strings and are converted
// explicitly; timestamps are RFC3339 with milliseconds.
type gmoLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type gmoMessage struct {
	Error     string     `json:"error"`
	Channel   string     `json:"channel"`
	Symbol    string     `json:"symbol"`
	Timestamp string     `json:"timestamp"`
	Price     string     `json:"price"`
	Size      string     `json:"size"`
	Side      string     `json:"side"`
	Bids      []gmoLevel `json:"bids"`
	Asks      []gmoLevel `json:"asks"`
}

// GMOMessage is one decoded public-channel message: exactly one of Err,
// Trade or Book is set.
type GMOMessage struct {
	Err   string
	Trade *market.Trade
	Book  *market.BookUpdate
}

// DecodeGMOMessage parses one raw websocket payload.
func DecodeGMOMessage(data []byte) (GMOMessage, error) {
	var raw gmoMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return GMOMessage{}, fmt.Errorf("decode: %w", err)
	}
	if raw.Error != "" {
		return GMOMessage{Err: raw.Error}, nil
	}
	switch raw.Channel {
	case "trades":
		trade, err := raw.toTrade()
		if err != nil {
			return GMOMessage{}, err
		}
		return GMOMessage{Trade: &trade}, nil
	case "orderbooks":
		book, err := raw.toBookUpdate()
		if err != nil {
			return GMOMessage{}, err
		}
		return GMOMessage{Book: &book}, nil
	default:
		return GMOMessage{}, fmt.Errorf("decode: unknown channel %q", raw.Channel)
	}
}

func (raw gmoMessage) toTrade() (market.Trade, error) {
	price, err := parseDecimal(raw.Price)
	if err != nil {
		return market.Trade{}, fmt.Errorf("decode trade price: %w", err)
	}
	size, err := parseDecimal(raw.Size)
	if err != nil {
		return market.Trade{}, fmt.Errorf("decode trade size: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return market.Trade{}, fmt.Errorf("decode trade timestamp: %w", err)
	}
	side := market.Buy
	if raw.Side == "SELL" {
		side = market.Sell
	}
	return market.Trade{
		Symbol:    raw.Symbol,
		Timestamp: ts.UTC(),
		Price:     price,
		Amount:    size,
		Side:      side,
	}, nil
}

func (raw gmoMessage) toBookUpdate() (market.BookUpdate, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return market.BookUpdate{}, fmt.Errorf("decode book timestamp: %w", err)
	}
	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return market.BookUpdate{}, fmt.Errorf("decode bids: %w", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return market.BookUpdate{}, fmt.Errorf("decode asks: %w", err)
	}
	return market.BookUpdate{
		Symbol:     raw.Symbol,
		Bids:       bids,
		Asks:       asks,
		ServerTime: ts.UTC(),
	}, nil
}

func parseLevels(raw []gmoLevel) ([]market.Level, error) {
	out := make([]market.Level, 0, len(raw))
	for _, l := range raw {
		price, err := parseDecimal(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := parseDecimal(l.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, market.Level{Price: price, Size: size})
	}
	return out, nil
}

func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
