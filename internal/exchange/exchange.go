// Package exchange
package exchange

import (
	"context"

	"github.com/amirphl/tick-trader/internal/market"
)

// Feed streams normalized market data for one symbol.
//
// Implementations own their connection lifecycle: Start blocks until ctx is
// done, reconnecting on transient failures. Messages are delivered in receive
// order on the channels; consumers must preserve that order because both the
// kline ring and the reserved-orders manager keep previous-value state.
type Feed interface {
	// Trades delivers trade ticks in exchange order.
	Trades() <-chan market.Trade
	// BookUpdates delivers order-book diffs with exchange server time.
	BookUpdates() <-chan market.BookUpdate
	// Start runs the feed until ctx is cancelled.
	Start(ctx context.Context) error
	// IsConnected reports whether the underlying connection is up.
	IsConnected() bool
}
