// Package market
package market

import (
	"time"
)

// Side is the taker side of a trade or order.
type Side int

const (
	Buy Side = iota
	Sell
)

// Inv returns the opposite side.
func (s Side) Inv() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ToPosition maps an entry side to the position it opens.
func (s Side) ToPosition() PositionSide {
	if s == Buy {
		return Long
	}
	return Short
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// PositionSide is the direction of an open position.
type PositionSide int

const (
	Long PositionSide = iota
	Short
)

// ToSide maps a position to the side that opens it.
func (p PositionSide) ToSide() Side {
	if p == Long {
		return Buy
	}
	return Sell
}

// Sign returns +1 for long, -1 for short.
func (p PositionSide) Sign() int64 {
	if p == Long {
		return 1
	}
	return -1
}

func (p PositionSide) String() string {
	if p == Long {
		return "long"
	}
	return "short"
}

// OrderKind is the execution type of an order.
type OrderKind int

const (
	Limit OrderKind = iota
	Market
	Stop
	StopLimit
)

// IsStopLoss reports whether the kind triggers on an adverse price move, which
// inverts the crossing comparison side.
func (k OrderKind) IsStopLoss() bool {
	return k == Stop || k == StopLimit
}

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Stop:
		return "stop"
	default:
		return "stop-limit"
	}
}

// Trade represents a normalized trade tick from an exchange feed.
type Trade struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Amount    float64
	Side      Side
}

// Level is a single price level of an order book side.
type Level struct {
	Price float64
	Size  float64
}

// BookUpdate is one incremental order-book message: per-side lists of levels
// where Size == 0 denotes removal, plus the exchange-reported server time.
type BookUpdate struct {
	Symbol     string
	Bids       []Level
	Asks       []Level
	ServerTime time.Time
}

// BySide returns the update's levels for one side.
func (u BookUpdate) BySide(s Side) []Level {
	if s == Buy {
		return u.Bids
	}
	return u.Asks
}
