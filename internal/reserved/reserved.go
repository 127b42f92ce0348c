// Package reserved
package reserved

import (
	"log"

	"github.com/google/uuid"

	"github.com/amirphl/tick-trader/internal/fixedpoint"
	"github.com/amirphl/tick-trader/internal/market"
)

// Order is a conditional order tracked client-side and submitted to the
// exchange only once its trigger price is crossed.
type Order struct {
	ID           uuid.UUID
	Kind         market.OrderKind
	Side         market.Side
	PositionSide market.PositionSide
	Price        fixedpoint.Value
	Amount       fixedpoint.Value
	// exchange-side order this one is paired with, "" when unpaired
	PairOrderID string
	// sibling reserved order, uuid.Nil when unpaired
	PairReservedID uuid.UUID
	// once true the order is excluded from every future check
	Fired bool
}

// isFire evaluates the crossing condition for a prev->curr price move. A nil
// prev means "trigger if already past the threshold". Stop kinds invert the
// comparison side: a buy-side stop protects a long and triggers on the price
// falling through.
func (o *Order) isFire(prev *fixedpoint.Value, curr fixedpoint.Value) bool {
	if o.Fired {
		return false
	}
	side := o.Side
	if o.Kind.IsStopLoss() {
		side = side.Inv()
	}
	switch side {
	case market.Buy:
		return (prev == nil || prev.Greater(o.Price)) && !curr.Greater(o.Price)
	default:
		return (prev == nil || prev.Less(o.Price)) && !curr.Less(o.Price)
	}
}

// Manager tracks reserved orders for one symbol and fires them on observed
// price crossings with at-most-once semantics.
type Manager struct {
	orders    map[uuid.UUID]*Order
	lastPrice *fixedpoint.Value
	priceExp  int32
}

// NewManager returns an empty manager converting trade prices at priceExp.
func NewManager(priceExp int32) *Manager {
	return &Manager{
		orders:   make(map[uuid.UUID]*Order),
		priceExp: priceExp,
	}
}

// Add registers a reserved order and returns its id.
func (m *Manager) Add(kind market.OrderKind, side market.Side, posSide market.PositionSide, price, amount fixedpoint.Value, pairOrderID string) uuid.UUID {
	o := &Order{
		ID:           uuid.New(),
		Kind:         kind,
		Side:         side,
		PositionSide: posSide,
		Price:        price,
		Amount:       amount,
		PairOrderID:  pairOrderID,
	}
	m.orders[o.ID] = o
	log.Printf("reserved | add %s %s %s trigger=%s amount=%s pair=%q", o.Kind, o.Side, o.PositionSide, o.Price, o.Amount, o.PairOrderID)
	return o.ID
}

// Get returns the tracked order for id.
func (m *Manager) Get(id uuid.UUID) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Remove drops one order, e.g. when its exchange-side pair was filled or
// cancelled. Returns the removed order when present.
func (m *Manager) Remove(id uuid.UUID) (*Order, bool) {
	o, ok := m.orders[id]
	if ok {
		delete(m.orders, id)
	}
	return o, ok
}

// CancelAll clears every tracked order. Called when the owning strategy
// cancels its live exchange orders so stale pair logic cannot fire.
func (m *Manager) CancelAll() {
	m.orders = make(map[uuid.UUID]*Order)
}

// Len returns the number of tracked orders, fired or not.
func (m *Manager) Len() int { return len(m.orders) }

// TradesHandler evaluates every not-yet-fired order against each trade in
// arrival order, using the immediately preceding trade as the previous price.
// Fired orders are marked and returned; the caller submits the real orders
// and must not re-submit a returned one. The first trade ever observed only
// seeds the previous price.
func (m *Manager) TradesHandler(trades []market.Trade) []Order {
	var fired []Order
	for _, trade := range trades {
		price := fixedpoint.FromFloat(trade.Price, m.priceExp)
		if m.lastPrice != nil {
			for _, o := range m.orders {
				if o.isFire(m.lastPrice, price) {
					o.Fired = true
					fired = append(fired, *o)
					log.Printf("reserved | fire %s %s trigger=%s at=%s", o.Kind, o.Side, o.Price, price)
				}
			}
		}
		m.lastPrice = &price
	}
	return fired
}

// OrderbookHandler evaluates orders against a best bid/ask observation:
// buy-side orders against the bid, sell-side against the ask, with no
// previous-price requirement — any single observation past the threshold
// fires. Used for postable limit triggers.
func (m *Manager) OrderbookHandler(bidAsk [2]market.Level) []Order {
	var fired []Order
	for _, o := range m.orders {
		price := fixedpoint.FromFloat(bidAsk[o.Side].Price, m.priceExp)
		if o.isFire(nil, price) {
			o.Fired = true
			fired = append(fired, *o)
			log.Printf("reserved | fire (book) %s %s trigger=%s at=%s", o.Kind, o.Side, o.Price, price)
		}
	}
	return fired
}
