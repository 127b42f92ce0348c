// Package orderbook
package orderbook

import (
	"sort"
	"time"

	"github.com/amirphl/tick-trader/internal/fixedpoint"
	"github.com/amirphl/tick-trader/internal/market"
	"github.com/amirphl/tick-trader/internal/tfutils"
)

// SnapshotDepth is the number of levels per side captured in a persisted
// best-of-book record.
const SnapshotDepth = 5

// Best is one persisted best-of-book record. Timestamp is the snapshot bucket
// boundary derived from exchange server time, never local wall time. Levels is
// [bids, asks]; bids in descending price order, asks ascending, with
// zero-value sentinels beyond available depth.
type Best struct {
	Timestamp time.Time
	Levels    [2][SnapshotDepth]market.Level
}

// State is a wholesale book image, e.g. a REST snapshot fetched after a
// reconnect. Ordering is not required; zero-size levels are dropped on load.
type State struct {
	Bids []market.Level
	Asks []market.Level
}

type level struct {
	key  int64 // price mantissa at the repository's price exponent
	size float64
}

// Repository reconstructs a two-sided price-level book from a snapshot plus
// incremental diffs. Prices are keyed by their fixed-point mantissa at a
// configured exponent so that ordering and equality are exact; a level with
// size 0 is never stored (callers translate size-0 diffs into Remove).
type Repository struct {
	// sides[market.Buy], sides[market.Sell]; each sorted by key ascending.
	sides    [2][]level
	prevTime time.Time
	// snapshot bucket width, one second or coarser
	timeframe time.Duration
	priceExp  int32
}

// New returns an empty repository with the given snapshot bucket width and
// price exponent.
func New(timeframe time.Duration, priceExp int32) *Repository {
	return &Repository{
		prevTime:  time.Now().UTC(),
		timeframe: timeframe,
		priceExp:  priceExp,
	}
}

// NewWithState returns a repository primed from a snapshot.
func NewWithState(timeframe time.Duration, priceExp int32, state State) *Repository {
	r := New(timeframe, priceExp)
	r.ReplaceState(state)
	return r
}

// ReplaceState swaps the whole book for a fresh snapshot, correcting any
// accumulated diff drift.
func (r *Repository) ReplaceState(state State) {
	r.sides[market.Buy] = r.load(state.Bids)
	r.sides[market.Sell] = r.load(state.Asks)
}

func (r *Repository) load(levels []market.Level) []level {
	out := make([]level, 0, len(levels))
	for _, l := range levels {
		if l.Size == 0 {
			continue
		}
		out = append(out, level{key: r.key(l.Price), size: l.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (r *Repository) key(price float64) int64 {
	return fixedpoint.FromFloat(price, r.priceExp).Mantissa
}

func (r *Repository) price(key int64) float64 {
	return fixedpoint.New(key, r.priceExp).Float64()
}

// Insert upserts one price level. Size must be non-zero; a size-0 diff is a
// removal and belongs in Remove.
func (r *Repository) Insert(side market.Side, price, size float64) {
	key := r.key(price)
	s := r.sides[side]
	i := sort.Search(len(s), func(i int) bool { return s[i].key >= key })
	if i < len(s) && s[i].key == key {
		s[i].size = size
		return
	}
	s = append(s, level{})
	copy(s[i+1:], s[i:])
	s[i] = level{key: key, size: size}
	r.sides[side] = s
}

// Remove deletes one price level if present.
func (r *Repository) Remove(side market.Side, price float64) {
	key := r.key(price)
	s := r.sides[side]
	i := sort.Search(len(s), func(i int) bool { return s[i].key >= key })
	if i < len(s) && s[i].key == key {
		r.sides[side] = append(s[:i], s[i+1:]...)
	}
}

// Len returns the total number of levels on both sides.
func (r *Repository) Len() int {
	return len(r.sides[market.Buy]) + len(r.sides[market.Sell])
}

// SnapshotOnUpdate advances the repository's server-time watermark. It MUST
// be called before applying the diffs tied to serverTime: when serverTime
// crosses into a new snapshot bucket relative to the previous update, the
// current best levels are captured first, so the returned record reflects the
// state as of the end of the previous bucket. Returns nil when no bucket
// boundary was crossed.
func (r *Repository) SnapshotOnUpdate(serverTime time.Time) *Best {
	var best *Best
	if tfutils.FloorTimeSec(r.prevTime, r.timeframe) != tfutils.FloorTimeSec(serverTime, r.timeframe) {
		best = &Best{
			Timestamp: tfutils.FloorTime(serverTime, r.timeframe),
			Levels:    r.bestFixed(),
		}
	}
	r.prevTime = serverTime
	return best
}

// Arrange deletes every bid above midPrice and every ask at or below it,
// returning the count removed. Some diff streams occasionally leave stale
// crossed levels behind; this is a best-effort repair, not a correctness
// guarantee.
func (r *Repository) Arrange(midPrice float64) int {
	mid := r.key(midPrice)
	before := r.Len()

	bids := r.sides[market.Buy][:0]
	for _, l := range r.sides[market.Buy] {
		if l.key <= mid {
			bids = append(bids, l)
		}
	}
	r.sides[market.Buy] = bids

	asks := r.sides[market.Sell][:0]
	for _, l := range r.sides[market.Sell] {
		if l.key > mid {
			asks = append(asks, l)
		}
	}
	r.sides[market.Sell] = asks

	return before - r.Len()
}

// BestN returns the top n levels per side: [bids, asks], bids in descending
// price order, asks ascending. Slots beyond available depth are zero-value
// sentinels.
func (r *Repository) BestN(n int) [2][]market.Level {
	var out [2][]market.Level
	out[market.Buy] = make([]market.Level, n)
	out[market.Sell] = make([]market.Level, n)

	bids := r.sides[market.Buy]
	for i := 0; i < n && i < len(bids); i++ {
		l := bids[len(bids)-1-i]
		out[market.Buy][i] = market.Level{Price: r.price(l.key), Size: l.size}
	}
	asks := r.sides[market.Sell]
	for i := 0; i < n && i < len(asks); i++ {
		out[market.Sell][i] = market.Level{Price: r.price(asks[i].key), Size: asks[i].size}
	}
	return out
}

func (r *Repository) bestFixed() [2][SnapshotDepth]market.Level {
	var out [2][SnapshotDepth]market.Level
	best := r.BestN(SnapshotDepth)
	copy(out[market.Buy][:], best[market.Buy])
	copy(out[market.Sell][:], best[market.Sell])
	return out
}

// ApplyDiffOnce folds a buffered run of diffs into a snapshot side: size 0
// removes the level, anything else upserts it. Used to reconcile a restarted
// book — fetch a snapshot at time T, then replay every diff received during
// the fetch, producing a state equivalent to never having missed an update.
func ApplyDiffOnce(snapshot, diff []market.Level) []market.Level {
	byPrice := make(map[float64]float64, len(snapshot)+len(diff))
	for _, l := range snapshot {
		byPrice[l.Price] = l.Size
	}
	for _, l := range diff {
		if l.Size == 0 {
			delete(byPrice, l.Price)
		} else {
			byPrice[l.Price] = l.Size
		}
	}
	out := make([]market.Level, 0, len(byPrice))
	for price, size := range byPrice {
		out = append(out, market.Level{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
