package kline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/tick-trader/internal/market"
	"github.com/amirphl/tick-trader/internal/tfutils"
)

func trade(ts time.Time, price, amount float64) market.Trade {
	return market.Trade{
		Symbol:    "BTC_JPY",
		Timestamp: ts,
		Price:     price,
		Amount:    amount,
		Side:      market.Buy,
	}
}

func TestRowCodec(t *testing.T) {
	t.Run("Empty row", func(t *testing.T) {
		buf := EmptyRow().Encode()
		assert.Equal(t, RowSize, len(buf))
		assert.Equal(t, byte(0xC0), buf[0])

		row, err := DecodeRow(buf[:])
		require.NoError(t, err)
		assert.True(t, row.Empty)
	})

	t.Run("Data row round trip", func(t *testing.T) {
		in := Row{Open: 100.5, High: 101, Low: 99.25, Close: 100, Volume: 3.5}
		buf := in.Encode()
		assert.Equal(t, byte(0x95), buf[0])

		out, err := DecodeRow(buf[:])
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("Invalid marker", func(t *testing.T) {
		var buf [RowSize]byte
		buf[0] = 0x42
		_, err := DecodeRow(buf[:])
		assert.ErrorIs(t, err, ErrInvalidMarker)
	})

	t.Run("Short buffer", func(t *testing.T) {
		_, err := DecodeRow([]byte{0x95, 0, 0})
		assert.Error(t, err)
	})
}

func TestRingNew(t *testing.T) {
	dir := t.TempDir()

	r, err := New(dir, "BTC_JPY", time.Minute, 10)
	require.NoError(t, err)
	defer r.Close()

	t.Run("Fresh ring is all empty", func(t *testing.T) {
		bars, err := r.ReadAll()
		require.NoError(t, err)
		require.Len(t, bars, 10)
		for _, b := range bars {
			assert.True(t, b.Row.Empty)
		}
	})

	t.Run("Header persisted on create", func(t *testing.T) {
		head, err := r.ReadHeader()
		require.NoError(t, err)
		assert.Equal(t, r.HeadOpenTime(), head)
		assert.Equal(t, int64(0), head.Unix()%60)
	})
}

func TestRingReopen(t *testing.T) {
	dir := t.TempDir()
	// one bucket ahead of the creation head so the shift below is forward
	head := tfutils.NowFloorTime(time.Minute).Add(time.Minute)

	r, err := New(dir, "BTC_JPY", time.Minute, 5)
	require.NoError(t, err)

	require.NoError(t, r.UpdateOHLCV(trade(head, 100, 1)))
	require.NoError(t, r.UpdateOHLCV(trade(head, 105, 2)))
	require.NoError(t, r.UpdateFile())
	require.NoError(t, r.Close())

	r2, err := New(dir, "BTC_JPY", time.Minute, 5)
	require.NoError(t, err)
	defer r2.Close()

	assert.Equal(t, head, r2.HeadOpenTime())
	bars, err := r2.ReadAll()
	require.NoError(t, err)
	last := bars[len(bars)-1]
	assert.Equal(t, head, last.OpenTime)
	assert.Equal(t, Row{Open: 100, High: 105, Low: 100, Close: 105, Volume: 3}, last.Row)
}

func TestUpdateOHLCV(t *testing.T) {
	dir := t.TempDir()
	head := tfutils.NowFloorTime(time.Minute).Add(time.Minute)

	r, err := New(dir, "BTC_JPY", time.Minute, 5)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.UpdateFileWithShift(head))

	t.Run("Merge rules", func(t *testing.T) {
		require.NoError(t, r.UpdateOHLCVs([]market.Trade{
			trade(head.Add(10*time.Second), 100, 1),
			trade(head.Add(20*time.Second), 110, 1),
			trade(head.Add(30*time.Second), 90, 1),
			trade(head.Add(40*time.Second), 105, 1),
		}))
		require.NoError(t, r.UpdateFile())

		bars, err := r.ReadAll()
		require.NoError(t, err)
		last := bars[len(bars)-1].Row
		assert.Equal(t, Row{Open: 100, High: 110, Low: 90, Close: 105, Volume: 4}, last)
	})

	t.Run("Newer trade shifts window", func(t *testing.T) {
		require.NoError(t, r.UpdateOHLCV(trade(head.Add(time.Minute), 120, 2)))
		assert.Equal(t, head.Add(time.Minute), r.HeadOpenTime())
		require.NoError(t, r.UpdateFile())

		bars, err := r.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, Row{Open: 120, High: 120, Low: 120, Close: 120, Volume: 2}, bars[len(bars)-1].Row)
		assert.Equal(t, 105.0, bars[len(bars)-2].Row.Close)
	})

	t.Run("Trade older than window", func(t *testing.T) {
		err := r.UpdateOHLCV(trade(head.Add(-time.Hour), 50, 1))
		assert.ErrorIs(t, err, ErrOutOfWindow)
	})
}

func TestShift(t *testing.T) {
	newRing := func(t *testing.T) (*Ring, time.Time) {
		head := tfutils.NowFloorTime(time.Minute).Add(time.Minute)
		r, err := New(t.TempDir(), "BTC_JPY", time.Minute, 5)
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		require.NoError(t, r.UpdateFileWithShift(head))
		// close price encodes the slot: head gets 4, oldest gets 0
		for i := 0; i < 5; i++ {
			ts := head.Add(-time.Duration(i) * time.Minute)
			require.NoError(t, r.UpdateOHLCV(trade(ts, float64(4-i), 1)))
		}
		return r, head
	}

	t.Run("Partial shift preserves recent rows", func(t *testing.T) {
		r, head := newRing(t)
		require.NoError(t, r.UpdateFileWithShift(head.Add(2*time.Minute)))

		bars, err := r.ReadAll()
		require.NoError(t, err)
		// two new leading empties, three survivors shifted back
		assert.True(t, bars[4].Row.Empty)
		assert.True(t, bars[3].Row.Empty)
		assert.Equal(t, 4.0, bars[2].Row.Close)
		assert.Equal(t, 3.0, bars[1].Row.Close)
		assert.Equal(t, 2.0, bars[0].Row.Close)
	})

	t.Run("Shift beyond window resets everything", func(t *testing.T) {
		r, head := newRing(t)
		require.NoError(t, r.UpdateFileWithShift(head.Add(10*time.Minute)))

		bars, err := r.ReadAll()
		require.NoError(t, err)
		for _, b := range bars {
			assert.True(t, b.Row.Empty)
		}
	})

	t.Run("Shift backwards is a no-op", func(t *testing.T) {
		r, head := newRing(t)
		require.NoError(t, r.UpdateFileWithShift(head.Add(-time.Minute)))
		assert.Equal(t, head, r.HeadOpenTime())
	})
}

func TestEndToEnd(t *testing.T) {
	t0 := tfutils.NowFloorTime(time.Second).Add(time.Second)

	r, err := New(t.TempDir(), "BTC_JPY", time.Second, 5)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.UpdateFileWithShift(t0))

	require.NoError(t, r.UpdateOHLCVs([]market.Trade{
		trade(t0, 100, 1),
		trade(t0.Add(time.Second), 101, 1),
	}))
	require.NoError(t, r.UpdateFile())

	bars, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, bars, 5)

	for i := 0; i < 3; i++ {
		assert.True(t, bars[i].Row.Empty)
	}
	assert.Equal(t, 100.0, bars[3].Row.Open)
	assert.Equal(t, 100.0, bars[3].Row.Close)
	assert.Equal(t, 101.0, bars[4].Row.Open)
	assert.Equal(t, 101.0, bars[4].Row.Close)
	assert.Equal(t, t0, bars[3].OpenTime)
	assert.Equal(t, t0.Add(time.Second), bars[4].OpenTime)
}
