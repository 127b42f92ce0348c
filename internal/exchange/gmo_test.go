package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/tick-trader/internal/market"
)

func TestDecodeGMOMessage(t *testing.T) {
	t.Run("Trade", func(t *testing.T) {
		data := []byte(`{"channel":"trades","price":"750760","side":"BUY","size":"0.1","timestamp":"2018-03-30T12:34:56.789Z","symbol":"BTC_JPY"}`)

		msg, err := DecodeGMOMessage(data)
		require.NoError(t, err)
		require.NotNil(t, msg.Trade)

		assert.Equal(t, "BTC_JPY", msg.Trade.Symbol)
		assert.Equal(t, 750760.0, msg.Trade.Price)
		assert.Equal(t, 0.1, msg.Trade.Amount)
		assert.Equal(t, market.Buy, msg.Trade.Side)
		assert.Equal(t, time.Date(2018, 3, 30, 12, 34, 56, 789_000_000, time.UTC), msg.Trade.Timestamp)
	})

	t.Run("Sell trade", func(t *testing.T) {
		data := []byte(`{"channel":"trades","price":"1.5","side":"SELL","size":"2","timestamp":"2021-08-01T12:00:00.000Z","symbol":"ETH_JPY"}`)

		msg, err := DecodeGMOMessage(data)
		require.NoError(t, err)
		require.NotNil(t, msg.Trade)
		assert.Equal(t, market.Sell, msg.Trade.Side)
	})

	t.Run("Orderbooks", func(t *testing.T) {
		data := []byte(`{"channel":"orderbooks","symbol":"BTC_JPY","timestamp":"2021-08-01T12:00:00.000Z","bids":[{"price":"1000000","size":"0.1"},{"price":"2000000","size":"0.2"}],"asks":[{"price":"3000000","size":"0.3"},{"price":"4000000","size":"0"}]}`)

		msg, err := DecodeGMOMessage(data)
		require.NoError(t, err)
		require.NotNil(t, msg.Book)

		assert.Equal(t, "BTC_JPY", msg.Book.Symbol)
		assert.Equal(t, time.Date(2021, 8, 1, 12, 0, 0, 0, time.UTC), msg.Book.ServerTime)
		require.Len(t, msg.Book.Bids, 2)
		assert.Equal(t, market.Level{Price: 1000000, Size: 0.1}, msg.Book.Bids[0])
		require.Len(t, msg.Book.Asks, 2)
		// zero size is preserved here; the consumer translates it to a removal
		assert.Equal(t, market.Level{Price: 4000000, Size: 0}, msg.Book.Asks[1])
	})

	t.Run("Server error", func(t *testing.T) {
		data := []byte(`{"error":"ERR-5003 Request too many."}`)

		msg, err := DecodeGMOMessage(data)
		require.NoError(t, err)
		assert.Equal(t, "ERR-5003 Request too many.", msg.Err)
	})

	t.Run("Unknown channel", func(t *testing.T) {
		_, err := DecodeGMOMessage([]byte(`{"channel":"ticker"}`))
		assert.Error(t, err)
	})

	t.Run("Garbage price", func(t *testing.T) {
		data := []byte(`{"channel":"trades","price":"abc","side":"BUY","size":"0.1","timestamp":"2018-03-30T12:34:56.789Z","symbol":"BTC_JPY"}`)
		_, err := DecodeGMOMessage(data)
		assert.Error(t, err)
	})
}
