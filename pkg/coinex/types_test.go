package coinex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookLevelDecode(t *testing.T) {
	var level BookLevel
	require.NoError(t, json.Unmarshal([]byte(`["31999.50","0.25"]`), &level))
	assert.Equal(t, "31999.5", level.Price.String())
	assert.Equal(t, "0.25", level.Amount.String())

	assert.Error(t, json.Unmarshal([]byte(`{"price":"1"}`), &level))
}

func TestOrderBookDecode(t *testing.T) {
	data := []byte(`{
		"last": "32000",
		"time": 1690000000000,
		"bids": [["31999.5","0.25"],["31999","1.1"]],
		"asks": [["32000.5","0.5"]]
	}`)

	var book OrderBook
	require.NoError(t, json.Unmarshal(data, &book))
	assert.Equal(t, "32000", book.Last.String())
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.True(t, book.Bids[0].Price.GreaterThan(book.Bids[1].Price))
}

func TestTradeDecode(t *testing.T) {
	data := []byte(`{"id":9876,"type":"sell","price":"31999.5","amount":"0.004","time":1690000000.123}`)

	var trade Trade
	require.NoError(t, json.Unmarshal(data, &trade))
	assert.Equal(t, int64(9876), trade.ID)
	assert.Equal(t, TradeSell, trade.Side)
	assert.Equal(t, "0.004", trade.Amount.String())

	// fractional seconds survive the conversion
	ts := trade.Timestamp()
	assert.Equal(t, int64(1690000000), ts.Unix())
	assert.InDelta(t, 123*time.Millisecond, ts.Sub(time.Unix(1690000000, 0)), float64(time.Millisecond))
}

func TestKlineDecode(t *testing.T) {
	t.Run("SevenFields", func(t *testing.T) {
		data := []byte(`[1690000000,"31900","32000","32100","31800","12.5","399000"]`)

		var k Kline
		require.NoError(t, json.Unmarshal(data, &k))
		assert.Equal(t, int64(1690000000), k.Time)
		assert.Equal(t, "31900", k.Open.String())
		assert.Equal(t, "32000", k.Close.String())
		assert.Equal(t, "32100", k.High.String())
		assert.Equal(t, "31800", k.Low.String())
		assert.Equal(t, "12.5", k.Volume.String())
		assert.Empty(t, k.Market)
		assert.Equal(t, time.Unix(1690000000, 0), k.Timestamp())
	})

	t.Run("TrailingMarket", func(t *testing.T) {
		data := []byte(`[1690000000,"31900","32000","32100","31800","12.5","399000","BTCUSDT"]`)

		var k Kline
		require.NoError(t, json.Unmarshal(data, &k))
		assert.Equal(t, "BTCUSDT", k.Market)
	})

	t.Run("TooShort", func(t *testing.T) {
		var k Kline
		assert.Error(t, json.Unmarshal([]byte(`[1690000000,"31900"]`), &k))
	})
}

func TestOrderDecode(t *testing.T) {
	data := []byte(`{
		"id": 1234,
		"market": "BTCUSDT",
		"type": 1,
		"side": 2,
		"price": "32000",
		"amount": "0.5",
		"left": "0.2",
		"deal_stock": "0.3",
		"deal_money": "9600",
		"deal_fee": "4.8",
		"ctime": 1690000000.5,
		"mtime": 1690000100.5,
		"source": "api"
	}`)

	var order Order
	require.NoError(t, json.Unmarshal(data, &order))
	assert.Equal(t, int64(1234), order.ID)
	assert.Equal(t, OrderLimit, order.Type)
	assert.Equal(t, OrderBuy, order.Side)
	assert.Equal(t, "0.2", order.Left.String())
}

func TestOrderEventString(t *testing.T) {
	assert.Equal(t, "created", OrderCreated.String())
	assert.Equal(t, "updated", OrderUpdated.String())
	assert.Equal(t, "finished", OrderFinished.String())
	assert.Equal(t, "unknown(9)", OrderEvent(9).String())
}
