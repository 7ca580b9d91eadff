package coinex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/coinex-connector/pkg/socket"
)

// newTestClient creates a connected client against a scoped mock server
func newTestClient(t *testing.T, configure func(*Options)) (*Client, *socket.MockServer) {
	t.Helper()

	mock := socket.NewMockServer()
	t.Cleanup(mock.Close)

	opts := NewOptions()
	opts.URL = mock.URL()
	opts.AutoReconnect = false
	opts.SendsPerSecond = 0
	opts.LogLevel = "error"
	if configure != nil {
		configure(opts)
	}

	client := NewClient(opts)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client, mock
}

func scriptAuth(mock *socket.MockServer) {
	mock.HandleResult("server.sign", map[string]string{"status": "success"})
}

func TestClientServerTime(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("server.time", 1690000000)

	ts, err := client.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1690000000, 0), ts)
}

func TestClientGetMarketState(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("state.query", map[string]interface{}{
		"open": "31000", "close": "32000", "last": "32000",
		"high": "32500", "low": "30800",
		"volume": "120.5", "deal": "3900000", "period": 86400,
	})

	state, err := client.GetMarketState(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "32000", state.Last.String())
	assert.Equal(t, int64(86400), state.Period)

	// the query names the market and the state cycle window
	reqs := mock.RequestsFor("state.query")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `"BTCUSDT"`, string(reqs[0].Params[0]))
	assert.JSONEq(t, `86400`, string(reqs[0].Params[1]))

	_, err = client.GetMarketState(context.Background(), "btc")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestClientGetOrderBook(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("depth.query", map[string]interface{}{
		"last": "32000",
		"time": 1690000000000,
		"bids": [][]string{{"31999.5", "0.25"}},
		"asks": [][]string{{"32000.5", "0.5"}},
	})

	book, err := client.GetOrderBook(context.Background(), "BTCUSDT", 20, 1)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", book.Symbol)
	assert.True(t, book.FullUpdate)
	require.Len(t, book.Bids, 1)

	reqs := mock.RequestsFor("depth.query")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `"BTCUSDT"`, string(reqs[0].Params[0]))
	assert.JSONEq(t, `20`, string(reqs[0].Params[1]))
	assert.JSONEq(t, `"0.1"`, string(reqs[0].Params[2]))

	_, err = client.GetOrderBook(context.Background(), "BTCUSDT", 20, 9)
	assert.ErrorIs(t, err, ErrInvalidMergeDepth)
}

func TestClientGetTrades(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("deals.query", []map[string]interface{}{
		{"id": 2, "type": "buy", "price": "32000", "amount": "0.1", "time": 1690000001.5},
		{"id": 1, "type": "sell", "price": "31999", "amount": "0.2", "time": 1690000000.5},
	})

	trades, err := client.GetTrades(context.Background(), "BTCUSDT", 100, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeBuy, trades[0].Side)
	assert.Equal(t, int64(1), trades[1].ID)
}

func TestClientGetKlines(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("kline.query", [][]interface{}{
		{1690000000, "31900", "32000", "32100", "31800", "12.5", "399000"},
		{1690000060, "32000", "32050", "32080", "31990", "3.1", "99000"},
	})

	start := time.Unix(1690000000, 0)
	end := time.Unix(1690003600, 0)
	klines, err := client.GetKlines(context.Background(), "BTCUSDT", Interval1Min, start, end)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, "32050", klines[1].Close.String())

	reqs := mock.RequestsFor("kline.query")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `1690000000`, string(reqs[0].Params[1]))
	assert.JSONEq(t, `1690003600`, string(reqs[0].Params[2]))
	assert.JSONEq(t, `60`, string(reqs[0].Params[3]))

	_, err = client.GetKlines(context.Background(), "BTCUSDT", KlineInterval("7min"), start, end)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestClientGetBalances(t *testing.T) {
	t.Run("NoCredentials", func(t *testing.T) {
		client, mock := newTestClient(t, nil)

		_, err := client.GetBalances(context.Background(), "BTC")
		require.ErrorIs(t, err, socket.ErrNoCredentials)
		assert.Empty(t, mock.RequestsFor("asset.query"))
	})

	t.Run("Success", func(t *testing.T) {
		client, mock := newTestClient(t, func(opts *Options) {
			opts.WithCredentials("test_key", "test_secret")
		})
		scriptAuth(mock)
		mock.HandleResult("asset.query", map[string]interface{}{
			"BTC":  map[string]string{"available": "1.5", "frozen": "0.1"},
			"USDT": map[string]string{"available": "1000", "frozen": "0"},
		})

		balances, err := client.GetBalances(context.Background(), "BTC", "USDT")
		require.NoError(t, err)
		require.Len(t, balances, 2)
		assert.Equal(t, "1.5", balances["BTC"].Available.String())
		assert.Equal(t, "0.1", balances["BTC"].Frozen.String())
	})
}

func TestClientGetOrders(t *testing.T) {
	client, mock := newTestClient(t, func(opts *Options) {
		opts.WithCredentials("test_key", "test_secret")
	})
	scriptAuth(mock)
	mock.HandleResult("order.query", map[string]interface{}{
		"limit": 10, "offset": 0, "total": 1,
		"records": []map[string]interface{}{
			{"id": 5, "market": "BTCUSDT", "type": 1, "side": 2, "price": "32000", "amount": "0.5", "left": "0.5"},
		},
	})

	page, err := client.GetOrders(context.Background(), "BTCUSDT", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, OrderBuy, page.Records[0].Side)
}

func TestClientSubscribeMarketState(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("state.subscribe", map[string]string{"status": "success"})

	received := make(chan map[string]MarketState, 1)
	_, err := client.SubscribeMarketState(context.Background(), func(states map[string]MarketState) {
		received <- states
	})
	require.NoError(t, err)

	mock.Push("state", map[string]interface{}{
		"BTCUSDT": map[string]interface{}{"last": "32000", "period": 86400},
	})

	select {
	case states := <-received:
		require.Contains(t, states, "BTCUSDT")
		assert.Equal(t, "32000", states["BTCUSDT"].Last.String())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for state push")
	}
}

func TestClientSubscribeOrderBook(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("depth.subscribe", map[string]string{"status": "success"})

	received := make(chan OrderBook, 2)
	_, err := client.SubscribeOrderBook(context.Background(), "BTCUSDT", 20, 0, func(book OrderBook) {
		received <- book
	})
	require.NoError(t, err)

	book := map[string]interface{}{
		"last": "32000", "time": 1690000000000,
		"bids": [][]string{{"31999.5", "0.25"}},
		"asks": [][]string{},
	}

	t.Run("FullUpdateWithMarket", func(t *testing.T) {
		mock.Push("depth", true, book, "BTCUSDT")

		select {
		case got := <-received:
			assert.True(t, got.FullUpdate)
			assert.Equal(t, "BTCUSDT", got.Symbol)
			require.Len(t, got.Bids, 1)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for depth push")
		}
	})

	t.Run("IncrementalWithoutMarket", func(t *testing.T) {
		mock.Push("depth", false, book)

		select {
		case got := <-received:
			assert.False(t, got.FullUpdate)
			assert.Equal(t, "BTCUSDT", got.Symbol)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for depth push")
		}
	})

	t.Run("OtherMarketFiltered", func(t *testing.T) {
		mock.Push("depth", true, book, "ETHUSDT")

		select {
		case got := <-received:
			t.Fatalf("unexpected delivery for %s", got.Symbol)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestClientSubscribeTrades(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("deals.subscribe", map[string]string{"status": "success"})

	received := make(chan []Trade, 2)
	_, err := client.SubscribeTrades(context.Background(), "BTCUSDT", func(_ string, trades []Trade) {
		received <- trades
	})
	require.NoError(t, err)

	trades := []map[string]interface{}{
		{"id": 1, "type": "buy", "price": "32000", "amount": "0.1", "time": 1690000000.5},
	}

	t.Run("TwoParams", func(t *testing.T) {
		mock.Push("deals", "BTCUSDT", trades)

		select {
		case got := <-received:
			require.Len(t, got, 1)
			assert.Equal(t, TradeBuy, got[0].Side)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for trade push")
		}
	})

	t.Run("TrailingBooleanTolerated", func(t *testing.T) {
		mock.Push("deals", "BTCUSDT", trades, true)

		select {
		case got := <-received:
			require.Len(t, got, 1)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for trade push")
		}
	})

	t.Run("OtherMarketFiltered", func(t *testing.T) {
		mock.Push("deals", "ETHUSDT", trades)

		select {
		case <-received:
			t.Fatal("unexpected delivery for another market")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("ExcessParamsDiscarded", func(t *testing.T) {
		mock.Push("deals", "BTCUSDT", trades, true, "junk")

		select {
		case <-received:
			t.Fatal("unexpected delivery for malformed push")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestClientSubscribeKlines(t *testing.T) {
	client, mock := newTestClient(t, nil)
	mock.HandleResult("kline.subscribe", map[string]string{"status": "success"})

	received := make(chan []Kline, 2)
	_, err := client.SubscribeKlines(context.Background(), "BTCUSDT", Interval1Min, func(klines []Kline) {
		received <- klines
	})
	require.NoError(t, err)

	closing := []interface{}{1690000000, "31900", "32000", "32100", "31800", "12.5", "399000", "BTCUSDT"}
	opening := []interface{}{1690000060, "32000", "32010", "32020", "31995", "0.4", "12800", "BTCUSDT"}

	t.Run("SingleKline", func(t *testing.T) {
		mock.Push("kline", opening)

		select {
		case got := <-received:
			require.Len(t, got, 1)
			assert.Equal(t, int64(1690000060), got[0].Time)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for kline push")
		}
	})

	t.Run("ClosingAndOpeningPair", func(t *testing.T) {
		// interval rollover delivers the closed candle and the new one in
		// a single frame
		mock.Push("kline", closing, opening)

		select {
		case got := <-received:
			require.Len(t, got, 2)
			assert.Equal(t, int64(1690000000), got[0].Time)
			assert.Equal(t, int64(1690000060), got[1].Time)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for kline push")
		}
	})

	t.Run("ExcessParamsDiscarded", func(t *testing.T) {
		mock.Push("kline", closing, opening, opening)

		select {
		case <-received:
			t.Fatal("unexpected delivery for malformed push")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestClientSubscribeBalances(t *testing.T) {
	client, mock := newTestClient(t, func(opts *Options) {
		opts.WithCredentials("test_key", "test_secret")
	})
	scriptAuth(mock)
	mock.HandleResult("asset.subscribe", map[string]string{"status": "success"})

	received := make(chan map[string]Balance, 1)
	_, err := client.SubscribeBalances(context.Background(), func(balances map[string]Balance) {
		received <- balances
	}, "BTC")
	require.NoError(t, err)

	// the trailing "0" some frames carry is ignored
	mock.Push("asset", map[string]interface{}{
		"BTC": map[string]string{"available": "1.5", "frozen": "0.1"},
	}, "0")

	select {
	case balances := <-received:
		require.Contains(t, balances, "BTC")
		assert.Equal(t, "1.5", balances["BTC"].Available.String())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for balance push")
	}
}

func TestClientSubscribeOrders(t *testing.T) {
	t.Run("NoCredentials", func(t *testing.T) {
		client, _ := newTestClient(t, nil)

		_, err := client.SubscribeOrders(context.Background(), func(OrderEvent, Order) {}, "BTCUSDT")
		require.ErrorIs(t, err, socket.ErrNoCredentials)
	})

	t.Run("Events", func(t *testing.T) {
		client, mock := newTestClient(t, func(opts *Options) {
			opts.WithCredentials("test_key", "test_secret")
		})
		scriptAuth(mock)
		mock.HandleResult("order.subscribe", map[string]string{"status": "success"})

		type orderEvent struct {
			event OrderEvent
			order Order
		}
		received := make(chan orderEvent, 1)
		_, err := client.SubscribeOrders(context.Background(), func(event OrderEvent, order Order) {
			received <- orderEvent{event, order}
		}, "BTCUSDT")
		require.NoError(t, err)

		mock.Push("order", 1, map[string]interface{}{
			"id": 77, "market": "BTCUSDT", "type": 1, "side": 2,
			"price": "32000", "amount": "0.5", "left": "0.5",
		})

		select {
		case got := <-received:
			assert.Equal(t, OrderCreated, got.event)
			assert.Equal(t, int64(77), got.order.ID)
			assert.Equal(t, "BTCUSDT", got.order.Market)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for order push")
		}
	})
}
