package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/avast/retry-go"
	"github.com/stretchr/testify/require"
	"github.com/veiloq/coinex-connector/pkg/coinex"
	"github.com/veiloq/coinex-connector/pkg/logging"
)

// TestCoinexClient_E2E performs end-to-end testing of the client against
// the live exchange.
//
// To run this test:
// COINEX_ACCESS_ID=your_access_id COINEX_SECRET_KEY=your_secret_key go test -v ./test/e2e
func TestCoinexClient_E2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	// Create logger for debugging
	logger := logging.NewLogger()
	logger.SetLevel(logging.DEBUG)

	// Get API credentials
	accessID := os.Getenv("COINEX_ACCESS_ID")
	secretKey := os.Getenv("COINEX_SECRET_KEY")

	// Check if we're running in CI or missing credentials
	runningInCI := os.Getenv("CI") != ""

	options := coinex.NewOptions().WithCredentials(accessID, secretKey)
	options.LogLevel = "debug"

	client := coinex.NewClientWithLogger(options, logger)

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Connect to the exchange
	err := client.Connect(ctx)
	require.NoError(t, err, "failed to connect to exchange")
	defer client.Close()

	t.Run("ServerTime", func(t *testing.T) {
		serverTime, err := client.ServerTime(ctx)
		require.NoError(t, err, "failed to get server time")
		require.Less(t, time.Since(serverTime).Abs(), time.Minute, "server clock too far off")
	})

	t.Run("GetMarketState", func(t *testing.T) {
		state, err := client.GetMarketState(ctx, "BTCUSDT")
		require.NoError(t, err, "failed to get market state")
		require.True(t, state.Last.IsPositive(), "no last price")
	})

	t.Run("GetOrderBook", func(t *testing.T) {
		book, err := client.GetOrderBook(ctx, "BTCUSDT", 20, 0)
		require.NoError(t, err, "failed to get order book")
		require.Equal(t, "BTCUSDT", book.Symbol)
		require.NotEmpty(t, book.Bids)
		require.NotEmpty(t, book.Asks)
		require.LessOrEqual(t, len(book.Bids), 20)
		require.LessOrEqual(t, len(book.Asks), 20)
	})

	t.Run("GetKlines", func(t *testing.T) {
		klines, err := client.GetKlines(ctx, "BTCUSDT", coinex.Interval1Min,
			time.Now().Add(-1*time.Hour), time.Now())
		require.NoError(t, err, "failed to get klines")
		require.NotEmpty(t, klines, "no klines returned")
	})

	t.Run("Subscriptions", func(t *testing.T) {
		tradeCh := make(chan []coinex.Trade, 10)
		bookCh := make(chan coinex.OrderBook, 10)

		_, err := client.SubscribeTrades(ctx, "BTCUSDT", func(_ string, trades []coinex.Trade) {
			select {
			case tradeCh <- trades:
			default:
			}
		})
		require.NoError(t, err, "failed to subscribe to trades")

		_, err = client.SubscribeOrderBook(ctx, "BTCUSDT", 20, 0, func(book coinex.OrderBook) {
			select {
			case bookCh <- book:
			default:
			}
		})
		require.NoError(t, err, "failed to subscribe to order book")

		// Wait for updates with retry
		var receivedTrades, receivedBook bool

		err = retry.Do(
			func() error {
				if !receivedTrades {
					select {
					case <-tradeCh:
						receivedTrades = true
					default:
						// No message yet
					}
				}

				if !receivedBook {
					select {
					case book := <-bookCh:
						if book.Symbol == "BTCUSDT" {
							receivedBook = true
						}
					default:
						// No message yet
					}
				}

				if !receivedTrades || !receivedBook {
					return fmt.Errorf("waiting for WebSocket updates")
				}
				return nil
			},
			retry.Attempts(30),
			retry.Delay(1*time.Second),
			retry.DelayType(retry.FixedDelay),
			retry.OnRetry(func(n uint, err error) {
				t.Logf("Retry %d: Waiting for WebSocket updates: Trades=%v, OrderBook=%v",
					n+1, receivedTrades, receivedBook)
			}),
		)

		require.NoError(t, err, "timeout waiting for WebSocket updates")
	})

	t.Run("SignedOperations", func(t *testing.T) {
		// Skip without valid API credentials or when running in CI
		if accessID == "" || secretKey == "" || runningInCI {
			t.Skip("Skipping signed operations test - requires valid API credentials and not running in CI")
			return
		}

		balances, err := client.GetBalances(ctx, "BTC", "USDT")
		require.NoError(t, err, "failed to get balances")
		require.NotNil(t, balances)
	})

	t.Run("Reconnection", func(t *testing.T) {
		// Force close and reconnect with a fresh client; Close is terminal
		require.NoError(t, client.Close(), "failed to close connection")

		fresh := coinex.NewClientWithLogger(options, logger)
		require.NoError(t, fresh.Connect(ctx), "failed to reconnect")
		defer fresh.Close()

		state, err := fresh.GetMarketState(ctx, "BTCUSDT")
		require.NoError(t, err, "failed to get market state after reconnect")
		require.True(t, state.Last.IsPositive())
	})
}
