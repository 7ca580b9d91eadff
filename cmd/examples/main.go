package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veiloq/coinex-connector/pkg/coinex"
	"github.com/veiloq/coinex-connector/pkg/logging"
)

func main() {
	// Create logger
	logger := logging.NewLogger()
	logger.SetLevel(logging.DEBUG)

	// Load options from file and environment, then apply credentials if
	// present (optional for public endpoints)
	options, err := coinex.LoadOptions(os.Getenv("COINEX_CONFIG"))
	if err != nil {
		logger.Error("failed to load options", logging.Error(err))
		os.Exit(1)
	}
	options.LogLevel = "debug"

	// Create client
	client := coinex.NewClientWithLogger(options, logger)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the exchange
	logger.Info("connecting to exchange")
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", logging.Error(err))
		os.Exit(1)
	}
	defer client.Close()

	// Check clock skew against the server
	serverTime, err := client.ServerTime(ctx)
	if err != nil {
		logger.Error("failed to get server time", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("server time",
		logging.String("time", serverTime.Format(time.RFC3339)),
		logging.Duration("skew", time.Since(serverTime)),
	)

	// Get historical candles
	logger.Info("fetching historical candles")
	klines, err := client.GetKlines(ctx, "BTCUSDT", coinex.Interval1Min,
		time.Now().Add(-1*time.Hour), time.Now())
	if err != nil {
		logger.Error("failed to get klines", logging.Error(err))
		os.Exit(1)
	}

	for _, k := range klines {
		logger.Info("historical kline",
			logging.String("time", k.Timestamp().Format(time.RFC3339)),
			logging.String("open", k.Open.String()),
			logging.String("close", k.Close.String()),
		)
	}

	// Subscribe to real-time candle updates
	logger.Info("subscribing to real-time klines")
	klineSub, err := client.SubscribeKlines(ctx, "BTCUSDT", coinex.Interval1Min,
		func(klines []coinex.Kline) {
			for _, k := range klines {
				logger.Info("real-time kline",
					logging.String("time", k.Timestamp().Format(time.RFC3339)),
					logging.String("open", k.Open.String()),
					logging.String("close", k.Close.String()),
				)
			}
		})
	if err != nil {
		logger.Error("failed to subscribe to klines", logging.Error(err))
		os.Exit(1)
	}

	// Get current market state
	logger.Info("fetching market state")
	state, err := client.GetMarketState(ctx, "BTCUSDT")
	if err != nil {
		logger.Error("failed to get market state", logging.Error(err))
		os.Exit(1)
	}

	logger.Info("market state",
		logging.String("last", state.Last.String()),
		logging.String("24h_volume", state.Volume.String()),
	)

	// Get order book
	logger.Info("fetching order book")
	book, err := client.GetOrderBook(ctx, "BTCUSDT", 20, 0)
	if err != nil {
		logger.Error("failed to get order book", logging.Error(err))
		os.Exit(1)
	}

	logger.Info("order book snapshot",
		logging.String("symbol", book.Symbol),
		logging.Int("bid_levels", len(book.Bids)),
		logging.Int("ask_levels", len(book.Asks)),
	)

	// Subscribe to order book updates
	logger.Info("subscribing to order book updates")
	bookSub, err := client.SubscribeOrderBook(ctx, "BTCUSDT", 20, 0,
		func(book coinex.OrderBook) {
			logger.Info("order book update",
				logging.String("symbol", book.Symbol),
				logging.Bool("full", book.FullUpdate),
				logging.Int("bid_levels", len(book.Bids)),
				logging.Int("ask_levels", len(book.Asks)),
			)
		})
	if err != nil {
		logger.Error("failed to subscribe to order book", logging.Error(err))
		os.Exit(1)
	}

	// Signed operations run only when credentials are configured
	if options.HasCredentials() {
		logger.Info("fetching balances")
		balances, err := client.GetBalances(ctx, "BTC", "USDT")
		if err != nil {
			logger.Error("failed to get balances", logging.Error(err))
			os.Exit(1)
		}
		for asset, balance := range balances {
			logger.Info("balance",
				logging.String("asset", asset),
				logging.String("available", balance.Available.String()),
				logging.String("frozen", balance.Frozen.String()),
			)
		}

		logger.Info("subscribing to order events")
		_, err = client.SubscribeOrders(ctx, func(event coinex.OrderEvent, order coinex.Order) {
			logger.Info("order event",
				logging.String("event", event.String()),
				logging.Int64("id", order.ID),
				logging.String("market", order.Market),
			)
		}, "BTCUSDT")
		if err != nil {
			logger.Error("failed to subscribe to orders", logging.Error(err))
			os.Exit(1)
		}
	}

	// Surface subscriptions that can no longer be served
	go func() {
		select {
		case err := <-klineSub.Done():
			logger.Error("kline subscription lost", logging.Error(err))
		case err := <-bookSub.Done():
			logger.Error("order book subscription lost", logging.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("running... press Ctrl+C to exit")
	<-sigChan

	// Cleanup
	logger.Info("shutting down")
	cancel()
}
