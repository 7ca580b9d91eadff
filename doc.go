// Package coinexconnector provides a WebSocket client for the CoinEx
// exchange socket API.
//
// The library multiplexes RPC queries and push subscriptions over a single
// persistent connection, so one session serves market data, account data
// and keep-alive traffic at the same time.
//
// Core Features:
//
//   - Typed queries for server time, market state, order books, trades,
//     candles, balances and open orders
//   - Push subscriptions for the same data with per-market callbacks
//   - Lazy authentication: signed operations authenticate on first use
//   - Automatic reconnection with subscription replay
//   - Send-side rate limiting
//
// The library is built around two packages. pkg/socket implements the
// session layer: framing, request correlation, authentication, reconnect
// and replay. pkg/coinex builds the typed exchange API on top of it.
//
// # Standard Errors
//
// The session layer defines sentinel errors for consistent error handling:
//
//   - socket.ErrNotConnected: an operation was attempted before Connect or
//     after the connection dropped
//
//   - socket.ErrClosed: the session was permanently closed
//
//   - socket.ErrTimeout: the server did not answer within the request
//     timeout
//
//   - socket.ErrConnectionLost: the connection dropped while a request was
//     in flight
//
//   - socket.ErrNoCredentials: a signed operation was attempted without
//     credentials
//
//   - socket.ErrAuthenticationFailed: the server rejected the credentials
//
// Server-side rejections are returned as *socket.ServerError carrying the
// server's code and message. Push payloads that cannot be decoded are
// reported as *socket.DeserializationError.
//
// # Examples
//
// Basic usage:
//
//	// Create a client, with credentials for signed operations
//	opts := coinex.NewOptions().WithCredentials("your-access-id", "your-secret-key")
//	client := coinex.NewClient(opts)
//
//	// Connect to the exchange
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatalf("Failed to connect: %v", err)
//	}
//	defer client.Close()
//
// # Query Examples
//
// Getting an order book snapshot:
//
//	book, err := client.GetOrderBook(ctx, "BTCUSDT", 20, 0)
//	if err != nil {
//	    switch {
//	    case errors.Is(err, coinex.ErrInvalidSymbol):
//	        log.Fatalf("Invalid trading pair symbol")
//	    case errors.Is(err, socket.ErrTimeout):
//	        log.Fatalf("Server did not answer in time")
//	    default:
//	        log.Fatalf("Failed to get order book: %v", err)
//	    }
//	}
//
//	fmt.Printf("Best bid: %s, Best ask: %s\n", book.Bids[0].Price, book.Asks[0].Price)
//
// Getting historical candles:
//
//	klines, err := client.GetKlines(ctx, "BTCUSDT", coinex.Interval1Min,
//	    time.Now().Add(-1*time.Hour), time.Now())
//	if err != nil {
//	    log.Fatalf("Failed to get klines: %v", err)
//	}
//
//	for _, k := range klines {
//	    fmt.Printf("%s | Open: %s, Close: %s\n",
//	        k.Timestamp().Format("15:04:05"), k.Open, k.Close)
//	}
//
// # Subscription Examples
//
// Subscribing to real-time trades:
//
//	sub, err := client.SubscribeTrades(ctx, "BTCUSDT", func(symbol string, trades []coinex.Trade) {
//	    for _, trade := range trades {
//	        fmt.Printf("[%s] %s %s @ %s\n", symbol, trade.Side, trade.Amount, trade.Price)
//	    }
//	})
//	if err != nil {
//	    log.Fatalf("Subscription failed: %v", err)
//	}
//
//	// Done reports when the subscription is lost for good, for example
//	// when reconnection gives up or the server rejects the replay
//	go func() {
//	    if err := <-sub.Done(); err != nil {
//	        log.Printf("Trade subscription lost: %v", err)
//	    }
//	}()
//
// Signed subscriptions work the same way; the session authenticates
// automatically before the first signed operation:
//
//	sub, err = client.SubscribeOrders(ctx, func(event coinex.OrderEvent, order coinex.Order) {
//	    fmt.Printf("Order %d %s on %s\n", order.ID, event, order.Market)
//	}, "BTCUSDT")
//
// Handlers run synchronously on the session's read path and must return
// quickly; spawn a goroutine for slow work.
package coinexconnector
