package coinex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veiloq/coinex-connector/pkg/logging"
	"github.com/veiloq/coinex-connector/pkg/socket"
)

// Wire subjects for the exchange features
const (
	subjectState = "state"
	subjectDepth = "depth"
	subjectDeals = "deals"
	subjectKline = "kline"
	subjectAsset = "asset"
	subjectOrder = "order"
)

// Handler types for subscription callbacks. Handlers run synchronously on
// the session dispatch path and must return quickly.
type (
	// MarketStateHandler receives state snapshots keyed by market symbol
	MarketStateHandler func(states map[string]MarketState)

	// OrderBookHandler receives depth updates for the subscribed market
	OrderBookHandler func(book OrderBook)

	// TradeHandler receives executed trades for the subscribed market
	TradeHandler func(symbol string, trades []Trade)

	// KlineHandler receives candle updates for the subscribed market
	KlineHandler func(klines []Kline)

	// BalanceHandler receives balance changes keyed by asset
	BalanceHandler func(balances map[string]Balance)

	// OrderHandler receives order lifecycle events
	OrderHandler func(event OrderEvent, order Order)
)

// Client is the typed exchange API over one WebSocket session. All queries
// and subscriptions multiplex over the same connection; signed operations
// authenticate lazily on first use.
type Client struct {
	opts    *Options
	session *socket.Session
	logger  logging.Logger
}

// NewClient creates a client with the given options
func NewClient(opts *Options) *Client {
	logger := logging.NewLogger()
	logger.SetLevel(logging.ParseLevel(opts.LogLevel))
	return NewClientWithLogger(opts, logger)
}

// NewClientWithLogger creates a client with a specific logger
func NewClientWithLogger(opts *Options, logger logging.Logger) *Client {
	var creds socket.CredentialStore
	if opts.HasCredentials() {
		creds = opts
	}

	session := socket.NewSession(socket.Config{
		URL:               opts.URL,
		RequestTimeout:    opts.RequestTimeout,
		PingInterval:      opts.PingInterval,
		ReconnectInterval: opts.ReconnectInterval,
		MaxRetries:        opts.MaxRetries,
		AutoReconnect:     opts.AutoReconnect,
		SendsPerSecond:    opts.SendsPerSecond,
		Credentials:       creds,
		Logger:            logger,
	})

	return &Client{
		opts:    opts,
		session: session,
		logger:  logger,
	}
}

// Connect establishes the WebSocket session
func (c *Client) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Close permanently shuts the client down
func (c *Client) Close() error {
	return c.session.Close()
}

// IsConnected reports whether the session transport is open
func (c *Client) IsConnected() bool {
	return c.session.IsConnected()
}

// Session exposes the underlying session for callers that need raw access
func (c *Client) Session() *socket.Session {
	return c.session
}

// Ping sends a keep-alive round trip
func (c *Client) Ping(ctx context.Context) error {
	return c.session.Ping(ctx)
}

// ServerTime returns the server clock
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var secs int64
	req := socket.NewRequest("server", socket.ActionTime, false)
	if err := c.session.Query(ctx, req, &secs); err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

// GetMarketState returns the rolling 24h statistics for one market
func (c *Client) GetMarketState(ctx context.Context, symbol string) (*MarketState, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var state MarketState
	req := socket.NewRequest(subjectState, socket.ActionQuery, false, symbol, StateCyclePeriod)
	if err := c.session.Query(ctx, req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetOrderBook returns a depth snapshot with up to limit levels per side,
// merged to the given decimal level (see MergeDepth).
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit, mergeLevel int) (*OrderBook, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	merge, err := MergeDepth(mergeLevel)
	if err != nil {
		return nil, err
	}

	var book OrderBook
	req := socket.NewRequest(subjectDepth, socket.ActionQuery, false, symbol, limit, merge)
	if err := c.session.Query(ctx, req, &book); err != nil {
		return nil, err
	}
	book.Symbol = symbol
	book.FullUpdate = true
	return &book, nil
}

// GetTrades returns up to limit recent trades newer than lastID; a zero
// lastID returns the most recent trades.
func (c *Client) GetTrades(ctx context.Context, symbol string, limit int, lastID int64) ([]Trade, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var trades []Trade
	req := socket.NewRequest(subjectDeals, socket.ActionQuery, false, symbol, limit, lastID)
	if err := c.session.Query(ctx, req, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// GetKlines returns candles for a time range
func (c *Client) GetKlines(ctx context.Context, symbol string, interval KlineInterval, start, end time.Time) ([]Kline, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	secs, err := interval.Seconds()
	if err != nil {
		return nil, err
	}

	var klines []Kline
	req := socket.NewRequest(subjectKline, socket.ActionQuery, false, symbol, start.Unix(), end.Unix(), secs)
	if err := c.session.Query(ctx, req, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

// GetBalances returns balances for the given assets, or all non-zero
// balances when none are named. Requires credentials.
func (c *Client) GetBalances(ctx context.Context, assets ...string) (map[string]Balance, error) {
	params := make([]interface{}, len(assets))
	for i, asset := range assets {
		params[i] = asset
	}

	var balances map[string]Balance
	req := socket.NewRequest(subjectAsset, socket.ActionQuery, true, params...)
	if err := c.session.Query(ctx, req, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// GetOrders returns one page of open orders for a market. Requires
// credentials.
func (c *Client) GetOrders(ctx context.Context, symbol string, offset, limit int) (*OrdersPage, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var page OrdersPage
	req := socket.NewRequest(subjectOrder, socket.ActionQuery, true, symbol, offset, limit)
	if err := c.session.Query(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SubscribeMarketState subscribes to state snapshots for every market
func (c *Client) SubscribeMarketState(ctx context.Context, handler MarketStateHandler) (*socket.Subscription, error) {
	req := socket.NewRequest(subjectState, socket.ActionSubscribe, false)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		if len(params) == 0 {
			c.pushWarn(subjectState, fmt.Errorf("empty parameter list"))
			return
		}
		var states map[string]MarketState
		if err := json.Unmarshal(params[0], &states); err != nil {
			c.pushWarn(subjectState, err)
			return
		}
		handler(states)
	})
}

// SubscribeOrderBook subscribes to depth updates for one market. The first
// push is a full snapshot; later pushes may be incremental.
func (c *Client) SubscribeOrderBook(ctx context.Context, symbol string, limit, mergeLevel int, handler OrderBookHandler) (*socket.Subscription, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	merge, err := MergeDepth(mergeLevel)
	if err != nil {
		return nil, err
	}

	req := socket.NewRequest(subjectDepth, socket.ActionSubscribe, false, symbol, limit, merge)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		// [fullUpdate, book] with the market name trailing on most frames
		if len(params) < 2 || len(params) > 3 {
			c.pushWarn(subjectDepth, fmt.Errorf("unexpected parameter count %d", len(params)))
			return
		}

		var full bool
		if err := json.Unmarshal(params[0], &full); err != nil {
			c.pushWarn(subjectDepth, err)
			return
		}

		market := symbol
		if len(params) == 3 {
			if err := json.Unmarshal(params[2], &market); err != nil {
				c.pushWarn(subjectDepth, err)
				return
			}
		}
		if market != symbol {
			// frame belongs to another subscription on the same subject
			return
		}

		var book OrderBook
		if err := json.Unmarshal(params[1], &book); err != nil {
			c.pushWarn(subjectDepth, err)
			return
		}
		book.Symbol = market
		book.FullUpdate = full
		handler(book)
	})
}

// SubscribeTrades subscribes to executed trades for one market
func (c *Client) SubscribeTrades(ctx context.Context, symbol string, handler TradeHandler) (*socket.Subscription, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	req := socket.NewRequest(subjectDeals, socket.ActionSubscribe, false, symbol)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		// [market, trades], sometimes with an extra trailing boolean
		if len(params) < 2 || len(params) > 3 {
			c.pushWarn(subjectDeals, fmt.Errorf("unexpected parameter count %d", len(params)))
			return
		}

		var market string
		if err := json.Unmarshal(params[0], &market); err != nil {
			c.pushWarn(subjectDeals, err)
			return
		}
		if market != symbol {
			return
		}

		var trades []Trade
		if err := json.Unmarshal(params[1], &trades); err != nil {
			c.pushWarn(subjectDeals, err)
			return
		}
		handler(market, trades)
	})
}

// SubscribeKlines subscribes to candle updates for one market
func (c *Client) SubscribeKlines(ctx context.Context, symbol string, interval KlineInterval, handler KlineHandler) (*socket.Subscription, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	secs, err := interval.Seconds()
	if err != nil {
		return nil, err
	}

	req := socket.NewRequest(subjectKline, socket.ActionSubscribe, false, symbol, secs)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		// one or two positional klines, each a homogeneous array
		if len(params) == 0 || len(params) > 2 {
			c.pushWarn(subjectKline, fmt.Errorf("unexpected parameter count %d", len(params)))
			return
		}

		klines := make([]Kline, 0, len(params))
		for _, raw := range params {
			var k Kline
			if err := json.Unmarshal(raw, &k); err != nil {
				c.pushWarn(subjectKline, err)
				return
			}
			if k.Market != "" && k.Market != symbol {
				continue
			}
			klines = append(klines, k)
		}
		if len(klines) > 0 {
			handler(klines)
		}
	})
}

// SubscribeBalances subscribes to balance changes for the given assets, or
// all assets when none are named. Requires credentials.
func (c *Client) SubscribeBalances(ctx context.Context, handler BalanceHandler, assets ...string) (*socket.Subscription, error) {
	params := make([]interface{}, len(assets))
	for i, asset := range assets {
		params[i] = asset
	}

	req := socket.NewRequest(subjectAsset, socket.ActionSubscribe, true, params...)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		// some frames carry an extra trailing "0" string after the balances
		if len(params) == 0 {
			c.pushWarn(subjectAsset, fmt.Errorf("empty parameter list"))
			return
		}
		var balances map[string]Balance
		if err := json.Unmarshal(params[0], &balances); err != nil {
			c.pushWarn(subjectAsset, err)
			return
		}
		handler(balances)
	})
}

// SubscribeOrders subscribes to order lifecycle events for the given
// markets. Requires credentials.
func (c *Client) SubscribeOrders(ctx context.Context, handler OrderHandler, symbols ...string) (*socket.Subscription, error) {
	params := make([]interface{}, len(symbols))
	for i, symbol := range symbols {
		if err := ValidateSymbol(symbol); err != nil {
			return nil, err
		}
		params[i] = symbol
	}

	req := socket.NewRequest(subjectOrder, socket.ActionSubscribe, true, params...)
	return c.session.Subscribe(ctx, req, func(params []json.RawMessage) {
		if len(params) != 2 {
			c.pushWarn(subjectOrder, fmt.Errorf("unexpected parameter count %d", len(params)))
			return
		}

		var event int
		if err := json.Unmarshal(params[0], &event); err != nil {
			c.pushWarn(subjectOrder, err)
			return
		}
		var order Order
		if err := json.Unmarshal(params[1], &order); err != nil {
			c.pushWarn(subjectOrder, err)
			return
		}
		handler(OrderEvent(event), order)
	})
}

// Unsubscribe removes a subscription. The server treats unsubscribe as
// best-effort, so this is a local operation.
func (c *Client) Unsubscribe(sub *socket.Subscription) {
	c.session.Unsubscribe(sub)
}

// pushWarn logs a malformed push payload; the failure is isolated to this
// one frame and subscription
func (c *Client) pushWarn(subject string, err error) {
	c.logger.Warn("discarding malformed push payload",
		logging.String("subject", subject),
		logging.Error(err),
	)
}
