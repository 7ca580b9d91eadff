package coinex

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketState is a rolling 24h statistics snapshot for one market. Prices
// and volumes arrive as strings on the wire and are decoded exactly.
type MarketState struct {
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	Last   decimal.Decimal `json:"last"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Volume decimal.Decimal `json:"volume"`
	Deal   decimal.Decimal `json:"deal"`
	Period int64           `json:"period"`
}

// BookLevel is one price level of the order book. The wire encodes a level
// as a two-element array ["price", "amount"].
type BookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// UnmarshalJSON decodes the positional [price, amount] pair
func (l *BookLevel) UnmarshalJSON(data []byte) error {
	var pair [2]decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid book level: %w", err)
	}
	l.Price = pair[0]
	l.Amount = pair[1]
	return nil
}

// MarshalJSON encodes the level back into its positional form
func (l BookLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]decimal.Decimal{l.Price, l.Amount})
}

// OrderBook is a depth snapshot or incremental update. FullUpdate and
// Symbol come from the surrounding push frame, not the book object itself.
type OrderBook struct {
	Symbol     string `json:"-"`
	FullUpdate bool   `json:"-"`

	Last decimal.Decimal `json:"last"`
	Time int64           `json:"time"`
	Bids []BookLevel     `json:"bids"`
	Asks []BookLevel     `json:"asks"`
}

// TradeSide is the taker side of an executed trade
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Trade is one executed transaction
type Trade struct {
	ID     int64           `json:"id"`
	Side   TradeSide       `json:"type"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Time   float64         `json:"time"`
}

// Timestamp returns the trade time as a time.Time
func (t Trade) Timestamp() time.Time {
	secs := int64(t.Time)
	nanos := int64((t.Time - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos)
}

// Kline is one candle. The wire encodes a kline as a positional array
// [time, open, close, high, low, volume, amount] with an optional trailing
// market string on some push frames.
type Kline struct {
	Time   int64
	Open   decimal.Decimal
	Close  decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Volume decimal.Decimal
	Amount decimal.Decimal
	Market string
}

// UnmarshalJSON decodes the positional kline array
func (k *Kline) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("invalid kline: %w", err)
	}
	if len(fields) < 7 {
		return fmt.Errorf("invalid kline: want at least 7 fields, got %d", len(fields))
	}

	if err := json.Unmarshal(fields[0], &k.Time); err != nil {
		return fmt.Errorf("invalid kline time: %w", err)
	}
	targets := []*decimal.Decimal{&k.Open, &k.Close, &k.High, &k.Low, &k.Volume, &k.Amount}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i+1], target); err != nil {
			return fmt.Errorf("invalid kline field %d: %w", i+1, err)
		}
	}
	if len(fields) > 7 {
		// trailing market name on push frames
		_ = json.Unmarshal(fields[7], &k.Market)
	}
	return nil
}

// Timestamp returns the candle open time
func (k Kline) Timestamp() time.Time {
	return time.Unix(k.Time, 0)
}

// Balance is the available and frozen amount of one asset
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

// OrderEvent is the lifecycle event kind carried by an order push frame
type OrderEvent int

const (
	OrderCreated  OrderEvent = 1
	OrderUpdated  OrderEvent = 2
	OrderFinished OrderEvent = 3
)

// String returns the string representation of an order event
func (e OrderEvent) String() string {
	switch e {
	case OrderCreated:
		return "created"
	case OrderUpdated:
		return "updated"
	case OrderFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// OrderSide is the direction of an order
type OrderSide int

const (
	OrderSell OrderSide = 1
	OrderBuy  OrderSide = 2
)

// OrderType distinguishes limit from market orders
type OrderType int

const (
	OrderLimit  OrderType = 1
	OrderMarket OrderType = 2
)

// Order is an open or historical order
type Order struct {
	ID         int64           `json:"id"`
	Market     string          `json:"market"`
	Type       OrderType       `json:"type"`
	Side       OrderSide       `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Left       decimal.Decimal `json:"left"`
	DealStock  decimal.Decimal `json:"deal_stock"`
	DealMoney  decimal.Decimal `json:"deal_money"`
	DealFee    decimal.Decimal `json:"deal_fee"`
	CreateTime float64         `json:"ctime"`
	UpdateTime float64         `json:"mtime"`
	Source     string          `json:"source"`
}

// OrdersPage is one page of an open-orders query
type OrdersPage struct {
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	Total   int     `json:"total"`
	Records []Order `json:"records"`
}
