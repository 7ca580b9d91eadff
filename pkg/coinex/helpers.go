package coinex

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Common validation errors
var (
	// ErrInvalidSymbol is returned when a market symbol does not match the
	// exchange format
	ErrInvalidSymbol = errors.New("invalid market symbol")

	// ErrInvalidInterval is returned when an unsupported kline interval is
	// provided
	ErrInvalidInterval = errors.New("invalid kline interval")

	// ErrInvalidMergeDepth is returned when a depth merge level is out of
	// range
	ErrInvalidMergeDepth = errors.New("invalid merge depth")
)

// StateCyclePeriod is the rolling window, in seconds, over which market
// state statistics are computed.
const StateCyclePeriod = 86400

// symbolPattern matches exchange market symbols: uppercase alphanumeric,
// at least five characters (e.g. "BTCUSDT").
var symbolPattern = regexp.MustCompile(`^[0-9A-Z]{5,}$`)

// ValidateSymbol checks that a market symbol is in the exchange format.
// The client validates symbols before building requests; the session layer
// trusts pre-validated input.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// KlineInterval is a candle interval in exchange notation
type KlineInterval string

const (
	Interval1Min   KlineInterval = "1min"
	Interval3Min   KlineInterval = "3min"
	Interval5Min   KlineInterval = "5min"
	Interval15Min  KlineInterval = "15min"
	Interval30Min  KlineInterval = "30min"
	Interval1Hour  KlineInterval = "1hour"
	Interval2Hour  KlineInterval = "2hour"
	Interval4Hour  KlineInterval = "4hour"
	Interval6Hour  KlineInterval = "6hour"
	Interval12Hour KlineInterval = "12hour"
	Interval1Day   KlineInterval = "1day"
	Interval3Day   KlineInterval = "3day"
	Interval1Week  KlineInterval = "1week"
)

var intervalSeconds = map[KlineInterval]int64{
	Interval1Min:   60,
	Interval3Min:   180,
	Interval5Min:   300,
	Interval15Min:  900,
	Interval30Min:  1800,
	Interval1Hour:  3600,
	Interval2Hour:  7200,
	Interval4Hour:  14400,
	Interval6Hour:  21600,
	Interval12Hour: 43200,
	Interval1Day:   86400,
	Interval3Day:   259200,
	Interval1Week:  604800,
}

// Seconds returns the interval length in seconds, which is what the wire
// protocol expects in kline requests.
func (i KlineInterval) Seconds() (int64, error) {
	secs, ok := intervalSeconds[i]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, string(i))
	}
	return secs, nil
}

// MergeDepth converts a merge level to the decimal string the depth
// endpoints expect: 0 means no merging ("0"), levels 1 through 8 merge
// price levels to that many decimal places ("0.1" ... "0.00000001").
func MergeDepth(level int) (string, error) {
	if level < 0 || level > 8 {
		return "", fmt.Errorf("%w: %d (want 0..8)", ErrInvalidMergeDepth, level)
	}
	if level == 0 {
		return "0", nil
	}
	return "0." + strings.Repeat("0", level-1) + "1", nil
}
