package types

import (
	"fmt"
	"time"
)

// Symbol identifies a tradeable instrument, e.g. "BTCUSDT".
type Symbol string

func (s Symbol) String() string { return string(s) }

// Timeframe is a candle aggregation interval.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates and returns a Timeframe from its string form.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the wall-clock length of one candle in this timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// IsValid reports whether tf is one of the supported timeframes.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

func (tf Timeframe) String() string { return string(tf) }
