package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

// timeframe → Bybit kline interval code.
var bybitIntervals = map[types.Timeframe]string{
	types.Timeframe1m:  "1",
	types.Timeframe5m:  "5",
	types.Timeframe15m: "15",
	types.Timeframe1h:  "60",
	types.Timeframe1d:  "D",
}

// BybitMarketData serves historical candles and last prices from the
// Bybit public market endpoints.
type BybitMarketData struct {
	httpClient *bybit_api.Client
	category   string
}

func NewBybitMarketData(testnet bool, category string) *BybitMarketData {
	baseURL := bybit_api.MAINNET
	if testnet {
		baseURL = bybit_api.TESTNET
	}
	if category == "" {
		category = "spot"
	}
	return &BybitMarketData{
		httpClient: bybit_api.NewBybitHttpClient("", "", bybit_api.WithBaseURL(baseURL)),
		category:   category,
	}
}

func (m *BybitMarketData) HistoricalCandles(ctx context.Context, symbol types.Symbol, tf types.Timeframe, from, to time.Time) ([]types.Candle, error) {
	interval, ok := bybitIntervals[tf]
	if !ok {
		return nil, apperrors.Validation(fmt.Errorf("unsupported timeframe %s", tf), "bybit_marketdata", "historical_candles")
	}

	params := map[string]interface{}{
		"category": m.category,
		"symbol":   string(symbol),
		"interval": interval,
		"start":    from.UnixMilli(),
		"end":      to.UnixMilli(),
		"limit":    1000,
	}
	result, err := m.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err), "bybit_marketdata", "historical_candles")
	}

	var payload struct {
		List [][]string `json:"list"`
	}
	if err := decodeServerResponse(result, &payload); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(payload.List))
	for _, row := range payload.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(row) < 6 {
			continue
		}
		c, err := candleFromRow(symbol, tf, row)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}
	// Bybit returns newest first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func candleFromRow(symbol types.Symbol, tf types.Timeframe, row []string) (types.Candle, error) {
	var ms int64
	if _, err := fmt.Sscanf(row[0], "%d", &ms); err != nil {
		return types.Candle{}, err
	}
	open, err := decimal.NewFromString(row[1])
	if err != nil {
		return types.Candle{}, err
	}
	high, err := decimal.NewFromString(row[2])
	if err != nil {
		return types.Candle{}, err
	}
	low, err := decimal.NewFromString(row[3])
	if err != nil {
		return types.Candle{}, err
	}
	cls, err := decimal.NewFromString(row[4])
	if err != nil {
		return types.Candle{}, err
	}
	vol, err := decimal.NewFromString(row[5])
	if err != nil {
		return types.Candle{}, err
	}
	return types.Candle{
		Symbol:    symbol,
		Timeframe: tf,
		Timestamp: time.UnixMilli(ms).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func (m *BybitMarketData) LatestPrice(ctx context.Context, symbol types.Symbol) (decimal.Decimal, error) {
	params := map[string]interface{}{
		"category": m.category,
		"symbol":   string(symbol),
	}
	result, err := m.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return decimal.Zero, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err), "bybit_marketdata", "latest_price")
	}

	var payload struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeServerResponse(result, &payload); err != nil {
		return decimal.Zero, err
	}
	if len(payload.List) == 0 {
		return decimal.Zero, apperrors.Invariant(
			fmt.Errorf("no ticker for %s", symbol), "bybit_marketdata", "latest_price")
	}
	price, err := decimal.NewFromString(payload.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, apperrors.Invariant(
			fmt.Errorf("bad lastPrice %q: %w", payload.List[0].LastPrice, err), "bybit_marketdata", "latest_price")
	}
	return price, nil
}

func decodeServerResponse(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return apperrors.Invariant(fmt.Errorf("unexpected response type %T", response), "bybit_marketdata", "decode")
	}
	if serverResp.RetCode != 0 {
		return apperrors.Transient(
			fmt.Errorf("%w: %s (code %d)", apperrors.ErrProviderUnavailable, serverResp.RetMsg, serverResp.RetCode),
			"bybit_marketdata", "decode")
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return apperrors.Invariant(err, "bybit_marketdata", "decode")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Invariant(err, "bybit_marketdata", "decode")
	}
	return nil
}
