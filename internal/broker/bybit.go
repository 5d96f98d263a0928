package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

// retCodeDuplicateOrderLink is Bybit's rejection of an orderLinkId that
// was already used. It means the order exists, not that placement failed.
const retCodeDuplicateOrderLink = 110072

var errDuplicateOrderLink = errors.New("orderLinkId already used")

// transientRetCodes are server-side conditions worth retrying: request
// rate limited, server busy, service restarting, environment error.
var transientRetCodes = map[int]bool{
	10002: true,
	10006: true,
	10016: true,
	10018: true,
}

// BybitConfig configures the Bybit unified trading account adapter.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool
	Category  string // "spot" or "linear"
	Currency  string // settlement coin, e.g. "USDT"
}

// Bybit routes orders to a Bybit unified trading account.
type Bybit struct {
	httpClient *bybit_api.Client
	category   string
	currency   string
	log        *logrus.Logger
}

// NewBybit creates the adapter. Demo selects the paper-trading
// environment, Testnet the public testnet; the default is mainnet.
func NewBybit(cfg BybitConfig, log *logrus.Logger) *Bybit {
	var baseURL string
	switch {
	case cfg.Demo:
		baseURL = "https://api-demo.bybit.com"
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}

	category := cfg.Category
	if category == "" {
		category = "spot"
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USDT"
	}

	return &Bybit{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category:   category,
		currency:   currency,
		log:        log,
	}
}

func (b *Bybit) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        b.currency,
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return types.AccountInfo{}, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err), "bybit", "account_info")
	}

	var wallet struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
		} `json:"list"`
	}
	if err := b.decodeResult(result, &wallet); err != nil {
		return types.AccountInfo{}, err
	}
	if len(wallet.List) == 0 {
		return types.AccountInfo{}, apperrors.Invariant(
			fmt.Errorf("wallet response has no accounts"), "bybit", "account_info")
	}

	acct := wallet.List[0]
	equity, err := decimal.NewFromString(acct.TotalEquity)
	if err != nil {
		return types.AccountInfo{}, apperrors.Invariant(
			fmt.Errorf("bad totalEquity %q: %w", acct.TotalEquity, err), "bybit", "account_info")
	}
	available, err := decimal.NewFromString(acct.TotalAvailableBalance)
	if err != nil {
		return types.AccountInfo{}, apperrors.Invariant(
			fmt.Errorf("bad totalAvailableBalance %q: %w", acct.TotalAvailableBalance, err), "bybit", "account_info")
	}
	cash, err := decimal.NewFromString(acct.TotalWalletBalance)
	if err != nil {
		cash = available
	}

	return types.AccountInfo{
		Cash:        types.Money{Amount: cash, Currency: b.currency},
		Equity:      types.Money{Amount: equity, Currency: b.currency},
		BuyingPower: types.Money{Amount: available, Currency: b.currency},
	}, nil
}

func (b *Bybit) Positions(ctx context.Context) ([]types.Position, error) {
	params := map[string]interface{}{
		"category":   b.category,
		"settleCoin": b.currency,
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err), "bybit", "positions")
	}

	var payload struct {
		List []struct {
			Symbol         string `json:"symbol"`
			Side           string `json:"side"`
			Size           string `json:"size"`
			AvgPrice       string `json:"avgPrice"`
			UnrealisedPnl  string `json:"unrealisedPnl"`
			CurRealisedPnl string `json:"curRealisedPnl"`
		} `json:"list"`
	}
	if err := b.decodeResult(result, &payload); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(payload.List))
	for _, p := range payload.List {
		size, err := decimal.NewFromString(p.Size)
		if err != nil || size.IsZero() {
			continue
		}
		if p.Side == "Sell" {
			size = size.Neg()
		}
		avg, _ := decimal.NewFromString(p.AvgPrice)
		upnl, _ := decimal.NewFromString(p.UnrealisedPnl)
		rpnl, _ := decimal.NewFromString(p.CurRealisedPnl)
		positions = append(positions, types.Position{
			Symbol:        types.Symbol(p.Symbol),
			Quantity:      types.NewQuantity(size),
			AverageCost:   avg,
			UnrealizedPnL: upnl,
			RealizedPnL:   rpnl,
		})
	}
	return positions, nil
}

// SubmitOrder places the order with the decision-derived client order id
// as orderLinkId. Bybit rejects a duplicate orderLinkId; that rejection
// means a previous delivery already placed the order, so it is resolved
// by looking the order up instead of surfacing an error.
func (b *Bybit) SubmitOrder(ctx context.Context, req execution.OrderRequest) (SubmitResult, error) {
	params := map[string]interface{}{
		"category":    b.category,
		"symbol":      string(req.Symbol),
		"side":        string(req.Side),
		"orderType":   string(req.Type),
		"qty":         req.Quantity.String(),
		"orderLinkId": req.ClientOrderID,
	}
	if req.Type == types.OrderTypeLimit {
		params["price"] = req.LimitPrice.String()
		params["timeInForce"] = "GTC"
	}
	if !req.StopLoss.IsZero() {
		params["stopLoss"] = req.StopLoss.String()
	}
	if !req.TakeProfit.IsZero() {
		params["takeProfit"] = req.TakeProfit.String()
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return SubmitResult{}, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err), "bybit", "submit_order")
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := b.decodeResult(result, &placed); err != nil {
		if errors.Is(err, errDuplicateOrderLink) {
			return b.recoverPlaced(ctx, req)
		}
		return SubmitResult{}, err
	}

	b.log.WithFields(logrus.Fields{
		"symbol":          req.Symbol,
		"side":            req.Side,
		"qty":             req.Quantity.String(),
		"order_id":        placed.OrderID,
		"client_order_id": placed.OrderLinkID,
	}).Info("order placed")

	return SubmitResult{
		OrderID:       placed.OrderID,
		ClientOrderID: placed.OrderLinkID,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// recoverPlaced resolves a duplicate-orderLinkId rejection to the order
// that was already placed under that id.
func (b *Bybit) recoverPlaced(ctx context.Context, req execution.OrderRequest) (SubmitResult, error) {
	open, err := b.ListOpenOrders(ctx, req.Symbol)
	if err != nil {
		return SubmitResult{}, err
	}
	for _, o := range open {
		if o.ClientOrderID == req.ClientOrderID {
			b.log.WithFields(logrus.Fields{
				"symbol":          req.Symbol,
				"order_id":        o.OrderID,
				"client_order_id": o.ClientOrderID,
			}).Info("order already placed, resolved existing")
			return SubmitResult{
				OrderID:       o.OrderID,
				ClientOrderID: o.ClientOrderID,
				SubmittedAt:   o.CreatedAt,
			}, nil
		}
	}
	// filled or canceled already, so no longer open; the id is still claimed
	return SubmitResult{
		ClientOrderID: req.ClientOrderID,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

func (b *Bybit) CancelOrder(ctx context.Context, symbol types.Symbol, orderID string) error {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   string(symbol),
		"orderId":  orderID,
	}
	if _, err := b.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err), "bybit", "cancel_order")
	}
	return nil
}

func (b *Bybit) ListOpenOrders(ctx context.Context, symbol types.Symbol) ([]OpenOrder, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   string(symbol),
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, apperrors.Transient(
			fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err), "bybit", "list_open_orders")
	}

	var payload struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := b.decodeResult(result, &payload); err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(payload.List))
	for _, o := range payload.List {
		qty, err := types.NewQuantityFromString(o.Qty)
		if err != nil {
			continue
		}
		filled, _ := types.NewQuantityFromString(o.CumExecQty)
		orders = append(orders, OpenOrder{
			OrderID:       o.OrderID,
			ClientOrderID: o.OrderLinkID,
			Symbol:        types.Symbol(o.Symbol),
			Side:          types.Side(o.Side),
			Type:          types.OrderType(o.OrderType),
			Quantity:      qty,
			FilledQty:     filled,
			CreatedAt:     parseMillis(o.CreatedTime),
		})
	}
	return orders, nil
}

// decodeResult unwraps the SDK envelope and decodes Result into out.
func (b *Bybit) decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return apperrors.Invariant(fmt.Errorf("unexpected response type %T", response), "bybit", "decode")
	}
	if serverResp.RetCode != 0 {
		return retCodeError(serverResp.RetCode, serverResp.RetMsg)
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return apperrors.Invariant(err, "bybit", "decode")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Invariant(err, "bybit", "decode")
	}
	return nil
}

// retCodeError classifies a nonzero Bybit retcode. Server-side
// conditions are retryable; everything else is a definitive rejection
// that retrying cannot fix.
func retCodeError(code int, msg string) error {
	switch {
	case code == retCodeDuplicateOrderLink:
		return apperrors.Wrap(
			fmt.Errorf("%w: %s (code %d)", errDuplicateOrderLink, msg, code),
			apperrors.CategoryFatal, "bybit", "decode")
	case transientRetCodes[code]:
		return apperrors.Transient(
			fmt.Errorf("%w: %s (code %d)", apperrors.ErrBrokerUnavailable, msg, code),
			"bybit", "decode")
	default:
		return apperrors.Wrap(
			fmt.Errorf("broker rejected request: %s (code %d)", msg, code),
			apperrors.CategoryFatal, "bybit", "decode")
	}
}

func parseMillis(s string) time.Time {
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
