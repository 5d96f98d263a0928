package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/pkg/types"
)

const (
	handshakeTimeout = 4 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongTimeout      = 60 * time.Second
	reconnectDelay   = 5 * time.Second
)

// wireTick is the feed's wire format for one trade.
type wireTick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Size   string `json:"size"`
	TsMs   int64  `json:"ts"`
}

// WSFeed is a TickProvider backed by a websocket trade stream. It
// reconnects with a fixed delay on any connection failure and reports
// each drop through the DisconnectListener.
type WSFeed struct {
	url      string
	source   string
	log      *logrus.Logger
	onDrop   DisconnectListener

	mu     sync.RWMutex
	latest map[types.Symbol]types.Tick
}

func NewWSFeed(url, source string, log *logrus.Logger, onDrop DisconnectListener) *WSFeed {
	return &WSFeed{
		url:    url,
		source: source,
		log:    log,
		onDrop: onDrop,
		latest: make(map[types.Symbol]types.Tick),
	}
}

// Subscribe opens the stream and returns the tick channel. The channel
// closes when ctx is canceled; reconnects happen transparently in
// between.
func (f *WSFeed) Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.Tick, error) {
	out := make(chan types.Tick, 256)

	go func() {
		defer close(out)
		for {
			if err := f.runConnection(ctx, symbols, out); err != nil {
				f.log.WithError(err).WithField("source", f.source).Warn("feed connection lost")
				if f.onDrop != nil {
					f.onDrop(f.source, err.Error(), time.Now().UTC())
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return out, nil
}

func (f *WSFeed) runConnection(ctx context.Context, symbols []types.Symbol, out chan<- types.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = string(s)
	}
	sub := map[string]interface{}{"op": "subscribe", "args": names}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var wt wireTick
		if err := json.Unmarshal(payload, &wt); err != nil || wt.Symbol == "" {
			continue
		}
		price, err := decimal.NewFromString(wt.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(wt.Size)
		if err != nil {
			size = decimal.Zero
		}

		tick := types.Tick{
			Symbol:    types.Symbol(wt.Symbol),
			Timestamp: time.UnixMilli(wt.TsMs).UTC(),
			Price:     price,
			Size:      size,
		}

		f.mu.Lock()
		f.latest[tick.Symbol] = tick
		f.mu.Unlock()

		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

// LatestTick returns the most recent tick seen for symbol.
func (f *WSFeed) LatestTick(symbol types.Symbol) (types.Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[symbol]
	return t, ok
}
