// Package feed keeps the price cache warm from exchange ticker streams and
// serves cached quotes to the engine with a staleness bound.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corvalis/riskbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// tickerMessage is the wire shape of one ticker update.
type tickerMessage struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	EventTime int64  `json:"E"` // milliseconds
}

// subscribeCommand is the wire shape of a stream subscription request.
type subscribeCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// TickerFeed subscribes to per-symbol ticker streams over WebSocket and
// writes every quote into the price cache. It reconnects with exponential
// backoff on disconnect and restores its subscriptions.
type TickerFeed struct {
	wsURL   string
	symbols []string
	cache   domain.PriceCache
	logger  *slog.Logger

	mu   sync.RWMutex
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given symbols.
func NewTickerFeed(wsURL string, symbols []string, cache domain.PriceCache, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		logger:  logger.With(slog.String("component", "ticker_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes, and pumps ticker updates into the cache until
// ctx is cancelled or Close is called.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		f.logger.Warn("ticker stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection holds one connection open: subscribe, then read until error.
func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.Info("ticker stream subscribed", slog.Int("symbols", len(f.symbols)))

	go f.pingLoop(conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *TickerFeed) subscribe(conn *websocket.Conn) error {
	params := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		params = append(params, streamName(sym))
	}
	cmd := subscribeCommand{Method: "SUBSCRIBE", Params: params, ID: 1}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

func (f *TickerFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *TickerFeed) handleMessage(ctx context.Context, raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // drop unparseable frames
	}
	if msg.Symbol == "" || msg.LastPrice == "" {
		return
	}
	price, err := strconv.ParseFloat(msg.LastPrice, 64)
	if err != nil || price <= 0 {
		return
	}

	ts := time.Now().UTC()
	if msg.EventTime > 0 {
		ts = time.UnixMilli(msg.EventTime).UTC()
	}

	if err := f.cache.SetPrice(ctx, msg.Symbol, price, ts); err != nil {
		f.logger.Warn("price cache write failed",
			slog.String("symbol", msg.Symbol),
			slog.String("error", err.Error()))
	}
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn != nil {
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = conn.Close()
		}
	})
}

// streamName maps "BTC/USDT" to its lowercased ticker stream name.
func streamName(symbol string) string {
	out := make([]byte, 0, len(symbol)+7)
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c == '/' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out) + "@ticker"
}
