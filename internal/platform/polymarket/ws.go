package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyledger/internal/domain"
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

// QuoteHandler is called for every reference-price observation derived from
// the feed: orderbook midpoints and last trade prices.
type QuoteHandler func(MarkQuote)

// WSClient is a WebSocket client for the Polymarket CLOB real-time data
// feed. It manages the connection lifecycle and subscriptions and reduces
// book and trade messages to mark quotes for registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []WSCommand

	handlerMu     sync.RWMutex
	quoteHandlers []QuoteHandler

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the CLOB WebSocket endpoint, e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection to the Polymarket CLOB WebSocket.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start the read loop and ping loop.
	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to the given channels for the specified token IDs.
// Valid channels include "book" and "last_trade_price".
func (w *WSClient) Subscribe(ctx context.Context, channels []string, tokenIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	for _, ch := range channels {
		cmd := WSCommand{
			Type:    "subscribe",
			Channel: ch,
			Assets:  tokenIDs,
		}

		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: subscribe to %s: %w", ch, err)
		}

		// Track subscription for reconnection.
		w.subscriptions = append(w.subscriptions, cmd)
	}

	return nil
}

// Unsubscribe unsubscribes from the given channels for the specified token IDs.
func (w *WSClient) Unsubscribe(ctx context.Context, channels []string, tokenIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	for _, ch := range channels {
		cmd := WSCommand{
			Type:    "unsubscribe",
			Channel: ch,
			Assets:  tokenIDs,
		}

		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: unsubscribe from %s: %w", ch, err)
		}
	}

	// Remove matching subscriptions from the tracked list.
	assetSet := make(map[string]struct{}, len(tokenIDs))
	for _, a := range tokenIDs {
		assetSet[a] = struct{}{}
	}
	channelSet := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		channelSet[c] = struct{}{}
	}

	filtered := w.subscriptions[:0]
	for _, sub := range w.subscriptions {
		if _, chMatch := channelSet[sub.Channel]; chMatch {
			// Remove assets from this subscription.
			remaining := make([]string, 0, len(sub.Assets))
			for _, a := range sub.Assets {
				if _, found := assetSet[a]; !found {
					remaining = append(remaining, a)
				}
			}
			if len(remaining) > 0 {
				sub.Assets = remaining
				filtered = append(filtered, sub)
			}
		} else {
			filtered = append(filtered, sub)
		}
	}
	w.subscriptions = filtered

	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		// Send a close message to the server.
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnQuote registers a handler that is called for every mark quote derived
// from the feed.
func (w *WSClient) OnQuote(handler QuoteHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.quoteHandlers = append(w.quoteHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the WebSocket and dispatches
// them to the registered handlers. It runs in its own goroutine.
// On disconnect, it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Check if we've been shut down.
			select {
			case <-w.done:
				return
			default:
			}

			// Attempt reconnection.
			w.reconnect()
			return // readLoop will be restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and reduces it to a mark
// quote when possible.
func (w *WSClient) handleMessage(raw []byte) {
	// First, try to identify the message type from the outer envelope.
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	msgType := envelope.MsgType
	if msgType == "" {
		msgType = envelope.Event
	}

	var quote MarkQuote
	var ok bool

	switch msgType {
	case "book":
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		quote, ok = BookMidpoint(&book)

	case "last_trade_price":
		var ltp PriceMessage
		if err := json.Unmarshal(raw, &ltp); err != nil {
			return
		}
		quote, ok = LastTradeQuote(&ltp)
	}

	if !ok {
		return
	}

	w.handlerMu.RLock()
	handlers := w.quoteHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(quote)
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		// Exponential backoff.
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
